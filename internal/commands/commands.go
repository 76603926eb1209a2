// Package commands defines the built-in command set: the grammars every
// deployment understands and their handlers.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/smsrouter/internal/model"
	"github.com/and161185/smsrouter/internal/parse"
	"github.com/and161185/smsrouter/internal/router"
)

type command struct {
	kind    model.Kind
	grammar parse.Grammar
}

func builtins() []command {
	return []command{
		{"echo", parse.Keyword("echo", parse.Req("text"))},
		{"ping", parse.Keyword("ping")},
		{"help", parse.Keyword("help")},
		{"blank", parse.Blank()},
	}
}

// NewParser returns a parser that understands the built-in grammars only.
// Used for offline dry-runs, where no handler should fire.
func NewParser() (*parse.Parser, error) {
	p := parse.New()
	for _, c := range builtins() {
		if err := p.Register(c.kind, c.grammar); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Register installs the built-in grammars and their handlers on the router.
func Register(rt *router.Sequential) error {
	handlers := map[model.Kind]router.Handler{
		// +echo <text>: replies with the text verbatim. Doubles as a smoke
		// test for the full inbound/outbound loop against a live gateway.
		"echo": func(ctx context.Context, req *router.Request) error {
			return req.Reply(ctx, req.Fields["text"])
		},
		"ping": func(ctx context.Context, req *router.Request) error {
			return req.Reply(ctx, "pong")
		},
		"help": func(ctx context.Context, req *router.Request) error {
			kinds := make([]string, 0, len(rt.Kinds()))
			for _, k := range rt.Kinds() {
				kinds = append(kinds, "+"+string(k))
			}
			return req.Reply(ctx, fmt.Sprintf("Commands: %s", strings.Join(kinds, " ")))
		},
		// A blank message is classified but needs no reply.
		"blank": func(context.Context, *router.Request) error { return nil },
	}

	for _, c := range builtins() {
		if err := rt.Register(c.kind, c.grammar, handlers[c.kind]); err != nil {
			return err
		}
	}
	return nil
}
