// Package parse implements the grammar-trial message classifier.
//
// A Grammar is a pure function that recognizes one message kind's textual
// syntax. The Parser holds an ordered list of (kind, grammar) pairs and
// classifies input by trying each grammar in registration order; the first
// grammar that matches wins, even if a later one would also match.
package parse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/smsrouter/internal/errs"
	"github.com/and161185/smsrouter/internal/model"
)

// ErrNoMatch is returned by a grammar that does not recognize the input at
// all. The parser moves on to the next grammar.
var ErrNoMatch = errors.New("no match")

// FormatError reports input recognized by keyword but with malformed
// arguments. The Text is sent back to the originating peer verbatim, so it
// must be phrased for the end user.
type FormatError struct {
	Text string
}

func (e *FormatError) Error() string { return e.Text }

// Formatf builds a FormatError with a formatted user-facing message.
func Formatf(format string, args ...any) *FormatError {
	return &FormatError{Text: fmt.Sprintf(format, args...)}
}

// Grammar attempts to consume a prefix of text and extract fields from it.
//
// On success it returns the extracted fields and the unconsumed suffix of
// text. When it does not recognize the input it returns ErrNoMatch. When it
// recognizes its keyword but the arguments are malformed it returns a
// *FormatError; a keyword match is authoritative and stops the trial loop.
//
// Grammars must be total functions with no shared mutable state between
// invocations; the parser may run them concurrently for different inputs.
type Grammar func(text string) (model.Fields, string, error)

// Result is one classification produced by the parser.
type Result struct {
	Kind      model.Kind
	Fields    model.Fields
	Remaining string // unconsumed suffix, already trimmed
}

type entry struct {
	kind    model.Kind
	grammar Grammar
}

// Parser classifies message text against registered grammars in priority
// order. Registration happens at startup; Parse is safe for concurrent use.
type Parser struct {
	entries []entry
}

// New returns an empty parser.
func New() *Parser {
	return &Parser{}
}

// Register appends a grammar for the given kind at the lowest priority.
// Registering the same kind twice, or the reserved not-understood kind,
// is a configuration defect.
func (p *Parser) Register(kind model.Kind, g Grammar) error {
	if kind == "" {
		return errors.New("parse: empty kind")
	}
	if kind == model.KindNotUnderstood {
		return fmt.Errorf("parse: kind %q is reserved", kind)
	}
	if g == nil {
		return fmt.Errorf("parse: nil grammar for kind %q", kind)
	}
	for _, e := range p.entries {
		if e.kind == kind {
			return fmt.Errorf("parse: kind %q: %w", kind, errs.ErrAlreadyExists)
		}
	}
	p.entries = append(p.entries, entry{kind: kind, grammar: g})
	return nil
}

// Kinds returns the registered kinds in priority order.
func (p *Parser) Kinds() []model.Kind {
	out := make([]model.Kind, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.kind)
	}
	return out
}

// Parse classifies text.
//
// Leading and trailing whitespace is trimmed before trial. If no grammar
// matches, Parse falls back to the distinguished not-understood kind with
// the whole trimmed text as its only field and an empty remainder; that
// fallback is a classification, not an error. A *FormatError from a grammar
// is returned together with the offending kind in the result.
func (p *Parser) Parse(text string) (Result, error) {
	text = strings.TrimSpace(text)

	for _, e := range p.entries {
		fields, remaining, err := e.grammar(text)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		var fe *FormatError
		if errors.As(err, &fe) {
			return Result{Kind: e.kind}, fe
		}
		if err != nil {
			return Result{}, fmt.Errorf("parse: grammar %q: %w", e.kind, err)
		}
		if fields == nil {
			fields = model.Fields{}
		}
		return Result{
			Kind:      e.kind,
			Fields:    fields,
			Remaining: strings.TrimSpace(remaining),
		}, nil
	}

	return Result{
		Kind:   model.KindNotUnderstood,
		Fields: model.Fields{"text": text},
	}, nil
}
