// Command smsctl is the operational CLI: offline grammar dry-runs and the
// resend sweep for messages the router left unsent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/and161185/smsrouter/internal/commands"
	"github.com/and161185/smsrouter/internal/config"
	"github.com/and161185/smsrouter/internal/model"
	"github.com/and161185/smsrouter/internal/repository/postgres"
	"github.com/and161185/smsrouter/internal/transport"
	"github.com/and161185/smsrouter/internal/transport/kannel"
)

func usage() {
	fmt.Fprintf(os.Stderr, `smsctl
Usage:
  smsctl [-config file] <cmd> [args]

Commands:
  version
  parse   -text <message>            (offline dry-run, no DB)
  unsent  [-limit N]                 (list messages never accepted by a gateway)
  resend  [-limit N] [-id ID]        (push unsent messages through their gateway)
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured database and gateways.
func main() {
	cfgPath := flag.String("config", "", "path to TOML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("smsctl %s (%s)\n", version, buildDate)

	case "parse":
		fs := flag.NewFlagSet("parse", flag.ExitOnError)
		text := fs.String("text", "", "message text")
		_ = fs.Parse(flag.Args()[1:])
		if *text == "" {
			fmt.Fprintln(os.Stderr, "need -text")
			os.Exit(1)
		}
		if err := dryRun(*text); err != nil {
			fail(err)
		}

	case "unsent":
		fs := flag.NewFlagSet("unsent", flag.ExitOnError)
		limit := fs.Int("limit", 100, "max messages to list")
		_ = fs.Parse(flag.Args()[1:])

		_, repo, pool, err := open(ctx, *cfgPath)
		if err != nil {
			fail(err)
		}
		defer pool.Close()

		msgs, err := repo.ListUnsent(ctx, *limit)
		if err != nil {
			fail(err)
		}
		for _, m := range msgs {
			fmt.Printf("%d\t%s\t%s\t%q\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.PeerURI, m.Text)
		}

	case "resend":
		fs := flag.NewFlagSet("resend", flag.ExitOnError)
		limit := fs.Int("limit", 100, "max messages to resend")
		id := fs.Int64("id", 0, "resend a single message by id")
		_ = fs.Parse(flag.Args()[1:])

		cfg, repo, pool, err := open(ctx, *cfgPath)
		if err != nil {
			fail(err)
		}
		defer pool.Close()

		var msgs []*model.OutgoingMessage
		if *id != 0 {
			m, err := repo.GetOutgoing(ctx, *id)
			if err != nil {
				fail(err)
			}
			if m.Sent() {
				fail(fmt.Errorf("message %d already sent at %s", m.ID, m.SentAt.Format(time.RFC3339)))
			}
			msgs = []*model.OutgoingMessage{m}
		} else {
			msgs, err = repo.ListUnsent(ctx, *limit)
			if err != nil {
				fail(err)
			}
		}

		if err := resend(ctx, cfg, repo, msgs); err != nil {
			fail(err)
		}

	default:
		usage()
	}
}

// dryRun parses a message against the built-in grammars and prints what the
// router would classify, without touching the database.
func dryRun(text string) error {
	p, err := commands.NewParser()
	if err != nil {
		return err
	}

	remaining := text
	for {
		remaining = strings.TrimSpace(remaining)
		res, err := p.Parse(remaining)
		if err != nil {
			fmt.Printf("%s\terror: %v\n", res.Kind, err)
			return nil
		}
		fmt.Printf("%s\t%v\n", res.Kind, map[string]string(res.Fields))
		if res.Remaining == "" || res.Remaining == remaining {
			return nil
		}
		remaining = res.Remaining
	}
}

// resend pushes each message through the gateway its peer URI names,
// synchronously. Messages whose transport is not configured are skipped
// with a note; the rest either get their sent_at stamped or stay unsent
// for the next sweep.
func resend(
	ctx context.Context, cfg *config.Config,
	repo *postgres.MessageRepo, msgs []*model.OutgoingMessage,
) error {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	gateways := map[string]*kannel.Transport{}
	for name, tc := range cfg.Transports {
		base := transport.NewBase(name, nil, repo, nil, logger)
		gateways[name] = kannel.New(base, repo, kannel.Config{
			SMSURL:    tc.SMSURL,
			DLRURL:    tc.DLRURL,
			Timeout:   tc.Timeout(),
			QueueSize: tc.QueueSize,
		}, logger)
	}

	for _, m := range msgs {
		gw, ok := gateways[m.Transport()]
		if !ok {
			fmt.Printf("%d\tskipped: no transport %q\n", m.ID, m.Transport())
			continue
		}
		gw.Deliver(ctx, m)

		got, err := repo.GetOutgoing(ctx, m.ID)
		if err != nil {
			return err
		}
		if got.Sent() {
			fmt.Printf("%d\tsent\n", m.ID)
		} else {
			fmt.Printf("%d\tstill unsent\n", m.ID)
		}
	}
	return nil
}

// open loads and validates the configuration and connects the repository.
func open(ctx context.Context, cfgPath string) (*config.Config, *postgres.MessageRepo, *pgxpool.Pool, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	db := &postgres.DB{Pool: pool}
	return cfg, postgres.NewMessageRepo(db), pool, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
