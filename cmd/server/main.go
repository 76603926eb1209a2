// Command smsrouter starts the message router and its transport webhooks.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/smsrouter/internal/commands"
	"github.com/and161185/smsrouter/internal/config"
	"github.com/and161185/smsrouter/internal/migrate"
	"github.com/and161185/smsrouter/internal/repository/postgres"
	"github.com/and161185/smsrouter/internal/router"
	"github.com/and161185/smsrouter/internal/server"
	"github.com/and161185/smsrouter/internal/transport"
	"github.com/and161185/smsrouter/internal/transport/kannel"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until interrupted.
func main() {
	cfgPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	peerRepo := postgres.NewPeerRepo(db)
	messageRepo := postgres.NewMessageRepo(db)

	// Router with the built-in command set
	rt := router.New(messageRepo, logger)
	if err := commands.Register(rt); err != nil {
		logger.Fatal("register commands", zap.Error(err))
	}

	registry := transport.NewRegistry(logger)
	rt.SetDispatcher(registry)

	srv := server.New(cfg.Server.Addr, logger)

	// Transports
	for name, tc := range cfg.Transports {
		base := transport.NewBase(name, peerRepo, messageRepo, rt, logger)
		k := kannel.New(base, messageRepo, kannel.Config{
			SMSURL:    tc.SMSURL,
			DLRURL:    tc.DLRURL,
			Timeout:   tc.Timeout(),
			QueueSize: tc.QueueSize,
		}, logger)
		if err := registry.Register(k); err != nil {
			logger.Fatal("register transport", zap.String("transport", name), zap.Error(err))
		}
		srv.Mount(name, k.Handle)
	}

	if err := registry.StartAll(ctx); err != nil {
		logger.Fatal("start transports", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		registry.StopAll(shutdownCtx)
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
