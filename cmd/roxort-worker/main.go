package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askirya/roxort-app/internal/config"
	"github.com/askirya/roxort-app/internal/db"
	"github.com/askirya/roxort-app/internal/game"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema bootstrap failed", "err", err)
		os.Exit(1)
	}

	catalog, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "err", err)
		os.Exit(1)
	}
	svc := game.NewService(pool, logger, config.LoadRulesFromEnv(), catalog)

	if cfg.RunOnce {
		if err := svc.RunAutoClickTick(ctx); err != nil {
			logger.Error("auto-click tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.AutoClickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.AutoClickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := svc.RunAutoClickTick(ctx); err != nil {
				logger.Error("auto-click tick failed", "err", err)
				continue
			}
		}
	}
}
