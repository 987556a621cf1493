package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askirya/roxort-app/internal/api"
	"github.com/askirya/roxort-app/internal/auth"
	"github.com/askirya/roxort-app/internal/config"
	"github.com/askirya/roxort-app/internal/db"
	"github.com/askirya/roxort-app/internal/game"
	"github.com/askirya/roxort-app/internal/minigames"
	"github.com/askirya/roxort-app/internal/notify"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	catalog, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog failed", "err", err)
		os.Exit(1)
	}

	gameSvc := game.NewService(pool, logger, config.LoadRulesFromEnv(), catalog)

	notifier, err := notify.New(cfg.BotToken, logger)
	if err != nil {
		logger.Error("notifier init failed", "err", err)
		os.Exit(1)
	}
	if notifier != nil {
		gameSvc.SetEvents(notifier)
	}

	var verifier *auth.Verifier
	if cfg.BotToken != "" {
		verifier = auth.NewVerifier(cfg.BotToken, cfg.InitDataMaxAge)
	} else {
		logger.Warn("no bot token configured, accepting X-Debug-User auth")
	}

	miniSvc := minigames.NewService(rdb, gameSvc, logger)
	limiter := api.NewRateLimiter(rdb, logger, cfg.RateLimit, cfg.RateLimitWindow)

	server := api.New(cfg, logger, verifier, gameSvc, miniSvc, limiter)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("roxort api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
