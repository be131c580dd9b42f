package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"repost_bot/internal/allowlist"
	"repost_bot/internal/bot"
	"repost_bot/internal/cache"
	"repost_bot/internal/config"
	"repost_bot/internal/detector"
	"repost_bot/internal/discord"
	"repost_bot/internal/filter"
	"repost_bot/internal/fingerprint"
	"repost_bot/internal/scheduler"
	"repost_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	seen, err := cache.New(cfg.CacheLimit)
	if err != nil {
		log.Error("create cache", "limit", cfg.CacheLimit, "error", err)
		os.Exit(1)
	}
	engine := detector.New(
		fingerprint.New(fingerprint.WithTrackingParams(cfg.TrackingParams...)),
		seen,
		allowlist.New(),
		cfg.Monitoring(),
	)

	rules, err := filter.Compile(cfg.FeedInclude, cfg.FeedExclude)
	if err != nil {
		log.Error("compile feed rules", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(cfg.FeedURLs, engine, rules, log)
	sched.SetTickInterval(cfg.FeedInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	switch cfg.Gateway {
	case config.GatewayDiscord:
		gw, err := discord.New(cfg.DiscordToken, engine, store, cfg, log)
		if err != nil {
			log.Error("create discord gateway", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return gw.Run(ctx) })
	default:
		b, err := bot.New(cfg.TelegramBotToken, engine, store, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			b.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	log.Info("starting bot",
		"gateway", cfg.Gateway,
		"cache_limit", seen.Limit(),
		"ignored_type", cfg.IgnoredType,
		"workers", cfg.Workers,
		"feeds", len(cfg.FeedURLs),
	)

	if err := g.Wait(); err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}

	log.Info("bot stopped")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
