// Package main is the entrypoint for the relaybot daemon: the Telegram
// long-poll loop, the job pipeline and the local admin API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"relaybot/internal/relaybot/bot"
	"relaybot/internal/relaybot/fetch"
	"relaybot/internal/relaybot/pipeline"
	"relaybot/internal/relaybot/probe"
	"relaybot/internal/relaybot/progress"
	"relaybot/internal/relaybot/server"
	"relaybot/internal/relaybot/state"
	"relaybot/internal/relaybot/telegram"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env first so LoadConfig sees its variables
	_ = godotenv.Load()

	cfg, configPath, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configureLogging(cfg)
	log := logger.WithField("component", "main")
	if configPath != "" {
		log.Info("config loaded", "file", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := fetch.NewMegaClient()
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	log.Info("authorized on telegram", "account", api.Self.UserName)

	registry := state.NewRegistry()

	pl := pipeline.New(pipeline.Options{
		Fetcher:          fetcher,
		Relay:            telegram.NewRelay(api, cfg.Bot.Token),
		Prober:           probe.NewFFProbe(),
		Reporter:         progress.NewReporter(cfg.Jobs.UpdateInterval.Std()),
		StabilityWindow:  cfg.Jobs.StabilityWindow.Std(),
		StabilityPoll:    cfg.Jobs.StabilityPoll.Std(),
		DrainPoll:        cfg.Jobs.DrainPoll.Std(),
		MaxRelayBytes:    cfg.Jobs.MaxRelayBytes,
		RetrievalRetries: cfg.Jobs.RetrievalRetries,
		BarLength:        cfg.Progress.BarLength,
		MaxConcurrent:    int64(cfg.Jobs.MaxConcurrent),
	})

	if cfg.Cleanup.SweepOnStart {
		if n := state.SweepWorkdirs(cfg.Jobs.DownloadDir, cfg.Cleanup.MaxAge.Std()); n > 0 {
			log.Info("swept stale downloads on start", "removed", n)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	b := bot.New(api, registry, pl, cfg)
	g.Go(func() error { return b.Run(ctx) })

	if cfg.Server.Enabled {
		srv := server.New(registry, cfg)
		g.Go(func() error { return srv.Run(ctx) })
	}

	g.Go(func() error {
		cleanupLoop(ctx, registry, cfg)
		return nil
	})

	err = g.Wait()
	log.Info("daemon stopped")
	return err
}

// cleanupLoop reaps aged jobs and orphaned download folders on a timer
// until ctx is cancelled. Interval zero disables the timer; the sweep
// then only runs at startup and on explicit /clear or API requests.
func cleanupLoop(ctx context.Context, registry *state.Registry, cfg *config.Config) {
	interval := cfg.Cleanup.Interval.Std()
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	log := logger.WithField("component", "cleanup")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maxAge := cfg.Cleanup.MaxAge.Std()
			removed := registry.ReapOlderThan(maxAge)
			removed += state.SweepWorkdirs(cfg.Jobs.DownloadDir, maxAge)
			if removed > 0 {
				log.Info("periodic cleanup", "removed", removed)
			}
		}
	}
}

func configureLogging(cfg *config.Config) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logger.INFO
	}

	var out io.Writer = os.Stdout
	switch cfg.Logging.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			out = f
		}
	}

	logger.Configure(logger.Config{
		Level:  level,
		Output: out,
		Format: cfg.Logging.Format,
	})
}
