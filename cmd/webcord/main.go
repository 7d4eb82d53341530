// Package main contains the entrypoint for the webcord bridge: a single
// Discord channel or DM exposed to a password-gated web chat client over
// HTTP polling.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/webcord/internal/bridge"
	"github.com/edgard/webcord/internal/config"
	"github.com/edgard/webcord/internal/discord"
	"github.com/edgard/webcord/internal/logger"
	"github.com/edgard/webcord/internal/resilience"
	"github.com/edgard/webcord/internal/server"
)

const presencePollInterval = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all components (config, logger, discord
// session, bridge, presence scheduler, http server), handles graceful
// shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	ds, err := discord.New(cfg.Discord.Token, log)
	if err != nil {
		log.Error("Failed to create discord session", "error", err)
		return 1
	}

	br := bridge.New(ds, bridge.Options{
		Password:    cfg.Bridge.Password,
		ChannelID:   cfg.Discord.ChannelID,
		HistoryDays: cfg.Bridge.HistoryDays,
	}, log)
	ds.OnMessageCreate(br.HandleIncoming)

	if err := ds.Open(ctx); err != nil {
		log.Error("Failed to connect to discord", "error", err)
		return 1
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Warn("Error closing discord session", "error", err)
		}
	}()

	// History seed failures leave an empty history rather than aborting
	// startup; the bridge still relays live traffic.
	seedCtx, cancelSeed := context.WithTimeout(ctx, 30*time.Second)
	if err := resilience.WithRetry(seedCtx, br.LoadHistory, resilience.DefaultRetryConfig()); err != nil {
		log.Warn("History seed failed, starting with empty history", "error", err)
	}
	cancelSeed()

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	_, err = sched.NewJob(
		gocron.DurationJob(presencePollInterval),
		gocron.NewTask(func() { br.PresenceTick(ctx) }),
		gocron.WithName("presence-poll"),
	)
	if err != nil {
		log.Error("Failed to schedule presence poll", "error", err)
		return 1
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Warn("Error stopping scheduler", "error", err)
		}
	}()

	srv := server.New(br, server.Options{
		Addr:            cfg.Server.Addr,
		StaticDir:       cfg.Server.StaticDir,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log)

	log.Info("Starting bridge...")
	runErr := srv.Run(ctx)
	log.Info("Server stopped. Shutting down...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bridge stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Shutdown complete")
	return 0
}
