package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/bot"
	"github.com/jensholdgaard/auction-house-bot/internal/bot/commands"
	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/health"
	"github.com/jensholdgaard/auction-house-bot/internal/leader"
	"github.com/jensholdgaard/auction-house-bot/internal/profile"
	"github.com/jensholdgaard/auction-house-bot/internal/report"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
	"github.com/jensholdgaard/auction-house-bot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/auction-house-bot/internal/store/filestore"
	_ "github.com/jensholdgaard/auction-house-bot/internal/store/postgres"
	_ "github.com/jensholdgaard/auction-house-bot/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (file, postgres or sqlite).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "opened store", slog.String("driver", cfg.Database.Driver))

	profiles := profile.New(cfg.Profile, tp.TracerProvider, tp.MeterProvider)

	var reports auction.ReportGenerator
	if cfg.Auction.AIReport {
		reports = report.New(cfg.Report, tp.TracerProvider, tp.MeterProvider)
	}

	discordBot, err := bot.New(cfg.Discord, logger)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	auctionMgr, err := auction.NewManager(cfg, auction.Deps{
		Surface:        discordBot.Surface(),
		Profiles:       profiles,
		Reports:        reports,
		Snapshots:      repos.Snapshots,
		Results:        repos.Results,
		Events:         repos.Events,
		Logger:         logger,
		TracerProvider: tp.TracerProvider,
		MeterProvider:  tp.MeterProvider,
		Clock:          clk,
	})
	if err != nil {
		return fmt.Errorf("creating auction manager: %w", err)
	}

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{Name: "database", Check: repos.Ping},
		health.Checker{Name: "osu_api", Check: profiles.Ping},
	)

	// Start HTTP server for health checks and auction status (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.HandleFunc("GET /auction", health.AuctionHandler(auctionMgr.State))
	mux.HandleFunc("GET /auction/results", health.ResultsHandler(repos.Results, logger))
	mux.HandleFunc("GET /auction/runs", health.RunsHandler(repos.Events, logger))
	mux.HandleFunc("GET /auction/runs/{id}/events", health.RunEventsHandler(repos.Events, logger))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// runBot is the core work that only the leader should run. Auctions
	// started from commands run on ctx; cancelling it pauses a running one.
	runBot := func(ctx context.Context) error {
		handlers := commands.NewHandlers(ctx, auctionMgr, discordBot.Surface(), cfg.Auction, logger, tp.TracerProvider)
		if err := discordBot.Start(ctx, handlers); err != nil {
			return fmt.Errorf("starting bot: %w", err)
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctionbot is running", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()
		logger.Info("shutting down...")

		healthHandler.SetReady(false)

		// Let a running auction reach its pause point before the session closes.
		auctionMgr.Wait()
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
		return nil
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, func(ctx context.Context) {
			if botErr := runBot(ctx); botErr != nil {
				logger.ErrorContext(ctx, "bot failed", slog.Any("error", botErr))
			}
		}, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else if err := runBot(ctx); err != nil {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
