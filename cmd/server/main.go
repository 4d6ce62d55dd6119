package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotcal/internal/api"
	"slotcal/internal/config"
	"slotcal/internal/database"
	"slotcal/internal/domain"
	"slotcal/internal/events"
	"slotcal/internal/hourglass"
	"slotcal/internal/logging"
	"slotcal/internal/metrics"
	"slotcal/internal/notify"
	"slotcal/internal/service"
	"slotcal/internal/sheets"
	"slotcal/internal/store"
	"slotcal/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	logger.Info().Str("version", cfg.App.Version).Msg("starting slotcal server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Realtime store: Redis primary, in-memory fallback so the calendar
	// degrades instead of going dark when Redis is unreachable.
	redisClient := store.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, fallback store active")
	}
	pingCancel()

	realtimeStore := store.NewFailoverStore(
		store.NewRedisStore(redisClient),
		store.NewMemoryStore(),
		logger,
	)

	scheduler := hourglass.New(cfg.Hourglass, logger)

	snapshot := service.NewSnapshot(realtimeStore, logger)
	if err := snapshot.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start snapshot")
	}
	defer snapshot.Stop()

	var mirror domain.SheetsWriter
	if cfg.Google.CredentialsFile != "" && cfg.Google.BookingsSpreadSheetID != "" {
		m, err := sheets.NewMirror(cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadSheetID)
		if err != nil {
			logger.Warn().Err(err).Msg("sheets mirror unavailable")
		} else {
			mirror = m
			logger.Info().Msg("sheets mirror enabled")
		}
	}

	repairWorker := worker.NewRepairWorker(db, realtimeStore, scheduler, mirror, redisClient, worker.RetryPolicy{}, logger)
	go repairWorker.Start(ctx)

	bus := events.NewEventBus()
	if cfg.Notifications.Enabled {
		bot, err := notify.NewBot(cfg.Notifications.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifier unavailable")
		} else {
			notify.NewNotifier(bot, cfg.Notifications.ChatID, logger).Attach(bus)
			logger.Info().Msg("telegram notifications enabled")
		}
	}

	policy := service.DatePolicy{
		MinAdvanceDays: cfg.Booking.MinAdvanceDays,
		MaxBookingDays: cfg.Booking.MaxBookingDays,
	}
	coordinator := service.NewCoordinator(realtimeStore, scheduler, policy, service.CoordinatorOpts{
		Snapshot: snapshot,
		Journal:  db,
		Repair:   repairWorker,
		Events:   bus,
	}, logger)

	departments, err := config.LoadDepartments(cfg.Booking.DepartmentsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load departments")
	}

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", addr).Msg("metrics listening")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backup.Start(ctx)
	}

	courseTTL := time.Duration(cfg.Booking.CourseCacheTTLSecond) * time.Second
	server := api.NewHTTPServer(cfg.API, coordinator, snapshot, scheduler, departments, courseTTL, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	logger.Info().Msg("bye")
}
