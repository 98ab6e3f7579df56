package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/heihuo000/message-board-system/internal/api"
	"github.com/heihuo000/message-board-system/internal/config"
	"github.com/heihuo000/message-board-system/internal/metrics"
	"github.com/heihuo000/message-board-system/internal/presence"
	"github.com/heihuo000/message-board-system/internal/store"
	"github.com/heihuo000/message-board-system/internal/wait"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	policy := store.CleanupPolicy{
		MinContentLength: cfg.CleanupMinLength,
		MaxAge:           cfg.CleanupMaxAge,
	}

	// Initialize message store: PostgreSQL when configured, SQLite otherwise
	var (
		msgStore store.MessageStore
		err      error
	)
	if cfg.DatabaseURL != "" {
		msgStore, err = store.NewPostgresStore(ctx, cfg.DatabaseURL, policy)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		msgStore, err = store.NewSQLiteStore(ctx, cfg.DBPath, policy)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.DBPath).Msg("opened SQLite store")
	}
	defer msgStore.Close()

	// Initialize presence tracker: Redis when configured, JSON file otherwise
	var tracker presence.Tracker
	if cfg.RedisURL != "" {
		tracker, err = presence.NewRedisTracker(ctx, cfg.RedisURL, cfg.PresenceTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis")
	} else {
		tracker, err = presence.NewFileTracker(cfg.PresenceFile, cfg.PresenceTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("presence file setup failed")
		}
	}
	defer tracker.Close()

	waiter := wait.NewWithInterval(msgStore, cfg.PollInterval)

	// Periodic cleanup sweep, on top of the opportunistic per-append pass
	sched := cron.New()
	_, err = sched.AddFunc(cfg.CleanupSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		res, err := msgStore.Cleanup(sweepCtx)
		if err != nil {
			logger.Error().Err(err).Msg("cleanup sweep failed")
			return
		}
		metrics.MessagesCleaned.WithLabelValues("short").Add(float64(res.Short))
		metrics.MessagesCleaned.WithLabelValues("duplicate").Add(float64(res.Duplicates))
		metrics.MessagesCleaned.WithLabelValues("expired").Add(float64(res.Expired))
		if res.Total() > 0 {
			logger.Info().
				Int64("short", res.Short).
				Int64("duplicates", res.Duplicates).
				Int64("expired", res.Expired).
				Msg("cleanup sweep removed messages")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.CleanupSchedule).Msg("invalid cleanup schedule")
	}
	sched.Start()
	defer sched.Stop()

	// Create router
	router := api.NewRouter(logger, msgStore, tracker, waiter)

	// Create server. The wait endpoint holds its response open for up to
	// ten minutes, so the write timeout must exceed the wait cap.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 11 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting message board server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
