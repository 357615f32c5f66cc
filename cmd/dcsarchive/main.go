package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jarvisms/godcs/dcs"
	"github.com/jarvisms/godcs/internal/archive"
	"github.com/jarvisms/godcs/internal/config"
	"github.com/jarvisms/godcs/internal/middleware"
	"github.com/jarvisms/godcs/internal/scheduler"
)

// Command dcsarchive periodically copies metering data from a DCS
// server into PostgreSQL.
//
// The daemon supports:
//   - Incremental sync resuming from the newest stored reading
//   - Configurable backfill depth for first-time channels
//   - Windowed fetching so large histories never exceed server limits
//   - Cron-style scheduling
//   - Prometheus metrics
//
// Usage:
//
//	dcsarchive [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.Logging)

	channels, err := parseChannels(cfg.Archive.Channels)
	if err != nil {
		logger.Fatalf("Invalid channel configuration: %v", err)
	}

	middleware.Register(prometheus.DefaultRegisterer)

	repo, err := archive.NewPostgresRepo(cfg.Database.ConnString())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.MaxConnections > 0 {
		repo.SetMaxConnections(cfg.Database.MaxConnections)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := dcs.Connect(ctx, cfg.DCS.URL, cfg.DCS.Username, cfg.DCS.Password,
		dcs.WithLogger(logger),
		dcs.WithRateLimit(cfg.DCS.RateLimit, cfg.DCS.RateLimitBurst),
		dcs.WithMetadataCache(cfg.DCS.CacheSize),
	)
	if err != nil {
		logger.Fatalf("Failed to sign in to DCS server: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"url":      cfg.DCS.URL,
		"username": session.Username(),
		"role":     session.Role(),
		"channels": len(channels),
	}).Info("Connected to DCS server")

	archiver := archive.New(session, repo, logger, archive.Options{
		Channels:  channels,
		Period:    dcs.Period(cfg.Archive.Period),
		MaxWindow: time.Duration(cfg.Archive.MaxWindowDays) * 24 * time.Hour,
		Backfill:  time.Duration(cfg.Archive.BackfillDays) * 24 * time.Hour,
		BatchSize: cfg.Archive.BatchSize,
	})
	sched := scheduler.NewScheduler(ctx, archiver, logger)

	errChan := make(chan error, 1)

	// Bootstrap: bring all channels up to date immediately rather than
	// waiting for the first scheduled run.
	go func() {
		if err := archiver.Sync(ctx); err != nil {
			logger.WithError(err).Error("Initial sync finished with errors")
		}
	}()

	if err := sched.Start(cfg.Archive.Schedule); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	metricsSrv := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.WithField("addr", cfg.Metrics.Addr).Info("Starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, initiating shutdown")
	case err := <-errChan:
		logger.WithError(err).Error("Service error, initiating shutdown")
	}

	// Graceful shutdown
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}

	session.SignOut(shutdownCtx)
	if err := repo.Close(); err != nil {
		logger.WithError(err).Warn("Database close failed")
	}
	logger.Info("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func parseChannels(raw []string) ([]dcs.Channel, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	channels := make([]dcs.Channel, 0, len(raw))
	for _, s := range raw {
		ch := dcs.Channel(s)
		if _, err := ch.Kind(); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
