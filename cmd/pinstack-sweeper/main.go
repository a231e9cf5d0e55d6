package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/pinstack/pinstack/pkg/audit"
	"github.com/pinstack/pinstack/pkg/config"
	"github.com/pinstack/pinstack/pkg/observability"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	policy := audit.RetentionPolicy{RetentionDays: cfg.Retention.Days}
	if !policy.Enabled() {
		logger.Info("retention sweeping is disabled, nothing to do")
		return
	}
	if cfg.Storage.PostgresURL == "" {
		logger.Error("PINSTACK_POSTGRES_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("failed to ping database")
		os.Exit(1)
	}

	feed, err := audit.NewDBFeed(db)
	if err != nil {
		logger.WithError(err).Error("failed to open event feed")
		os.Exit(1)
	}

	if *runOnce {
		if err := sweep(context.Background(), feed, policy, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		// failures are logged inside; the next scheduled run retries
		_ = sweep(ctx, feed, policy, logger)
	}); err != nil {
		logger.WithError(err).Error("invalid cron schedule")
		os.Exit(1)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"schedule":       cfg.Retention.Schedule,
		"retention_days": cfg.Retention.Days,
	}).Info("retention sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
}

func sweep(ctx context.Context, feed audit.Feed, policy audit.RetentionPolicy, logger *observability.Logger) error {
	cutoff := policy.Horizon(time.Now().UTC())
	removed, err := feed.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.WithError(err).Error("retention sweep failed")
		return err
	}
	logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}).Info("retention sweep completed")
	return nil
}
