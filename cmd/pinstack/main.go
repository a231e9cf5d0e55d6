package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pinstack/pinstack/pkg/api"
	"github.com/pinstack/pinstack/pkg/audit"
	"github.com/pinstack/pinstack/pkg/config"
	"github.com/pinstack/pinstack/pkg/observability"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/revision"
	"github.com/pinstack/pinstack/pkg/storage"
	"github.com/pinstack/pinstack/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, feed, revisions, err := openBackends(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	defer feed.Close()
	defer revisions.Close()

	reg, err := registry.New(ctx, store)
	if err != nil {
		return err
	}

	if cfg.SeedFile != "" {
		if cfg.SeedWatch {
			if err := config.WatchSeed(ctx, cfg.SeedFile, reg, logger); err != nil {
				return err
			}
		} else {
			seed, err := config.LoadSeed(cfg.SeedFile)
			if err != nil {
				return err
			}
			if err := seed.Apply(ctx, reg); err != nil {
				return err
			}
		}
		logger.WithField("file", cfg.SeedFile).Info("seed file applied")
	}

	var metrics *observability.Metrics
	promRegistry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	server := api.NewServer(reg, feed, revisions, logger, metrics)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(promRegistry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := apiServer.Shutdown(shutdownCtx)
		if herr := healthServer.Shutdown(shutdownCtx); err == nil {
			err = herr
		}
		return err
	})

	return g.Wait()
}

// openBackends builds the store, event feed, and revision store for the
// configured storage type. Postgres backends share one connection pool.
func openBackends(cfg *config.Config, logger *observability.Logger) (registry.Store, audit.Feed, revision.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.NewPostgresStore(cfg.Storage)
		if err != nil {
			return nil, nil, nil, err
		}
		feed, err := audit.NewDBFeed(pg.DB())
		if err != nil {
			return nil, nil, nil, err
		}
		revisions, err := revision.NewDBStore(pg.DB())
		if err != nil {
			return nil, nil, nil, err
		}
		var store registry.Store = pg
		if cfg.Storage.CacheEnabled {
			store = storage.NewCachedStore(pg, cfg.Storage.L1CacheSize, cfg.Storage.CacheTTL["pins"])
			logger.WithField("entries", cfg.Storage.L1CacheSize).Info("pin cache enabled")
		}
		return store, feed, revisions, nil
	default:
		return storage.NewMemoryStore(), audit.NewMemoryFeed(), revision.NewMemoryStore(), nil
	}
}
