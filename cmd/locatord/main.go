package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cell-locator/internal/adapter/combain"
	"github.com/couchcryptid/cell-locator/internal/adapter/google"
	httpadapter "github.com/couchcryptid/cell-locator/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/cell-locator/internal/adapter/kafka"
	"github.com/couchcryptid/cell-locator/internal/adapter/memory"
	"github.com/couchcryptid/cell-locator/internal/adapter/objectstore"
	redisadapter "github.com/couchcryptid/cell-locator/internal/adapter/redis"
	"github.com/couchcryptid/cell-locator/internal/adapter/sqlstore"
	"github.com/couchcryptid/cell-locator/internal/audit"
	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/importer"
	"github.com/couchcryptid/cell-locator/internal/jobs"
	"github.com/couchcryptid/cell-locator/internal/locator"
	"github.com/couchcryptid/cell-locator/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

// towerBackend is what the service needs from a tower store.
type towerBackend interface {
	domain.TowerStore
	domain.AuditLog
	importer.TowerWriter
	httpadapter.TowerCatalog
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		slog.Error("locatord failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment is authoritative.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, clock)
	if err != nil {
		return fmt.Errorf("open %s tower store: %w", cfg.StoreDriver, err)
	}
	defer closeStore()
	logger.Info("tower store ready", "driver", cfg.StoreDriver)

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}

	sinks := audit.Multi{store}
	if cfg.AuditKafkaEnabled {
		auditWriter := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := auditWriter.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, auditWriter)
		logger.Info("kafka audit enabled", "topic", cfg.AuditKafkaTopic)
	}

	ready := readiness{store.Ping}
	var jobStore jobs.Store
	switch cfg.JobStore {
	case config.JobsRedis:
		client := redisadapter.NewClient(cfg)
		defer client.Close()
		rs := redisadapter.NewJobStore(client, cfg.JobTTL, clock)
		ready = append(ready, rs.Ping)
		jobStore = rs
	default:
		jobStore = jobs.NewRegistry(clock)
	}

	deps := httpadapter.Deps{
		Ready:    ready,
		Locator:  locator.New(store, providers, sinks, locatorConfig(cfg), logger, metrics),
		Towers:   store,
		Importer: importer.New(store, jobStore, logger, metrics),
		Jobs:     jobStore,
		Settings: httpadapter.Settings{
			ImportAPIKey:           cfg.ImportAPIKey,
			ImportBatchSize:        cfg.ImportBatchSize,
			MaxTowersPerRequest:    cfg.MaxTowersPerRequest,
			AllowExternalNeighbors: cfg.AllowExternalNeighbors,
			LocateTimeout:          cfg.LocateTimeout,
		},
	}
	objects, err := objectstore.NewClient(cfg, logger)
	switch {
	case err == nil:
		deps.Objects = objects
		logger.Info("object storage imports enabled", "endpoint", cfg.MinioEndpoint)
	case errors.Is(err, objectstore.ErrNotConfigured):
		logger.Info("object storage imports disabled")
	default:
		return fmt.Errorf("configure object storage: %w", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, deps, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()
	logger.Info("listening", "addr", cfg.HTTPAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func locatorConfig(cfg *config.Config) locator.Config {
	lc := locator.DefaultConfig()
	lc.PathLoss = geometry.PathLoss{
		TxPower:  float64(cfg.PathLossTxDefault),
		Exponent: cfg.PathLossExponent,
		RefLoss:  cfg.PathLossRefLoss,
	}
	lc.ProviderTimeout = cfg.ProviderTimeout
	lc.AuditTimeout = cfg.AuditTimeout
	lc.SignatureLimit = cfg.SignatureLimit
	return lc
}

func openStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (towerBackend, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		return memory.NewTowerStore(clock), func() {}, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, nil, err
	}
	dsn := cfg.DatabaseURL
	if dialect == sqlstore.SQLite {
		dsn = cfg.SQLitePath
	}
	store, err := sqlstore.Open(ctx, dialect, dsn, clock)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// buildProviders returns the enabled providers in PROVIDER_ORDER.
func buildProviders(cfg *config.Config, logger *slog.Logger) ([]domain.Provider, error) {
	var providers []domain.Provider
	for _, name := range cfg.ProviderOrder {
		if !cfg.ProviderEnabled(name) {
			logger.Info("tower provider disabled", "provider", name)
			continue
		}
		switch name {
		case config.ProviderCombain:
			providers = append(providers, combain.NewClient(cfg.CombainAPIKey, cfg.ProviderTimeout, logger))
		case config.ProviderGoogle:
			c, err := google.NewClient(cfg.GoogleAPIKey, "", cfg.ProviderTimeout, logger)
			if err != nil {
				return nil, fmt.Errorf("google provider: %w", err)
			}
			providers = append(providers, c)
		}
		logger.Info("tower provider enabled", "provider", name)
	}
	return providers, nil
}

// readiness reports ready when every dependency answers a ping.
type readiness []func(context.Context) error

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, ping := range r {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
