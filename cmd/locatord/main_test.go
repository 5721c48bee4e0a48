package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/cell-locator/internal/adapter/memory"
	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunReturnsConfigError(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunReturnsStoreError(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "missing", "towers.db"))

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sqlite tower store")
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.StoreMemory}

	store, closeStore, err := openStore(context.Background(), cfg, clockwork.NewFakeClock())
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &memory.TowerStore{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &config.Config{
		StoreDriver: config.StoreSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "towers.db"),
	}

	store, closeStore, err := openStore(context.Background(), cfg, clockwork.NewFakeClock())
	require.NoError(t, err)
	defer closeStore()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestBuildProvidersFollowsOrder(t *testing.T) {
	cfg := &config.Config{
		CombainAPIKey:   "c-key",
		GoogleAPIKey:    "g-key",
		ProviderOrder:   []string{config.ProviderGoogle, config.ProviderCombain},
		ProviderTimeout: time.Second,
	}

	providers, err := buildProviders(cfg, discardLogger())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "GOOGLE", providers[0].Name())
	assert.Equal(t, "COMBAIN", providers[1].Name())
}

func TestBuildProvidersSkipsUnkeyed(t *testing.T) {
	cfg := &config.Config{
		CombainAPIKey:   "c-key",
		ProviderOrder:   []string{config.ProviderCombain, config.ProviderGoogle},
		ProviderTimeout: time.Second,
	}

	providers, err := buildProviders(cfg, discardLogger())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "COMBAIN", providers[0].Name())
}

func TestLocatorConfigFromEnv(t *testing.T) {
	cfg := &config.Config{
		PathLossTxDefault: 43,
		PathLossExponent:  3.1,
		PathLossRefLoss:   120,
		ProviderTimeout:   3 * time.Second,
		AuditTimeout:      500 * time.Millisecond,
		SignatureLimit:    7,
	}

	lc := locatorConfig(cfg)
	assert.InDelta(t, 43, lc.PathLoss.TxPower, 1e-9)
	assert.InDelta(t, 3.1, lc.PathLoss.Exponent, 1e-9)
	assert.InDelta(t, 120, lc.PathLoss.RefLoss, 1e-9)
	assert.Equal(t, 3*time.Second, lc.ProviderTimeout)
	assert.Equal(t, 500*time.Millisecond, lc.AuditTimeout)
	assert.Equal(t, 7, lc.SignatureLimit)
}

func TestReadinessStopsAtFirstFailure(t *testing.T) {
	var calls int
	ok := func(context.Context) error { calls++; return nil }
	fail := func(context.Context) error { calls++; return context.DeadlineExceeded }

	assert.NoError(t, readiness{ok, ok}.CheckReadiness(context.Background()))
	calls = 0
	assert.ErrorIs(t, readiness{fail, ok}.CheckReadiness(context.Background()), context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
