package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/storage"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 365, cfg.Retention.Days)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PINSTACK_PORT", "8181")
	t.Setenv("PINSTACK_STORAGE_TYPE", "postgres")
	t.Setenv("PINSTACK_POSTGRES_URL", "postgres://localhost/pinstack")
	t.Setenv("PINSTACK_RETENTION_DAYS", "30")
	t.Setenv("PINSTACK_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, 30, cfg.Retention.Days)
}

func TestValidate(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("PINSTACK_STORAGE_TYPE", "postgres")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "postgres URL is required")
	})

	t.Run("same ports", func(t *testing.T) {
		t.Setenv("PINSTACK_PORT", "9090")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "must be different")
	})

	t.Run("unknown storage type", func(t *testing.T) {
		t.Setenv("PINSTACK_STORAGE_TYPE", "sqlite")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "invalid storage type")
	})

	t.Run("watch without file", func(t *testing.T) {
		t.Setenv("PINSTACK_SEED_WATCH", "true")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "requires a seed file")
	})
}

func TestSeed_Apply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paths:
  level:
    - bayou
    - bayou.seq01
  role:
    - model
packages:
  - maya
  - vray
distributions:
  - package: maya
    version: 2018.sp3
`), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	ctx := context.Background()
	reg, err := registry.New(ctx, storage.NewMemoryStore())
	require.NoError(t, err)

	require.NoError(t, seed.Apply(ctx, reg))
	assert.True(t, reg.Hierarchy().Registered(hierarchy.AxisLevel, "bayou.seq01"))
	assert.True(t, reg.Hierarchy().Registered(hierarchy.AxisRole, "model"))

	_, err = reg.Store().GetPackage(ctx, "vray")
	assert.NoError(t, err)

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, seed.Apply(ctx, reg))
	})
}

func TestLoadSeed_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packages: {not: a list}"), 0o644))

	_, err := LoadSeed(path)
	assert.Error(t, err)
}
