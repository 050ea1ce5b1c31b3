package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Not parallel: Load reads the process environment and working directory.
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "parcel.db", cfg.Store.Path)
	assert.Equal(t, "https://data.cityofnewyork.us", cfg.Sources.BaseURL)
	assert.Equal(t, "64uk-42ks", cfg.Sources.Datasets.Pluto)
	assert.Equal(t, 100, cfg.Enrich.BatchSize)
	assert.Equal(t, 5, cfg.Enrich.Concurrency)
	assert.Equal(t, 30, cfg.Enrich.StalenessDays)
	assert.Equal(t, 3, cfg.Enrich.ErrorRetryDays)
	assert.Equal(t, 3, cfg.Enrich.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PARCEL_STORE_DRIVER", "postgres")
	t.Setenv("PARCEL_ENRICH_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 25, cfg.Enrich.BatchSize)
}

func TestInitLogger_RejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}
