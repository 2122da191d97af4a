package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "roulette.db", cfg.SQLitePath)
	assert.Equal(t, 500*time.Millisecond, cfg.AutoSaveDebounce)
	assert.Equal(t, 10*time.Second, cfg.SaveTimeout)
	assert.Equal(t, time.Hour, cfg.LiveIdleTimeout)
	assert.Equal(t, 10*time.Minute, cfg.JanitorInterval)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("ROULETTE_HTTP_ADDR", ":9090")
	t.Setenv("ROULETTE_STORAGE_DRIVER", "postgres")
	t.Setenv("ROULETTE_POSTGRES_DSN", "postgres://localhost/roulette")
	t.Setenv("ROULETTE_AUTOSAVE_DEBOUNCE", "0s")
	t.Setenv("ROULETTE_LOG_VERBOSE", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/roulette", cfg.PostgresDSN)
	assert.Zero(t, cfg.AutoSaveDebounce)
	assert.True(t, cfg.LogVerbose)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ROULETTE_HTTP_ADDR", ":9090")

	cfg, err := Load([]string{"-addr", ":7070", "-storage", "memory"})
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"unknown driver", map[string]string{"ROULETTE_STORAGE_DRIVER": "mysql"}, nil},
		{"postgres without dsn", map[string]string{"ROULETTE_STORAGE_DRIVER": "postgres"}, nil},
		{"sqlite without path", nil, []string{"-sqlite-path", ""}},
		{"bad duration", map[string]string{"ROULETTE_SAVE_TIMEOUT": "soon"}, nil},
		{"zero timeout", map[string]string{"ROULETTE_SAVE_TIMEOUT": "0s"}, nil},
		{"negative debounce", nil, []string{"-autosave-debounce", "-1s"}},
		{"unknown flag", nil, []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}
