package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Poller.Interval)
	assert.Equal(t, 7*24*time.Hour, cfg.Poller.Retention)
	assert.Equal(t, 75, cfg.Generation.MaxCandidates)
	assert.False(t, cfg.Generation.Enabled)
	assert.Contains(t, cfg.GetDSN(), "dbname=cascade_engine")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("GENERATION_MAX_CANDIDATES", "40")
	t.Setenv("GENERATION_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Poller.Interval)
	assert.Equal(t, 40, cfg.Generation.MaxCandidates)
	assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.EqualError(t, err, "JWT_SECRET is required")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GENERATION_ENABLED", "true")
	t.Setenv("TEXTGEN_API_KEY", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadLogsMissingDotEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	_, err = Load()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), "no .env file loaded")
}
