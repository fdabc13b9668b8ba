package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "feed-control", cfg.AppName)
	assert.Equal(t, "development", cfg.ENV)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9990, cfg.Amazon.BatchSize)
	assert.Equal(t, 20, cfg.Amazon.PollMaxAttempts)
	assert.Equal(t, 3, cfg.Amazon.SubmitMaxRetries)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxTries)
	assert.True(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Security.AuthEnabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("AMAZON_POLL_MAX_ATTEMPTS", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Amazon.PollMaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
}
