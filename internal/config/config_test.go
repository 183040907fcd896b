package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/possync")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.Equal(t, StrategyServerWins, cfg.Strategy)
	assert.Equal(t, 1000, cfg.EntityWeights["order"])
	assert.Equal(t, 300, cfg.EntityWeights["category"])
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsBadStrategy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_STRATEGY", "coin_flip")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsBadBatchSize(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_BATCH_SIZE", "lots")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_EntityWeightsFileOverlays(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inventory: 1200\ngiftcard: 700\n"), 0o600))
	t.Setenv("ENTITY_WEIGHTS_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.EntityWeights["inventory"], "override applies")
	assert.Equal(t, 700, cfg.EntityWeights["giftcard"], "new type added")
	assert.Equal(t, 1000, cfg.EntityWeights["order"], "defaults survive")
}
