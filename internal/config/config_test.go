package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("STORAGE_DRIVER", StorageMemory)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.JWT.Secret)
	assert.Equal(t, 72*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 3, cfg.Chat.ConflictRetries)
	assert.Equal(t, int64(10<<20), cfg.Chat.MaxUploadBytes)
}

func TestNewConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := NewConfig()
	assert.Error(t, err)
}
