package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("INSTANCE_ID", "pod_1.local")
	t.Setenv("REDIS_ADDRESS", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pod-1-local", cfg.InstanceID)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "websocket", cfg.Redis.KeyPrefix)
	assert.Equal(t, "redis:6379", cfg.Broadcast.Redis.Address)
	assert.Equal(t, "pod-1-local", cfg.Broadcast.Kafka.InstanceID)
	assert.Equal(t, 7*24*time.Hour, cfg.URLs.DownloadTTL)
	assert.Equal(t, 24*time.Hour, cfg.URLs.UploadTTL)
	assert.Equal(t, "resize-tasks", cfg.Kafka.TasksTopic)
	assert.Equal(t, "mongo", cfg.Store.Type)
}

func TestInstanceIDFallback(t *testing.T) {
	assert.NotEmpty(t, instanceID(""))
	assert.Equal(t, "a-b", instanceID("a:b"))
}
