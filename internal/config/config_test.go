package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "4500", cfg.HTTPPort)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, "./exports", cfg.StorageRoot)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, "http://localhost:4000/v1", cfg.UpstreamBaseURL)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 500, cfg.SyncBatchSize)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("MAX_EXPORT_AGE_DAYS", "14")
	t.Setenv("MAIN_API_TIMEOUT", "5s")
	t.Setenv("SYNC_BATCH_SIZE", "250")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 250, cfg.SyncBatchSize)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_EXPORT_AGE_DAYS", "soon")
	t.Setenv("MAIN_API_TIMEOUT", "whenever")

	cfg := Load()

	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
}
