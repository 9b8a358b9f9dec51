package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("SESSION_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "cartas", cfg.MinioBucket)
	assert.Equal(t, 10*time.Second, cfg.IdentityTimeout)
	assert.Equal(t, defaultSessionSecret, cfg.SessionSecret)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.StorageEnabled())
}

func TestLoadMinioRootFallback(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "http://minio:9000")
	t.Setenv("MINIO_ACCESS_KEY", "")
	t.Setenv("MINIO_SECRET_KEY", "")
	t.Setenv("MINIO_ROOT_USER", "root")
	t.Setenv("MINIO_ROOT_PASSWORD", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.StorageEnabled())
	assert.Equal(t, "root", cfg.MinioAccessKey)
	assert.Equal(t, "hunter2", cfg.MinioSecretKey)
}

func TestOrigins(t *testing.T) {
	cfg := &Config{AllowedOrigins: " http://a.test, ,http://b.test "}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Origins())
}
