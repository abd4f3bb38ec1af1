package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, AlertsInline, cfg.Alerts.Mode)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.True(t, cfg.Realtime.RequireToken)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, StorageLocal, cfg.Storage.Driver)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SWEEPER_INTERVAL", "15s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REALTIME_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
}

func TestLoadS3Storage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "gigboard-attachments")
	t.Setenv("S3_ENDPOINT", "http://localhost:4566")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageS3, cfg.Storage.Driver)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, "gigboard-attachments", cfg.S3.Bucket)
	assert.True(t, cfg.S3.UsePathStyle)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing jwt secret",
			env:  map[string]string{},
			want: "jwt secret is required",
		},
		{
			name: "unknown store driver",
			env:  map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "mongo"},
			want: `unknown store driver "mongo"`,
		},
		{
			name: "queue without redis",
			env:  map[string]string{"JWT_SECRET": "s", "ALERTS_MODE": "queue"},
			want: "alerts queue mode requires redis",
		},
		{
			name: "queue with memory store",
			env:  map[string]string{"JWT_SECRET": "s", "ALERTS_MODE": "queue", "REDIS_ENABLED": "true"},
			want: "alerts queue mode requires the postgres store",
		},
		{
			name: "minio without credentials",
			env:  map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "minio"},
			want: "minio access key id is required",
		},
		{
			name: "s3 without bucket",
			env:  map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "s3"},
			want: "s3 bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
