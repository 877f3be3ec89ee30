package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("DB_MAX_CONNS", "")
	t.Setenv("OBJECT_STORE", "")
	t.Setenv("QUEUE_BACKEND", "")

	cfg := Load()
	require.Equal(t, "8001", cfg.HTTPPort)
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, 1, cfg.DBMinConns)
	require.Equal(t, 20, cfg.DBMaxConns)
	require.Equal(t, 5, cfg.DBConnectAttempts)
	require.Equal(t, 2*time.Second, cfg.DBConnectBackoff)
	require.Equal(t, "supabase", cfg.ObjectStore)
	require.Equal(t, "memory", cfg.QueueBackend)
	require.Equal(t, "faces", cfg.SupabaseBucket)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/att")
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "750ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "off")

	cfg := Load()
	require.True(t, cfg.Production())
	require.Equal(t, "9000", cfg.HTTPPort)
	require.Equal(t, "postgres://u:p@db:5432/att", cfg.DatabaseURL)
	require.Equal(t, 8, cfg.DBMaxConns)
	require.Equal(t, 750*time.Millisecond, cfg.DBAcquireTimeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.CORSAllowCredentials)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "lots")
	t.Setenv("DB_CONNECT_BACKOFF", "soon")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "maybe")

	cfg := Load()
	require.Equal(t, 20, cfg.DBMaxConns)
	require.Equal(t, 2*time.Second, cfg.DBConnectBackoff)
	require.True(t, cfg.CORSAllowCredentials)
}
