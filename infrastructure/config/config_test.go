package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-key-at-least-32-bytes-long"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gatekey?sslmode=disable")
	t.Setenv("JWT_SECRET", testJWTSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gatekey", cfg.JWTIssuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.RateLimitEnabled)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.CORSEnabled)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", testJWTSecret)

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gatekey")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestLoad_WeakJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gatekey")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.ErrorIs(t, err, ErrWeakJWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "600")
	t.Setenv("JWT_REFRESH_TOKEN_TTL", "86400")
	t.Setenv("JWT_ISSUER", "my-issuer")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("CORS_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "my-issuer", cfg.JWTIssuer)
	assert.False(t, cfg.CookieSecure)
	assert.True(t, cfg.CORSEnabled)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "fifteen-minutes")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidTokenTTL)
}
