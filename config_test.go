package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBaseEnv sets the required variables and clears the optional ones so the
// host environment cannot leak into a test.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_URL", "postgres://localhost/trainfit")
	t.Setenv("JWT_SECRET", testSecret)
	for _, key := range []string{
		"PORT", "APP_ENV", "AUTH_COOKIE_NAME", "AUTH_COOKIE_SECURE", "REDIS_ADDR", "REDIS_PASSWORD",
		"JWT_TTL", "STATS_CACHE_TTL", "LOGIN_RATE_PER_MINUTE", "OPENAI_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, "trainfit_token", cfg.CookieName)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 10, cfg.LoginRatePerMinute)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAIBaseURL)
}

func TestConfigFromEnv_ProductionSecureCookieDefault(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.isProduction())
	assert.True(t, cfg.CookieSecure)

	t.Setenv("AUTH_COOKIE_SECURE", "false")
	cfg, err = configFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.CookieSecure)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("STATS_CACHE_TTL", "5s")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, 3, cfg.LoginRatePerMinute)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestConfigFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing db url", "DB_URL", "", "DB_URL is required"},
		{"short secret", "JWT_SECRET", "short", "JWT_SECRET must be at least 16 bytes"},
		{"unknown env", "APP_ENV", "staging", "APP_ENV must be development or production"},
		{"bad ttl", "JWT_TTL", "tomorrow", "JWT_TTL must be a positive duration"},
		{"negative ttl", "STATS_CACHE_TTL", "-5s", "STATS_CACHE_TTL must be a positive duration"},
		{"bad bool", "AUTH_COOKIE_SECURE", "maybe", "AUTH_COOKIE_SECURE must be true or false"},
		{"bad int", "LOGIN_RATE_PER_MINUTE", "ten", "LOGIN_RATE_PER_MINUTE must be an integer"},
		{"zero rate", "LOGIN_RATE_PER_MINUTE", "0", "LOGIN_RATE_PER_MINUTE must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := configFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
