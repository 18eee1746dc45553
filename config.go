package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// config holds everything the server reads from the environment.
type config struct {
	DBURL              string
	Port               string
	Env                string
	JWTSecret          string
	JWTTTL             time.Duration
	CookieName         string
	CookieSecure       bool
	RedisAddr          string
	RedisPassword      string
	StatsCacheTTL      time.Duration
	LoginRatePerMinute int
	OpenAIBaseURL      string
}

func (c config) isProduction() bool { return c.Env == "production" }

// loadConfig reads .env (if present) and then the process environment.
// A missing .env is fine; deployed environments set variables directly.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}
	return configFromEnv()
}

func configFromEnv() (config, error) {
	cfg := config{
		DBURL:         os.Getenv("DB_URL"),
		Port:          envOr("PORT", "3000"),
		Env:           envOr("APP_ENV", "development"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CookieName:    envOr("AUTH_COOKIE_NAME", "trainfit_token"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com"),
	}

	if cfg.DBURL == "" {
		return config{}, errors.New("DB_URL is required")
	}
	if cfg.Env != "development" && cfg.Env != "production" {
		return config{}, fmt.Errorf("APP_ENV must be development or production, got %q", cfg.Env)
	}
	if len(cfg.JWTSecret) < 16 {
		return config{}, errors.New("JWT_SECRET must be at least 16 bytes")
	}

	var err error
	if cfg.JWTTTL, err = envDuration("JWT_TTL", 24*time.Hour); err != nil {
		return config{}, err
	}
	if cfg.StatsCacheTTL, err = envDuration("STATS_CACHE_TTL", 30*time.Second); err != nil {
		return config{}, err
	}
	if cfg.CookieSecure, err = envBool("AUTH_COOKIE_SECURE", cfg.isProduction()); err != nil {
		return config{}, err
	}
	if cfg.LoginRatePerMinute, err = envInt("LOGIN_RATE_PER_MINUTE", 10); err != nil {
		return config{}, err
	}
	if cfg.LoginRatePerMinute <= 0 {
		return config{}, errors.New("LOGIN_RATE_PER_MINUTE must be positive")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 30s or 24h, got %q", key, v)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
