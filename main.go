package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trainfit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer l.Sync() //nolint:errcheck // stderr sync fails on some platforms
	logger = l

	if cfg.isProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := getDBPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("db pool ready")

	cache := newCacheStore(cfg.RedisAddr, cfg.RedisPassword, cfg.StatsCacheTTL)
	defer cache.close() //nolint:errcheck // shutting down

	authLimiter := newIPRateLimiter(cfg.LoginRatePerMinute)
	done := make(chan struct{})
	defer close(done)
	go authLimiter.runCleanup(time.Minute, done)

	h := &Handler{db: pool, cache: cache, cfg: cfg, openAIBaseURL: cfg.OpenAIBaseURL}
	router := h.newRouter(newMetrics(), authLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
