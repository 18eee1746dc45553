package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_BurstThenRefill(t *testing.T) {
	l := newIPRateLimiter(3)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4", now), "request %d", i+1)
	}
	assert.False(t, l.allow("1.2.3.4", now))
	// Other IPs have their own bucket.
	assert.True(t, l.allow("5.6.7.8", now))

	// 3 per minute refills one token every 20s.
	assert.True(t, l.allow("1.2.3.4", now.Add(20*time.Second)))
	assert.False(t, l.allow("1.2.3.4", now.Add(20*time.Second)))
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	l := newIPRateLimiter(5)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.allow("old", now)
	l.allow("fresh", now.Add(50*time.Second))

	removed := l.cleanup(time.Minute, now.Add(90*time.Second))
	assert.Equal(t, 1, removed)
	assert.NotContains(t, l.limiters, "old")
	assert.Contains(t, l.limiters, "fresh")
}

func TestIPRateLimiter_RunCleanupStops(t *testing.T) {
	l := newIPRateLimiter(5)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		l.runCleanup(time.Millisecond, done)
		close(finished)
	}()
	close(done)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("runCleanup did not return after done was closed")
	}
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newIPRateLimiter(2)
	router := gin.New()
	router.POST("/login", l.middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := doRequest(router, http.MethodPost, "/login", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(router, http.MethodPost, "/login", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many requests", errorMessage(t, w))
}
