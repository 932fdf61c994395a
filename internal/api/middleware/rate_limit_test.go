package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimitManager_RefillsOverTime(t *testing.T) {
	clock := &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 2,
		Now:               clock.Now,
	})
	defer manager.Shutdown()

	allow := func() bool {
		allowed, err := manager.Allow(context.Background(), "key")
		require.NoError(t, err)
		return allowed
	}

	assert.True(t, allow())
	assert.True(t, allow())
	assert.False(t, allow(), "bucket should be empty")

	clock.Advance(30 * time.Second)
	assert.True(t, allow())
	assert.False(t, allow())

	clock.Advance(10 * time.Minute)
	assert.True(t, allow())
	assert.True(t, allow())
	assert.False(t, allow(), "refill must not exceed the burst")
}

func TestRateLimitManager_EvictsIdleLimiters(t *testing.T) {
	clock := &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 1,
		Now:               clock.Now,
	})
	defer manager.Shutdown()

	for _, key := range []string{"a", "b"} {
		_, err := manager.Allow(context.Background(), key)
		require.NoError(t, err)
	}

	clock.Advance(time.Hour)
	_, err := manager.Allow(context.Background(), "c")
	require.NoError(t, err)

	removed := manager.evictIdle(clock.Now().Add(-time.Minute))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, manager.Stats().Limiters)
}

func TestRateLimitManager_Shutdown(t *testing.T) {
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 10,
		CleanupInterval:   10 * time.Millisecond,
	})

	allowed, err := manager.Allow(context.Background(), "key")
	require.NoError(t, err)
	assert.True(t, allowed)

	manager.Shutdown()

	select {
	case <-manager.cleanupDone:
	case <-time.After(time.Second):
		t.Fatal("Cleanup goroutine did not finish within timeout")
	}
}

func newRateLimitedRouter(manager *RateLimitManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(), manager.Middleware())
	router.GET("/auth/github/login", func(c *gin.Context) {
		c.Status(http.StatusFound)
	})
	return router
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{RequestsPerMinute: 3})
	defer manager.Shutdown()

	router := newRateLimitedRouter(manager)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		assert.Equal(t, http.StatusFound, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/auth/github/login", nil)
	other.RemoteAddr = "203.0.113.9:4000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, other)
	assert.Equal(t, http.StatusFound, w.Code, "other clients have their own bucket")
}

func TestRateLimitMiddleware_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 2,
		Redis:             client,
	})
	defer manager.Shutdown()

	router := newRateLimitedRouter(manager)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}, codes)
	assert.True(t, manager.Stats().Distributed)
	assert.True(t, mr.Exists(DefaultRateLimitKeyPrefix+":ip:192.0.2.1"))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 1,
		Redis:             client,
		Logger:            discardLogger(),
	})
	defer manager.Shutdown()

	router := newRateLimitedRouter(manager)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		assert.Equal(t, http.StatusFound, w.Code)
	}
}

func TestRateLimitManager_Concurrency(t *testing.T) {
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 1000,
		KeyGenerator: func(c *gin.Context) string {
			return c.GetHeader("X-Test-Key")
		},
	})
	defer manager.Shutdown()

	router := newRateLimitedRouter(manager)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(routineID int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				req := httptest.NewRequest(http.MethodGet, "/auth/github/login", nil)
				req.Header.Set("X-Test-Key", fmt.Sprintf("routine-%d-req-%d", routineID, j))
				router.ServeHTTP(httptest.NewRecorder(), req)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, manager.Stats().Limiters)
}
