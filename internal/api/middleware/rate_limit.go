package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultRateLimitKeyPrefix namespaces rate limit windows in redis.
const DefaultRateLimitKeyPrefix = "roomgate:ratelimit"

// clientLimiter is the in-memory bucket of one key.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RedisRateLimiter implements a sliding window shared by every instance.
type RedisRateLimiter struct {
	client            *redis.Client
	keyPrefix         string
	requestsPerMinute int
	windowSize        time.Duration
	now               func() time.Time
}

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, requestsPerMinute int) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = DefaultRateLimitKeyPrefix
	}
	return &RedisRateLimiter{
		client:            client,
		keyPrefix:         keyPrefix,
		requestsPerMinute: requestsPerMinute,
		windowSize:        time.Minute,
		now:               time.Now,
	}
}

// Allow records the request and reports whether the window still has room.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.keyPrefix, key)
	now := rl.now()
	windowStart := now.Add(-rl.windowSize)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	count := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	pipe.Expire(ctx, redisKey, rl.windowSize+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis rate limiting error: %w", err)
	}

	return count.Val() < int64(rl.requestsPerMinute), nil
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// KeyGenerator derives the bucket key; defaults to the client IP.
	KeyGenerator func(c *gin.Context) string
	// Redis switches to the shared sliding window when set.
	Redis *redis.Client
	// KeyPrefix namespaces redis keys.
	KeyPrefix string
	// Logger receives limiter backend failures.
	Logger *slog.Logger
	// Now overrides the clock of in-memory buckets.
	Now func() time.Time
	// CleanupInterval specifies how often idle limiters are dropped (default: 5 minutes).
	CleanupInterval time.Duration
	// MaxAge is how long a limiter may stay idle before cleanup (default: 10 minutes).
	MaxAge time.Duration
	// RequestsPerMinute is the sustained rate and the burst per key.
	RequestsPerMinute int
}

// RateLimitManager owns the limiters and their cleanup goroutine.
type RateLimitManager struct {
	mu          sync.Mutex
	limiters    map[string]*clientLimiter
	redis       *RedisRateLimiter
	cleanupDone chan struct{}
	cancel      context.CancelFunc
	config      RateLimitConfig
}

// NewRateLimitManager creates a manager; Shutdown must be called to stop cleanup.
func NewRateLimitManager(ctx context.Context, config RateLimitConfig) *RateLimitManager {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 10 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = ClientIPKey
	}

	managerCtx, cancel := context.WithCancel(ctx)
	manager := &RateLimitManager{
		limiters:    make(map[string]*clientLimiter),
		config:      config,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}

	if config.Redis != nil {
		manager.redis = NewRedisRateLimiter(config.Redis, config.KeyPrefix, config.RequestsPerMinute)
	}

	go manager.cleanup(managerCtx)

	return manager
}

// Allow checks if a request should be allowed for the given key.
func (rm *RateLimitManager) Allow(ctx context.Context, key string) (bool, error) {
	if rm.redis != nil {
		return rm.redis.Allow(ctx, key)
	}
	return rm.allowLocal(key), nil
}

func (rm *RateLimitManager) allowLocal(key string) bool {
	now := rm.config.Now()

	rm.mu.Lock()
	entry, ok := rm.limiters[key]
	if !ok {
		perSecond := rate.Limit(float64(rm.config.RequestsPerMinute) / 60)
		entry = &clientLimiter{limiter: rate.NewLimiter(perSecond, rm.config.RequestsPerMinute)}
		rm.limiters[key] = entry
	}
	entry.lastAccess = now
	rm.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// evictIdle drops limiters untouched since cutoff and returns how many were removed.
func (rm *RateLimitManager) evictIdle(cutoff time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	removed := 0
	for key, entry := range rm.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rm.limiters, key)
			removed++
		}
	}
	return removed
}

func (rm *RateLimitManager) cleanup(ctx context.Context) {
	defer close(rm.cleanupDone)

	ticker := time.NewTicker(rm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.evictIdle(rm.config.Now().Add(-rm.config.MaxAge))
		}
	}
}

// Shutdown stops the cleanup goroutine and waits for it.
func (rm *RateLimitManager) Shutdown() {
	rm.cancel()
	<-rm.cleanupDone
}

// Stats returns statistics about the rate limiter.
func (rm *RateLimitManager) Stats() RateLimitStats {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return RateLimitStats{
		Limiters:    len(rm.limiters),
		Distributed: rm.redis != nil,
	}
}

// RateLimitStats holds statistics about rate limiting.
type RateLimitStats struct {
	Limiters    int  `json:"limiters"`
	Distributed bool `json:"distributed"`
}

// Middleware rejects requests over the limit with 429 {"error":"rate_limited"}.
// Backend failures fail open.
func (rm *RateLimitManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rm.config.KeyGenerator(c)

		allowed, err := rm.Allow(c.Request.Context(), key)
		if err != nil {
			rm.config.Logger.Warn("Rate limiter unavailable, allowing request",
				"request_id", GetRequestID(c),
				"error", err,
			)
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", "60")
			abortWithCode(c, http.StatusTooManyRequests, "rate_limited")
			return
		}

		c.Next()
	}
}

// ClientIPKey buckets requests by client address.
func ClientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}
