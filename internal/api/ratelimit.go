package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/apperror"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter is an in-process token bucket per key.
type RateLimiter struct {
	rate    int
	burst   int
	buckets map[string]*bucket
	mu      sync.Mutex
	done    chan struct{}
	now     func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

func NewRateLimiter(rate, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup drops buckets idle for ten minutes.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	for key, b := range rl.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.burst <= 0 {
		return false
	}

	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{tokens: float64(rl.burst - 1), lastCheck: now}
		return true
	}

	b.tokens = min(float64(rl.burst), b.tokens+now.Sub(b.lastCheck).Seconds()*float64(rl.rate))
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RedisRateLimiter is a sliding-window limiter shared by every API replica.
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, rate int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   rate,
		window: window,
		prefix: "clearframe:ratelimit:",
	}
}

func (rl *RedisRateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - int64(rl.window)
	redisKey := rl.prefix + key

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}
	return countCmd.Val() <= int64(rl.rate), nil
}

// Allow fails open when Redis is unreachable.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	ok, err := rl.allow(ctx, key)
	return ok || err != nil
}

// HybridRateLimiter uses Redis when it answers and the in-process bucket
// otherwise.
type HybridRateLimiter struct {
	redis    *RedisRateLimiter
	inMemory *RateLimiter
}

func NewHybridRateLimiter(redisClient *redis.Client, rate, burst int) *HybridRateLimiter {
	var redisRL *RedisRateLimiter
	if redisClient != nil {
		redisRL = NewRedisRateLimiter(redisClient, burst, time.Second*time.Duration(max(1, burst/max(rate, 1))))
	}
	return &HybridRateLimiter{
		redis:    redisRL,
		inMemory: NewRateLimiter(rate, burst),
	}
}

func (hl *HybridRateLimiter) Allow(ctx context.Context, key string) bool {
	if hl.redis != nil {
		if ok, err := hl.redis.allow(ctx, key); err == nil {
			return ok
		}
	}
	return hl.inMemory.Allow(ctx, key)
}

func (hl *HybridRateLimiter) Stop() {
	hl.inMemory.Stop()
}

// RateLimit keys by authenticated user, else by client address.
func RateLimit(limiter Limiter, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if userID, ok := GetUserID(r.Context()); ok {
				key = userID.String()
			}

			if !limiter.Allow(r.Context(), route+":"+key) {
				metrics.RecordRateLimitHit(route)
				apperror.WriteJSON(w, r, apperror.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
