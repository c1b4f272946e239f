package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter kept in Redis.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration

	// PerIP caps traffic per client address per minute.
	PerIP int64
	// ClientIP resolves the caller address. Defaults to e.RealIP.
	ClientIP func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{redis: redisClient, limit: int64(limit), window: window, PerIP: 120}
}

// Allow counts one request for key and reports whether it is within the
// limit for the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return r.hit(ctx, "ratelimit:"+key, r.limit, r.window)
}

func (r *RateLimiter) hit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= limit, nil
}

// AntiBot rejects obvious crawlers and throttles per client IP. Redis
// outages let traffic through.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"status":  "error",
				"kind":    "forbidden",
				"message": "Access denied",
			})
		}

		ip := e.RealIP
		if r.ClientIP != nil {
			ip = func() string { return r.ClientIP(e) }
		}

		allowed, err := r.hit(e.Request.Context(), "antibot:"+ip(), r.PerIP, time.Minute)
		if err != nil {
			slog.Warn("Anti-bot counter unavailable", "error", err)
			return e.Next()
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"status":  "error",
				"kind":    "rate_limited",
				"message": "Too many requests",
			})
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
