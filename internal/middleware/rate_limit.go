package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vhvplatform/go-notification-engine/internal/cache"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	maxTrackedClients = 10000
)

// UserRateLimiter hands out one token bucket per caller. Buckets idle for
// limiterIdleTTL are forgotten.
type UserRateLimiter struct {
	limiters *cache.TTLCache[*rate.Limiter]
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewUserRateLimiter creates a new per-user rate limiter
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &UserRateLimiter{
		limiters: cache.New[*rate.Limiter](limiterIdleTTL, cache.WithMaxEntries[*rate.Limiter](maxTrackedClients)),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// GetLimiter returns the limiter for a caller, creating it on first use
func (rl *UserRateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	// refresh the idle deadline on every request
	_ = rl.limiters.Set(key, limiter)
	return limiter
}

// RateLimitMiddleware limits requests per authenticated user, falling back to
// the client IP when no identity is present
func RateLimitMiddleware(rl *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetUserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		limiter := rl.GetLimiter(key)
		if !limiter.Allow() {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath()).Inc()
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limiter)))
			abortWithError(c, apperrors.NewRateLimitedError("rate limit exceeded, please try again later"))
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(l *rate.Limiter) int {
	if l.Limit() <= 0 {
		return 1
	}
	secs := int(time.Duration(float64(time.Second) / float64(l.Limit())).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
