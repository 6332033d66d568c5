package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnTengye/solarflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time
	rate        int
	window      time.Duration
	now         func() time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:      make(map[string]int),
		windowStart: time.Now(),
		rate:        rate,
		window:      window,
		now:         time.Now,
	}
}

// Allow records one request for key and reports whether it is within the
// limit, with the time left in the current window.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.counts = make(map[string]int)
		l.windowStart = now
	}
	remaining := l.window - now.Sub(l.windowStart)

	if l.counts[key] >= l.rate {
		return false, remaining
	}
	l.counts[key]++
	return true, remaining
}

// RateLimit limits requests per client IP. A non-positive rate disables it.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	if rate <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		allowed, retryAfter := limiter.Allow(c.ClientIP())
		if !allowed {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", c.ClientIP())
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
				"retry": true,
			})
			return
		}
		c.Next()
	}
}
