package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

// limiterIdleTTL evicts limiters of clients that went quiet.
const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limiters *gocache.Cache
	r        rate.Limit
	b        int
}

// NewIPRateLimiter creates a limiter allowing r requests per second with
// bursts of b.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if b <= 0 {
		b = 1
	}
	return &IPRateLimiter{
		limiters: gocache.New(limiterIdleTTL, limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// Allow consumes a token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiter(ip).Allow()
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	if existing, ok := l.limiters.Get(ip); ok {
		l.limiters.SetDefault(ip, existing)
		return existing.(*rate.Limiter)
	}
	created := rate.NewLimiter(l.r, l.b)
	if err := l.limiters.Add(ip, created, gocache.DefaultExpiration); err != nil {
		// lost the race; use the winner
		if existing, ok := l.limiters.Get(ip); ok {
			return existing.(*rate.Limiter)
		}
	}
	return created
}

// RateLimit rejects clients exceeding the limiter with 429.
func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		response.Error(c, appErrors.ErrTooManyRequests)
		c.Abort()
	}
}
