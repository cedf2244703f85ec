package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client key. Buckets of clients
// that stay quiet for the idle period are evicted.
type ClientLimiter struct {
	buckets *cache.Cache
	r       rate.Limit
	b       int
}

// NewClientLimiter allows r events per second with bursts of b for every client.
func NewClientLimiter(r rate.Limit, b int, idle time.Duration) *ClientLimiter {
	return &ClientLimiter{
		buckets: cache.New(idle, idle),
		r:       r,
		b:       b,
	}
}

// Bucket returns the token bucket of key, creating it on first use.
// Concurrent first requests from one client share a single bucket.
func (l *ClientLimiter) Bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		bucket := v.(*rate.Limiter)
		// Replace keeps the same bucket and pushes its expiry out.
		_ = l.buckets.Replace(key, bucket, cache.DefaultExpiration)
		return bucket
	}

	fresh := rate.NewLimiter(l.r, l.b)
	if err := l.buckets.Add(key, fresh, cache.DefaultExpiration); err == nil {
		return fresh
	}
	if v, ok := l.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	return fresh
}

// Clients returns the number of buckets currently held.
func (l *ClientLimiter) Clients() int {
	return l.buckets.ItemCount()
}

// RateLimiter rejects requests once the client IP has spent its bucket.
func RateLimiter(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Bucket(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
