package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter for each client IP.
type IPRateLimiter struct {
	ips     map[string]*visitor
	mu      sync.Mutex
	r       rate.Limit
	b       int
	maxIdle time.Duration
}

// NewIPRateLimiter creates a new IPRateLimiter. Limiters idle for longer than
// maxIdle are evicted on the next lookup.
func NewIPRateLimiter(r rate.Limit, b int, maxIdle time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		ips:     make(map[string]*visitor),
		r:       r,
		b:       b,
		maxIdle: maxIdle,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating it if needed.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	now := time.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.ips[ip]
	if !exists {
		i.evictLocked(now)
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Len returns the number of tracked clients.
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

func (i *IPRateLimiter) evictLocked(now time.Time) {
	if i.maxIdle <= 0 {
		return
	}
	for ip, v := range i.ips {
		if now.Sub(v.lastSeen) > i.maxIdle {
			delete(i.ips, ip)
		}
	}
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
