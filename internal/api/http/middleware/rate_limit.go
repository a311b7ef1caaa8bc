package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit throttles requests per tenant. Each tenant gets its own
// token bucket refilled at rps tokens per second with the given burst.
// Requests over the budget are rejected with 429.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	limiter := func(tenant string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[tenant]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[tenant] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiter(c.Param("tenant")).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
