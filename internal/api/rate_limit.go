package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端 IP 的令牌桶限流,参数可热更新
type RateLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewRateLimiter 创建限流器,rps <= 0 表示不限流
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	l := &RateLimiter{limiters: make(map[string]*rate.Limiter)}
	l.Update(rps, burst)
	return l
}

// Update 更新限流参数,已有客户端的令牌桶同步调整
func (l *RateLimiter) Update(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	l.rps = rate.Limit(rps)
	l.burst = burst
	for _, limiter := range l.limiters {
		limiter.SetLimit(l.rps)
		limiter.SetBurst(l.burst)
	}
}

// Allow 判断客户端本次请求是否放行
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	if l.rps <= 0 {
		l.mu.Unlock()
		return true
	}
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware 限流中间件
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		c.Next()
	}
}
