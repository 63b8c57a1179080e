package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/pkg/errcode"
	"github.com/clavisedu/ragline/internal/pkg/response"
)

type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// RateLimit allows one request per caller per path within the window.
// Generation calls are expensive enough that a simple per-IP window is
// all the protection the API needs.
func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window: window,
		last:   make(map[string]time.Time),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, path}, "|")

	now := time.Now()
	l.mu.Lock()
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.last[key] = now
	l.sweepLocked(now)
	l.mu.Unlock()
	c.Next()
}

// sweepLocked drops entries older than two windows so the map does not
// grow with the number of distinct callers ever seen.
func (l *rateLimiter) sweepLocked(now time.Time) {
	if len(l.last) < 4096 {
		return
	}
	cutoff := now.Add(-2 * l.window)
	for k, t := range l.last {
		if t.Before(cutoff) {
			delete(l.last, k)
		}
	}
}
