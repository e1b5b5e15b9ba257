package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the caller's address.
func ByClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// ByClientAndParam charges requests to the caller's address within one value
// of a route parameter, e.g. one bucket per device per session.
func ByClientAndParam(param string) KeyFunc {
	return func(c *gin.Context) string {
		return ByClientIP(c) + "|" + c.Param(param)
	}
}

// sweepThreshold is the bucket count above which idle buckets are dropped.
const sweepThreshold = 10000

// SimpleTokenBucket is an in-memory rate limiter. Limits are per process; a
// multi-instance deployment gets one bucket per instance.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	key      KeyFunc
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates a per-IP limiter with capacity tokens and
// rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		key:      ByClientIP,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// WithKey switches the limiter to charge requests by key.
func (l *SimpleTokenBucket) WithKey(key KeyFunc) *SimpleTokenBucket {
	l.key = key
	return l
}

// GinMiddleware returns gin handler enforcing the limit. A non-positive rate
// disables limiting.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		if !l.allow(l.key(c)) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		if len(l.state) >= sweepThreshold {
			l.sweep(now)
		}
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets that would have refilled completely by now; they are
// indistinguishable from a fresh bucket.
func (l *SimpleTokenBucket) sweep(now time.Time) {
	full := time.Duration(float64(l.capacity) / float64(l.rate) * float64(time.Minute))
	for k, b := range l.state {
		if now.Sub(b.last) >= full {
			delete(l.state, k)
		}
	}
}
