package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// TokenBucket is an in-memory per-client rate limiter. Buckets refill
// continuously at rate tokens per minute up to capacity.
type TokenBucket struct {
	capacity float64
	rate     float64
	key      KeyFunc
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at perMinute.
// A nil key charges the client IP.
func NewTokenBucket(capacity, perMinute int, key KeyFunc) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if key == nil {
		key = ClientIP
	}
	return &TokenBucket{
		capacity: float64(capacity),
		rate:     float64(perMinute),
		key:      key,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// ClientIP keys by the request's client address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// GinMiddleware rejects requests over the limit with 429 and Retry-After.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.allow(l.key(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.state[key] = b
	}
	b.tokens = math.Min(l.capacity, b.tokens+now.Sub(b.last).Minutes()*l.rate)
	b.last = now
	if b.tokens < 1 {
		if l.rate <= 0 {
			return false, time.Minute
		}
		missing := 1 - b.tokens
		return false, time.Duration(missing / l.rate * float64(time.Minute))
	}
	b.tokens--
	return true, 0
}

// Sweep drops buckets idle long enough to be full again.
func (l *TokenBucket) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return
	}
	idle := time.Duration(l.capacity / l.rate * float64(time.Minute))
	now := l.now()
	for k, b := range l.state {
		if now.Sub(b.last) >= idle {
			delete(l.state, k)
		}
	}
}
