package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	burstLimitMaxClients = 4096
	burstLimitIdleAfter  = 3 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one rate limiter per client IP. The map is bounded:
// once it reaches capacity, entries idle longer than burstLimitIdleAfter are
// evicted, and if every entry is active the whole map is reset rather than
// letting it grow without limit.
type limiterPool struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

func newLimiterPool(rps rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		rps:     rps,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if cl, ok := p.clients[ip]; ok {
		cl.lastSeen = now
		return cl.limiter
	}

	if len(p.clients) >= burstLimitMaxClients {
		p.evictIdle(now)
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(p.rps, p.burst), lastSeen: now}
	p.clients[ip] = cl
	return cl.limiter
}

func (p *limiterPool) evictIdle(now time.Time) {
	cutoff := now.Add(-burstLimitIdleAfter)
	for ip, cl := range p.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(p.clients, ip)
		}
	}
	// All entries active: start over instead of growing unbounded. A fresh
	// limiter grants one extra burst per client, which the quota layer absorbs.
	if len(p.clients) >= burstLimitMaxClients {
		p.clients = make(map[string]*clientLimiter)
	}
}

// BurstLimit rejects request floods from a single client before they reach
// the quota layer. This is a transport guard only; the quota reconciler
// remains the authority on how many generations a user gets.
func BurstLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)

	return func(c *gin.Context) {
		if !pool.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
