package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL - через столько простоя лимитер пользователя выкидывается
const limiterIdleTTL = 10 * time.Minute

type pooledLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool - по лимитеру на пользователя; простаивающие удаляются
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*pooledLimiter
	rps       float64
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	ttl := limiterIdleTTL
	// Лимитер нельзя выкинуть раньше, чем он полностью восстановится
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
		ttl = refill
	}
	return &limiterPool{
		m:         make(map[string]*pooledLimiter),
		rps:       rps,
		burst:     burst,
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) >= p.ttl {
		p.sweep(now)
	}
	if l, ok := p.m[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := &pooledLimiter{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst), lastSeen: now}
	p.m[key] = l
	return l.limiter
}

// sweep вызывается под p.mu
func (p *limiterPool) sweep(now time.Time) {
	for key, l := range p.m {
		if now.Sub(l.lastSeen) >= p.ttl {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

// RateLimit ограничивает частоту запросов пользователя. Ставится после AuthMiddleware
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / pool.rps)))
	return func(c *gin.Context) {
		key, ok := UserID(c)
		if !ok {
			key = c.ClientIP()
		}
		if !pool.get(key).Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
