package middlewares

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter token bucket per key (member id), idle keys are evicted
type KeyedLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*limiterEntry
	entryTTL    time.Duration
	lastCleanup time.Time
}

// NewKeyedLimiter create a KeyedLimiter, perSecond <= 0 disables limiting
func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		entries:     make(map[string]*limiterEntry),
		entryTTL:    10 * time.Minute,
		lastCleanup: time.Now(),
	}
}

// Allow report whether key may perform one more action now
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= l.entryTTL {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > l.entryTTL {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// RateLimit fiber middleware keyed by caller member id, falls back to ip
func RateLimit(l *KeyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if caller, ok := CallerFrom(c); ok {
			key = caller.MemberID
		}
		if !l.Allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"code":  "rate_limited",
				"error": "too many requests, slow down",
			})
		}
		return c.Next()
	}
}
