package api

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig bounds login attempts per username.
type ThrottleConfig struct {
	RatePerMinute   int
	Burst           int
	CleanupInterval time.Duration
}

// DefaultThrottleConfig allows 10 attempts per minute with a burst of 5.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		RatePerMinute:   10,
		Burst:           5,
		CleanupInterval: 5 * time.Minute,
	}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginThrottle keeps one token bucket per username. Idle buckets are
// dropped after twice the cleanup interval.
type LoginThrottle struct {
	limit    rate.Limit
	burst    int
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewLoginThrottle starts the background cleanup loop. Call Stop to end it.
func NewLoginThrottle(cfg ThrottleConfig) *LoginThrottle {
	def := DefaultThrottleConfig()
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = def.RatePerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	t := &LoginThrottle{
		limit:    rate.Limit(float64(cfg.RatePerMinute) / 60.0),
		burst:    cfg.Burst,
		interval: cfg.CleanupInterval,
		limiters: make(map[string]*keyLimiter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// Allow consumes one attempt for the key and reports whether it was allowed.
// Keys are compared case-insensitively.
func (t *LoginThrottle) Allow(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	now := t.now()

	t.mu.Lock()
	kl, ok := t.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = kl
	}
	kl.lastAccess = now
	t.mu.Unlock()

	return kl.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (t *LoginThrottle) Stop() {
	t.once.Do(func() { close(t.stopCh) })
}

func (t *LoginThrottle) cleanupLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCh:
			return
		}
	}
}

func (t *LoginThrottle) cleanup() {
	ttl := t.interval * 2
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, kl := range t.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(t.limiters, key)
		}
	}
}
