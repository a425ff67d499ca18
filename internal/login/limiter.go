package login

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig configures the per client login rate.
type LimiterConfig struct {
	Rate  float64       `help:"Sustained login attempts per second per client IP." default:"0.2" env:"RATE"`
	Burst int           `help:"Login attempts a client IP may make in a burst." default:"5" env:"BURST"`
	Idle  time.Duration `help:"How long an idle client IP is remembered." default:"10m" env:"IDLE"`
}

// Limiter is a token bucket per client key.
type Limiter struct {
	mu        sync.Mutex
	cfg       LimiterConfig
	clients   map[string]*client
	lastSweep time.Time
	now       func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter. A zero Rate disables limiting.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether key may make another attempt now.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.cfg.Rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.cfg.Idle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.cfg.Idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}
