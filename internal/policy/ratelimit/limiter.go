// Package ratelimit paces requests with a per-host courtesy delay.
//
// ModeInterval keeps a token bucket per host: consecutive fetches are at
// least Delay apart, so a fetch that already took longer than Delay is not
// slowed further. ModePause sleeps the full Delay before every fetch
// regardless of how long ago the previous one finished.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects how Delay is applied.
type Mode string

const (
	// ModeInterval enforces a minimum gap between fetches to one host.
	ModeInterval Mode = "interval"
	// ModePause sleeps Delay before every fetch.
	ModePause Mode = "pause"
)

// ParseMode maps a configuration string to a Mode. Empty means ModeInterval.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeInterval:
		return ModeInterval, nil
	case ModePause:
		return ModePause, nil
	default:
		return "", fmt.Errorf("unknown pacing mode %q", s)
	}
}

// Config holds pacing configuration.
type Config struct {
	// Mode defaults to ModeInterval.
	Mode Mode
	// Delay is the minimum gap between two fetches against one host, or the
	// pause before each fetch in ModePause. Zero disables pacing.
	Delay time.Duration
	// Burst is the number of fetches allowed back to back before the delay
	// applies. Values <= 0 mean 1. Ignored in ModePause.
	Burst int
	// OnDelay, when set, is called with the host and the time spent blocked.
	OnDelay func(host string, waited time.Duration)
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	pause    time.Duration
	onDelay  func(string, time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		onDelay:  cfg.OnDelay,
	}
	if cfg.Mode == ModePause && cfg.Delay > 0 {
		l.pause = cfg.Delay
	}
	return l
}

// Wait blocks until a fetch against rawURL's host is allowed.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	if l.pause > 0 {
		return l.sleep(ctx, host)
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.onDelay != nil {
		l.onDelay(host, waited)
	}
	return nil
}

func (l *Limiter) sleep(ctx context.Context, host string) error {
	timer := time.NewTimer(l.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing pause: %w", ctx.Err())
	case <-timer.C:
	}
	if l.onDelay != nil {
		l.onDelay(host, l.pause)
	}
	return nil
}
