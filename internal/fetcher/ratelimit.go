package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/delverbot/delver/internal/metrics"
)

// LimiterConfig controls the fetch rate limiter.
type LimiterConfig struct {
	// MaxPerWindow caps requests inside any rolling Window. Zero or
	// negative disables the window cap.
	MaxPerWindow int
	// Window is the rolling window length. Defaults to one minute.
	Window time.Duration
	// MinDelay is the minimum spacing between consecutive requests.
	MinDelay time.Duration
}

// Limiter enforces a rolling-window request cap plus a minimum inter-request
// delay. It is safe for concurrent use: the window state is guarded by a
// mutex so parallel phase workers can share one Fetcher.
type Limiter struct {
	mu     sync.Mutex
	sent   []time.Time
	max    int
	window time.Duration

	spacing *rate.Limiter
}

// NewLimiter builds a Limiter from cfg.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	var spacing *rate.Limiter
	if cfg.MinDelay > 0 {
		spacing = rate.NewLimiter(rate.Every(cfg.MinDelay), 1)
	}
	return &Limiter{
		max:     cfg.MaxPerWindow,
		window:  cfg.Window,
		spacing: spacing,
	}
}

// Wait blocks until both the window cap and the minimum-delay constraint
// permit another request, or the context is done. The url is used only for
// the delay metric label.
func (l *Limiter) Wait(ctx context.Context, url string) error {
	start := time.Now()

	if l.spacing != nil {
		if err := l.spacing.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit spacing wait: %w", err)
		}
	}

	if err := l.waitWindow(ctx); err != nil {
		return err
	}

	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(url, waited)
	}
	return nil
}

func (l *Limiter) waitWindow(ctx context.Context) error {
	if l.max <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)
		if len(l.sent) < l.max {
			l.sent = append(l.sent, now)
			l.mu.Unlock()
			return nil
		}
		// Window full: sleep until the oldest entry ages out.
		wakeAt := l.sent[0].Add(l.window)
		l.mu.Unlock()

		timer := time.NewTimer(time.Until(wakeAt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit window wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// prune drops window entries older than the rolling window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}
