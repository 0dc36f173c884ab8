package fetcher

import (
	"context"
	"testing"
	"time"
)

func TestLimiterMinDelaySpacing(t *testing.T) {
	t.Parallel()

	const delay = 50 * time.Millisecond
	l := NewLimiter(LimiterConfig{MinDelay: delay})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Wait(ctx, "https://example.com"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	// K fetches with min delay d must take at least (K-1)*d.
	if elapsed := time.Since(start); elapsed < 3*delay {
		t.Fatalf("4 waits took %v, want at least %v", elapsed, 3*delay)
	}
}

func TestLimiterWindowCap(t *testing.T) {
	t.Parallel()

	const window = 300 * time.Millisecond
	l := NewLimiter(LimiterConfig{MaxPerWindow: 2, Window: window})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "https://example.com"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	// The third request must wait for the first to age out of the window.
	if elapsed := time.Since(start); elapsed < window {
		t.Fatalf("3 waits with cap 2 took %v, want at least %v", elapsed, window)
	}
}

func TestLimiterWindowCapRespectsContext(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimiterConfig{MaxPerWindow: 1, Window: time.Minute})
	ctx := context.Background()
	if err := l.Wait(ctx, "https://example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := l.Wait(cancelCtx, "https://example.com"); err == nil {
		t.Fatal("expected context error while window is full")
	}
}

func TestLimiterUnlimitedIsImmediate(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimiterConfig{})
	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := l.Wait(context.Background(), "https://example.com"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("unlimited limiter waited %v", elapsed)
	}
}
