package research

import (
	"context"
	"time"
)

// Budget is a wall-clock bound on how long a phase may keep scheduling new
// work. It is read-only after creation; time.Now carries a monotonic reading,
// so wall-clock adjustments do not move the deadline.
//
// Deadline checks are cooperative: the orchestrator polls Expired at defined
// checkpoints and never preempts an in-flight fetch, so a phase may overrun
// by up to one fetch timeout.
type Budget struct {
	deadline time.Time
}

// NewBudget returns a budget expiring d from now. Negative durations clamp
// to an already-expired budget.
func NewBudget(d time.Duration) Budget {
	if d < 0 {
		d = 0
	}
	return Budget{deadline: time.Now().Add(d)}
}

// Remaining reports how much budget is left, never below zero.
func (b Budget) Remaining() time.Duration {
	r := time.Until(b.deadline)
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the budget has run out.
func (b Budget) Expired() bool {
	return !time.Now().Before(b.deadline)
}

// BatchContext derives a context for one concurrent fetch batch. The extra
// grace covers a fetch already started at the deadline, making the overrun
// bound explicit.
func (b Budget) BatchContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, b.deadline.Add(grace))
}
