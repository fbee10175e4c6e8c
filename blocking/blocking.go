package blocking

import (
	"context"
	"fmt"
	"time"

	"github.com/Netflix/concurrency-limits-go/limiter"
)

// BlockingLimiter decorates a limiter.Limiter so Acquire waits, up to a
// fixed per-call timeout, for admission instead of failing fast. A zero
// timeout means wait indefinitely.
type BlockingLimiter struct {
	*monitor
	timeout time.Duration
}

// NewBlockingLimiter returns a BlockingLimiter that waits up to timeout per
// Acquire call. It errors if timeout exceeds the sanity bound, since that
// almost always indicates a units mistake (e.g. nanoseconds passed where
// a time.Duration was expected) rather than an intentional long wait.
func NewBlockingLimiter(delegate limiter.Limiter, timeout time.Duration) (*BlockingLimiter, error) {
	if timeout > maxSaneTimeout {
		return nil, fmt.Errorf("blocking: timeout %s exceeds sanity bound %s", timeout, maxSaneTimeout)
	}
	return &BlockingLimiter{monitor: newMonitor(delegate), timeout: timeout}, nil
}

// Acquire blocks until admitted, ctx is done, or timeout elapses.
func (l *BlockingLimiter) Acquire(ctx context.Context) (limiter.Listener, bool) {
	var deadline time.Time
	if l.timeout > 0 {
		deadline = time.Now().Add(l.timeout)
	}
	return l.acquireUntil(ctx, deadline)
}

func (l *BlockingLimiter) EstimatedLimit() int { return l.delegate.EstimatedLimit() }
func (l *BlockingLimiter) Inflight() int       { return l.delegate.Inflight() }
func (l *BlockingLimiter) Name() string        { return l.delegate.Name() }
func (l *BlockingLimiter) Stats() limiter.Stats { return l.delegate.Stats() }

// DeadlineLimiter decorates a limiter.Limiter so Acquire waits until a
// fixed wall-clock deadline instead of a per-call timeout budget.
type DeadlineLimiter struct {
	*monitor
	deadline time.Time
}

// NewDeadlineLimiter returns a DeadlineLimiter that gives up admission once
// deadline has passed.
func NewDeadlineLimiter(delegate limiter.Limiter, deadline time.Time) *DeadlineLimiter {
	return &DeadlineLimiter{monitor: newMonitor(delegate), deadline: deadline}
}

// Acquire blocks until admitted, ctx is done, or the deadline passes.
func (l *DeadlineLimiter) Acquire(ctx context.Context) (limiter.Listener, bool) {
	return l.acquireUntil(ctx, l.deadline)
}

func (l *DeadlineLimiter) EstimatedLimit() int { return l.delegate.EstimatedLimit() }
func (l *DeadlineLimiter) Inflight() int       { return l.delegate.Inflight() }
func (l *DeadlineLimiter) Name() string        { return l.delegate.Name() }
func (l *DeadlineLimiter) Stats() limiter.Stats { return l.delegate.Stats() }
