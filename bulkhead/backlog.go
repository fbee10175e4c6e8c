// Package bulkhead implements bounded, backlog-based dispatch: callers
// submit work that runs once a concurrency token is available rather than
// being admitted or rejected synchronously.
package bulkhead

import (
	"context"
	"errors"

	"github.com/Netflix/concurrency-limits-go/limiter"
)

// ErrBacklogFull is returned when a task is submitted to a bulkhead whose
// bounded backlog is already at capacity.
var ErrBacklogFull = errors.New("bulkhead: backlog full")

// Supplier is the unit of work a bulkhead dispatches once a token is free.
type Supplier func(ctx context.Context) (any, error)

// Future is returned immediately by Execute; callers use Wait to block for
// the eventual result.
type Future struct {
	done    chan struct{}
	value   any
	err     error
	outcome Outcome
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(value any, err error, outcome Outcome) {
	f.value = value
	f.err = err
	f.outcome = outcome
	close(f.done)
}

// Wait blocks until the task completes or ctx is done, whichever first.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome reports how the classifier judged the task's result. Only valid
// after Wait returns.
func (f *Future) Outcome() Outcome { return f.outcome }

type task struct {
	ctx      context.Context
	supplier Supplier
	future   *Future
}

// backlog is the bounded FIFO queue shared by both dispatcher variants.
// It's accessed only while the owner holds its own mutex — this type adds
// no locking of its own, just the push/pop/pushFront primitives spec.md's
// dispatcher skeleton names.
type backlog struct {
	items []*task
	size  int // 0 means unbounded
}

func (bl *backlog) full() bool {
	return bl.size > 0 && len(bl.items) >= bl.size
}

func (bl *backlog) pushBack(t *task) {
	bl.items = append(bl.items, t)
}

func (bl *backlog) pushFront(t *task) {
	bl.items = append([]*task{t}, bl.items...)
}

func (bl *backlog) popFront() (*task, bool) {
	if len(bl.items) == 0 {
		return nil, false
	}
	t := bl.items[0]
	bl.items = bl.items[1:]
	return t, true
}

// peekFront returns the head task without removing it, so a caller can try
// to acquire a token for it before committing to dispatch.
func (bl *backlog) peekFront() (*task, bool) {
	if len(bl.items) == 0 {
		return nil, false
	}
	return bl.items[0], true
}

func (bl *backlog) len() int { return len(bl.items) }

// dispatch runs t's supplier on its own goroutine, classifies the result via
// the exception classifier, notifies the token listener accordingly so the
// outcome feeds back into the limiter's algorithm, completes the future, and
// invokes afterRelease so the caller's own drain/signalDrain protocol can
// pick up more backlog work.
func dispatch(t *task, classifier Classifier, token limiter.Listener, afterRelease func()) {
	go func() {
		value, err := t.supplier(t.ctx)
		outcome := classify(classifier, err)
		switch outcome {
		case Ignore:
			token.OnIgnore()
		case Dropped:
			token.OnDropped()
		default:
			token.OnSuccess()
		}
		t.future.complete(value, err, outcome)
		if afterRelease != nil {
			afterRelease()
		}
	}()
}
