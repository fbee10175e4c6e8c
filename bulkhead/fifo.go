package bulkhead

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Netflix/concurrency-limits-go/limiter"
)

// FIFOBulkhead dispatches tasks strictly in submission order through a
// single work-in-progress-gated drainer: exactly one goroutine drains the
// backlog at a time, so dispatch order is guaranteed even though
// completions may race. maxDispatchPerCall bounds how many tasks one
// drain session dispatches before yielding, so a single caller can't starve
// other work signaling the same drain. Tokens are acquired from a limiter:
// each dispatched task's outcome is classified and fed back to the limiter
// via the Listener it returned, so the backlog's throughput adapts with the
// rest of the system instead of being pinned to a fixed concurrency count.
type FIFOBulkhead struct {
	classifier         Classifier
	limiter            limiter.Limiter
	maxDispatchPerCall int

	mu sync.Mutex
	bl backlog

	wip atomic.Int64
}

// NewFIFOBulkhead returns a FIFOBulkhead dispatching against lim, with the
// given backlog bound (0 = unbounded) and per-drain dispatch cap.
func NewFIFOBulkhead(lim limiter.Limiter, backlogSize, maxDispatchPerCall int, classifier Classifier) *FIFOBulkhead {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &FIFOBulkhead{
		classifier:         classifier,
		limiter:            lim,
		maxDispatchPerCall: maxDispatchPerCall,
		bl:                 backlog{size: backlogSize},
	}
}

// Execute appends supplier to the backlog and signals a drain. It never
// blocks the caller: if the backlog is bounded and full, the returned
// Future is already completed with ErrBacklogFull.
func (b *FIFOBulkhead) Execute(ctx context.Context, supplier Supplier) *Future {
	fut := newFuture()
	b.mu.Lock()
	if b.bl.full() {
		b.mu.Unlock()
		fut.complete(nil, ErrBacklogFull, Dropped)
		return fut
	}
	b.bl.pushBack(&task{ctx: ctx, supplier: supplier, future: fut})
	b.mu.Unlock()

	b.signalDrain()
	return fut
}

// BacklogLen reports how many tasks are queued (not yet dispatched).
func (b *FIFOBulkhead) BacklogLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bl.len()
}

// signalDrain increments the work-in-progress counter; the goroutine that
// observes it transition from 0 runs the drain loop on everyone's behalf.
// Any goroutine whose increment lands on a nonzero value trusts that the
// current drainer will see its work before exiting.
func (b *FIFOBulkhead) signalDrain() {
	if b.wip.Add(1) == 1 {
		b.drainLoop()
	}
}

func (b *FIFOBulkhead) drainLoop() {
	missed := int64(1)
	for {
		b.dispatchBatch()
		missed = b.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

// dispatchBatch peeks and dispatches up to maxDispatchPerCall tasks,
// stopping early if the backlog empties or the limiter rejects the head
// task's acquire — a rejected head is left in place rather than skipped, so
// FIFO order is preserved.
func (b *FIFOBulkhead) dispatchBatch() int64 {
	var dispatched int64
	for dispatched < int64(b.maxDispatchPerCall) {
		b.mu.Lock()
		t, ok := b.bl.peekFront()
		if !ok {
			b.mu.Unlock()
			return dispatched
		}
		token, acquired := b.limiter.Acquire(t.ctx)
		if !acquired {
			b.mu.Unlock()
			return dispatched
		}
		b.bl.popFront()
		b.mu.Unlock()
		dispatched++
		dispatch(t, b.classifier, token, b.signalDrain)
	}
	return dispatched
}
