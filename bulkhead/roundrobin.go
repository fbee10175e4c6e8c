package bulkhead

import (
	"context"
	"sync"

	"github.com/Netflix/concurrency-limits-go/limiter"
)

// RoundRobinBulkhead dispatches tasks without a single-drainer gate: any
// number of goroutines may drain concurrently, each popping up to
// maxDispatchPerCall tasks and requeuing at the tail whatever it couldn't
// get a token for. This trades FIFO ordering for higher drain throughput
// under contention — a task that loses the race for a token yields its
// turn to whatever entered the backlog after it, rather than blocking the
// drainer behind it. Tokens are acquired from a limiter, same as
// FIFOBulkhead, so dispatched outcomes feed back into its algorithm.
type RoundRobinBulkhead struct {
	classifier         Classifier
	limiter            limiter.Limiter
	maxDispatchPerCall int

	mu sync.Mutex
	bl backlog
}

// NewRoundRobinBulkhead returns a RoundRobinBulkhead dispatching against
// lim, with the given backlog bound (0 = unbounded) and per-drain dispatch
// cap.
func NewRoundRobinBulkhead(lim limiter.Limiter, backlogSize, maxDispatchPerCall int, classifier Classifier) *RoundRobinBulkhead {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &RoundRobinBulkhead{
		classifier:         classifier,
		limiter:            lim,
		maxDispatchPerCall: maxDispatchPerCall,
		bl:                 backlog{size: backlogSize},
	}
}

func (b *RoundRobinBulkhead) Execute(ctx context.Context, supplier Supplier) *Future {
	fut := newFuture()
	b.mu.Lock()
	if b.bl.full() {
		b.mu.Unlock()
		fut.complete(nil, ErrBacklogFull, Dropped)
		return fut
	}
	b.bl.pushBack(&task{ctx: ctx, supplier: supplier, future: fut})
	b.mu.Unlock()

	b.drain()
	return fut
}

// BacklogLen reports how many tasks are queued (not yet dispatched).
func (b *RoundRobinBulkhead) BacklogLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bl.len()
}

func (b *RoundRobinBulkhead) drain() {
	dispatched := 0
	for dispatched < b.maxDispatchPerCall {
		b.mu.Lock()
		t, ok := b.bl.popFront()
		if !ok {
			b.mu.Unlock()
			return
		}
		token, acquired := b.limiter.Acquire(t.ctx)
		if !acquired {
			// No token free: yield this task's slot to whatever entered
			// behind it rather than blocking this drainer on it.
			b.bl.pushBack(t)
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		dispatched++
		dispatch(t, b.classifier, token, b.drain)
	}
}
