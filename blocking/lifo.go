package blocking

import (
	"context"
	"sync"
	"time"

	"github.com/Netflix/concurrency-limits-go/limiter"
)

// lifoWaiter is a rendezvous holder queued while its caller blocks for a
// permit. deposit() is called at most once, by the completion that hands it
// a listener; a waiter that times out or is interrupted is unlinked without
// a deposit. The waiting goroutine only ever reads after <-done closes.
type lifoWaiter struct {
	ctx  context.Context
	done chan struct{}

	listener limiter.Listener
	ok       bool
	queued   bool // guarded by LifoBlockingLimiter.mu

	prev, next *lifoWaiter
}

func (w *lifoWaiter) deposit(l limiter.Listener, ok bool) {
	w.listener = l
	w.ok = ok
	close(w.done)
}

// LifoBlockingLimiter bounds the backlog that forms once the delegate is
// saturated and serves it LIFO: the most recently queued waiter is the
// first one re-offered a freed permit. Under sustained overload this wastes
// less work than FIFO, since older waiters are the ones most likely to have
// already blown their own deadline.
type LifoBlockingLimiter struct {
	delegate       limiter.Limiter
	backlogSize    int
	backlogTimeout func(ctx context.Context) time.Duration

	mu          sync.Mutex
	head, tail  *lifoWaiter // head = front = next to serve; tail = oldest
	backlogUsed int
}

// NewLifoBlockingLimiter returns a LifoBlockingLimiter with the given bound
// on queued waiters and a per-request timeout function (so callers can
// derive the wait budget from the request's own context deadline).
func NewLifoBlockingLimiter(delegate limiter.Limiter, backlogSize int, backlogTimeout func(ctx context.Context) time.Duration) *LifoBlockingLimiter {
	return &LifoBlockingLimiter{
		delegate:       delegate,
		backlogSize:    backlogSize,
		backlogTimeout: backlogTimeout,
	}
}

func (l *LifoBlockingLimiter) EstimatedLimit() int { return l.delegate.EstimatedLimit() }
func (l *LifoBlockingLimiter) Inflight() int       { return l.delegate.Inflight() }
func (l *LifoBlockingLimiter) Name() string        { return l.delegate.Name() }
func (l *LifoBlockingLimiter) Stats() limiter.Stats { return l.delegate.Stats() }

func (l *LifoBlockingLimiter) Acquire(ctx context.Context) (limiter.Listener, bool) {
	if lst, ok := l.delegate.Acquire(ctx); ok {
		return l.wrap(lst), true
	}

	l.mu.Lock()
	if l.backlogUsed >= l.backlogSize {
		l.mu.Unlock()
		return nil, false
	}
	l.backlogUsed++
	w := &lifoWaiter{ctx: ctx, done: make(chan struct{}), queued: true}
	l.pushFront(w)
	l.mu.Unlock()

	timeout := l.backlogTimeout(ctx)
	var timer *time.Timer
	var timerC <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timerC = timer.C
		defer timer.Stop()
	}

	select {
	case <-w.done:
		if w.ok {
			return l.wrap(w.listener), true
		}
		return nil, false
	case <-timerC:
		l.mu.Lock()
		if w.queued {
			l.removeFromTail(w)
			w.queued = false
			l.backlogUsed--
		}
		l.mu.Unlock()
		// A concurrent completion may have deposited a listener between the
		// timer firing and us taking the lock; honor it if so rather than
		// leaking the permit.
		select {
		case <-w.done:
			if w.ok {
				return l.wrap(w.listener), true
			}
		default:
		}
		return nil, false
	case <-ctxDoneChan(ctx):
		l.mu.Lock()
		if w.queued {
			l.removeFromHead(w)
			w.queued = false
			l.backlogUsed--
		}
		l.mu.Unlock()
		select {
		case <-w.done:
			if w.ok {
				return l.wrap(w.listener), true
			}
		default:
		}
		return nil, false
	}
}

func ctxDoneChan(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	return ctx.Done()
}

// pushFront must be called with l.mu held.
func (l *LifoBlockingLimiter) pushFront(w *lifoWaiter) {
	w.next = l.head
	if l.head != nil {
		l.head.prev = w
	}
	l.head = w
	if l.tail == nil {
		l.tail = w
	}
}

// removeFromTail removes a timed-out waiter. The list is doubly linked and
// w is known, so it is unlinked directly in O(1) with no walk from either
// end; it shares unlink with removeFromHead. Must be called with l.mu held.
func (l *LifoBlockingLimiter) removeFromTail(w *lifoWaiter) {
	l.unlink(w)
}

// removeFromHead removes an interrupted waiter, unlinking it directly in
// O(1) exactly as removeFromTail does. Must be called with l.mu held.
func (l *LifoBlockingLimiter) removeFromHead(w *lifoWaiter) {
	l.unlink(w)
}

func (l *LifoBlockingLimiter) unlink(w *lifoWaiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else if l.head == w {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else if l.tail == w {
		l.tail = w.prev
	}
	w.prev, w.next = nil, nil
}

// popFront removes and returns the front (most recently queued) waiter, or
// nil if the backlog is empty. Must be called with l.mu held.
func (l *LifoBlockingLimiter) popFront() *lifoWaiter {
	w := l.head
	if w == nil {
		return nil
	}
	l.unlink(w)
	return w
}

// onCompletion is invoked whenever a delegate listener completes. It tries
// to re-acquire a permit on behalf of the front (newest) waiter; on success
// it pops and deposits. If the re-acquire fails (e.g. a racing direct
// Acquire grabbed the freed permit first), it stops — the next completion
// retries. This keeps the "one wake per release" property and preserves
// LIFO order even under bursty releases.
func (l *LifoBlockingLimiter) onCompletion() {
	l.mu.Lock()
	w := l.head
	if w == nil {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	lst, ok := l.delegate.Acquire(w.ctx)
	if !ok {
		return
	}

	l.mu.Lock()
	// w may have already been removed (timeout/interrupt) between the peek
	// and now; if so, the permit we just acquired must be handed back.
	if l.head != w {
		l.mu.Unlock()
		lst.OnIgnore()
		return
	}
	l.popFront()
	w.queued = false
	l.backlogUsed--
	l.mu.Unlock()

	w.deposit(lst, true)
}

func (l *LifoBlockingLimiter) wrap(lst limiter.Listener) limiter.Listener {
	return &lifoCompletionListener{delegate: lst, l: l}
}

type lifoCompletionListener struct {
	delegate limiter.Listener
	l        *LifoBlockingLimiter
	once     sync.Once
}

func (c *lifoCompletionListener) OnSuccess() {
	c.once.Do(func() { c.delegate.OnSuccess(); c.l.onCompletion() })
}

func (c *lifoCompletionListener) OnIgnore() {
	c.once.Do(func() { c.delegate.OnIgnore(); c.l.onCompletion() })
}

func (c *lifoCompletionListener) OnDropped() {
	c.once.Do(func() { c.delegate.OnDropped(); c.l.onCompletion() })
}
