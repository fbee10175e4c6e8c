// Package limiter implements the admission core: the component that reads a
// limit.Limit's current estimate, gates admission against it, and feeds
// completion samples back to the algorithm.
package limiter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Netflix/concurrency-limits-go/internal/util"
	"github.com/Netflix/concurrency-limits-go/limit"
	"github.com/Netflix/concurrency-limits-go/metrics"
)

// Listener is returned by a successful Acquire and must be completed exactly
// once, by calling exactly one of OnSuccess, OnIgnore, or OnDropped.
// Implementations treat additional calls as undefined — this core silently
// ignores them.
type Listener interface {
	// OnSuccess reports a successful completion: in-flight is released and
	// the observed latency is fed to the limit algorithm as a normal sample.
	OnSuccess()
	// OnIgnore reports a completion whose outcome reveals nothing about
	// capacity (caller bug, immediate client-side failure). In-flight is
	// released; no sample is emitted.
	OnIgnore()
	// OnDropped reports a capacity-related failure: in-flight is released
	// and the sample is fed to the algorithm with didDrop=true.
	OnDropped()
}

// BypassPredicate decides whether a given acquire should skip admission
// control entirely (no in-flight increment, no sample emission).
type BypassPredicate func(ctx context.Context) bool

// Stats is a read-only snapshot of a Limiter's admission counters.
type Stats struct {
	Inflight int
	Limit    int
	Success  int64
	Ignored  int64
	Dropped  int64
	Rejected int64
	Bypassed int64
}

// Limiter is the public admission contract every adapter depends on.
type Limiter interface {
	// Acquire attempts to admit one request. On success it returns a
	// Listener that must be completed exactly once; on rejection it returns
	// (nil, false) — never an error, since rejection under load is an
	// expected, non-exceptional outcome.
	Acquire(ctx context.Context) (Listener, bool)
	// EstimatedLimit returns the current integer limit.
	EstimatedLimit() int
	// Inflight returns the current in-flight count.
	Inflight() int
	// Name returns the limiter's name, used as a metric tag.
	Name() string
	// Stats returns a snapshot of the limiter's admission counters.
	Stats() Stats
}

// Builder configures and builds a Limiter.
type Builder interface {
	// WithLimit sets the limit.Limit algorithm driving this limiter.
	// Defaults to limit.NewAIMD(limit.DefaultAIMDInitialLimit, limit.DefaultAIMDBackoffRatio).
	WithLimit(l limit.Limit) Builder
	// WithName sets the limiter's name, used as a metric tag. Defaults to a
	// UUID-derived name.
	WithName(name string) Builder
	// WithBypass sets a predicate that, when true, admits the request
	// without counting it toward in-flight or feeding a sample.
	WithBypass(p BypassPredicate) Builder
	// WithMetricRegistry sets the registry metrics are emitted to. Defaults
	// to metrics.NoopRegistry.
	WithMetricRegistry(r metrics.MetricRegistry) Builder
	// WithLogger sets a logger for Debug-level limit-transition logging.
	WithLogger(logger *slog.Logger) Builder
	// Build returns the configured Limiter.
	Build() Limiter
}

type builder struct {
	algorithm limit.Limit
	name      string
	bypass    BypassPredicate
	registry  metrics.MetricRegistry
	logger    *slog.Logger
}

// NewBuilder returns a Builder with the teacher-equivalent defaults: an AIMD
// algorithm, a UUID name, a no-op bypass predicate, and a no-op metric
// registry.
func NewBuilder() Builder {
	return &builder{
		algorithm: limit.NewAIMD(limit.DefaultAIMDInitialLimit, limit.DefaultAIMDBackoffRatio),
		registry:  metrics.NoopRegistry{},
	}
}

func (b *builder) WithLimit(l limit.Limit) Builder                    { b.algorithm = l; return b }
func (b *builder) WithName(name string) Builder                       { b.name = name; return b }
func (b *builder) WithBypass(p BypassPredicate) Builder                { b.bypass = p; return b }
func (b *builder) WithMetricRegistry(r metrics.MetricRegistry) Builder { b.registry = r; return b }
func (b *builder) WithLogger(logger *slog.Logger) Builder             { b.logger = logger; return b }

func (b *builder) Build() Limiter {
	name := b.name
	if name == "" {
		name = util.DefaultName()
	}
	l := &simpleLimiter{
		name:      name,
		algorithm: b.algorithm,
		bypass:    b.bypass,
		registry:  b.registry,
		logger:    b.logger,
	}
	l.limitCache.Store(int64(b.algorithm.EstimatedLimit()))
	b.algorithm.Subscribe(l.onLimitChanged)

	nameTag := metrics.Tag{Key: "limiter", Value: name}
	l.registry.Gauge(metrics.IDLimit, func() float64 { return float64(l.EstimatedLimit()) }, nameTag)
	return l
}

// simpleLimiter is the §4.5 admission core: atomic inFlight, cached limit,
// algorithm reference, optional bypass predicate, per-status counters.
type simpleLimiter struct {
	name      string
	algorithm limit.Limit
	bypass    BypassPredicate
	registry  metrics.MetricRegistry
	logger    *slog.Logger

	inFlight   atomic.Int64
	limitCache atomic.Int64

	successCount  atomic.Int64
	ignoredCount  atomic.Int64
	droppedCount  atomic.Int64
	rejectedCount atomic.Int64
	bypassedCount atomic.Int64
}

func (l *simpleLimiter) Name() string { return l.name }

func (l *simpleLimiter) EstimatedLimit() int { return int(l.limitCache.Load()) }

func (l *simpleLimiter) Inflight() int { return int(l.inFlight.Load()) }

func (l *simpleLimiter) Stats() Stats {
	return Stats{
		Inflight: l.Inflight(),
		Limit:    l.EstimatedLimit(),
		Success:  l.successCount.Load(),
		Ignored:  l.ignoredCount.Load(),
		Dropped:  l.droppedCount.Load(),
		Rejected: l.rejectedCount.Load(),
		Bypassed: l.bypassedCount.Load(),
	}
}

func (l *simpleLimiter) onLimitChanged(newLimit int) {
	l.limitCache.Store(int64(newLimit))
	if l.logger != nil && l.logger.Enabled(nil, slog.LevelDebug) {
		l.logger.Debug("limit changed", "limiter", l.name, "limit", newLimit)
	}
}

func (l *simpleLimiter) Acquire(ctx context.Context) (Listener, bool) {
	if l.bypass != nil && l.bypass(ctx) {
		l.bypassedCount.Add(1)
		l.countCall("bypassed")
		return noopListener{}, true
	}

	if l.inFlight.Load() >= l.limitCache.Load() {
		l.rejectedCount.Add(1)
		l.countCall("rejected")
		return nil, false
	}

	currentInflight := int(l.inFlight.Add(1))
	return &completionListener{
		limiter:         l,
		startTime:       time.Now(),
		currentInflight: currentInflight,
	}, true
}

func (l *simpleLimiter) countCall(status string) {
	l.registry.Counter(metrics.IDCall, metrics.Tag{Key: "status", Value: status}, metrics.Tag{Key: "limiter", Value: l.name}).Increment()
}

func (l *simpleLimiter) release(startTime time.Time, currentInflight int, didDrop bool, ignored bool) {
	l.inFlight.Add(-1)
	switch {
	case ignored:
		l.ignoredCount.Add(1)
		l.countCall("ignored")
		return
	case didDrop:
		l.droppedCount.Add(1)
		l.countCall("dropped")
	default:
		l.successCount.Add(1)
		l.countCall("success")
	}

	rtt := time.Since(startTime)
	nameTag := metrics.Tag{Key: "limiter", Value: l.name}
	l.registry.Distribution(metrics.IDMinRTT, nameTag).AddSample(float64(rtt))
	l.registry.Distribution(metrics.IDInflight, nameTag).AddSample(float64(currentInflight))
	l.algorithm.OnSample(startTime, rtt, currentInflight, didDrop)
}

// completionListener guards against double completion with a sync.Once: a
// second call to any of OnSuccess/OnIgnore/OnDropped is silently ignored,
// per spec.md §7's "implementations MAY ignore silently".
type completionListener struct {
	limiter         *simpleLimiter
	startTime       time.Time
	currentInflight int
	once            sync.Once
}

func (c *completionListener) OnSuccess() {
	c.once.Do(func() { c.limiter.release(c.startTime, c.currentInflight, false, false) })
}

func (c *completionListener) OnIgnore() {
	c.once.Do(func() { c.limiter.release(c.startTime, c.currentInflight, false, true) })
}

func (c *completionListener) OnDropped() {
	c.once.Do(func() { c.limiter.release(c.startTime, c.currentInflight, true, false) })
}

// noopListener is returned for bypassed requests: it counts toward nothing
// and emits no sample, matching spec.md §4.5 step 1.
type noopListener struct{}

func (noopListener) OnSuccess() {}
func (noopListener) OnIgnore()  {}
func (noopListener) OnDropped() {}
