package limiter

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Netflix/concurrency-limits-go/internal/util"
	"github.com/Netflix/concurrency-limits-go/limit"
	"github.com/Netflix/concurrency-limits-go/metrics"
)

// unknownPartition is the always-present catch-all partition used when no
// resolver maps the context to a named partition.
const unknownPartition = "unknown"

// Resolver maps a context to a partition name. Resolvers are tried in
// order; the first one returning ok=true for a name that exists wins.
type Resolver func(ctx context.Context) (name string, ok bool)

// PartitionConfig describes one named reservation: percent is its share
// (0,1] of the global limit; rejectDelay, if nonzero, is how long a rejected
// acquire for this partition sleeps before returning empty, smoothing out
// bursty rejection under a thundering herd.
type PartitionConfig struct {
	Name        string
	Percent     float64
	RejectDelay time.Duration
}

type partitionState struct {
	name        string
	percent     float64
	rejectDelay time.Duration
	limit       int // guarded by PartitionedLimiter.mu
	busy        int // guarded by PartitionedLimiter.mu
}

// PartitionedBuilder configures and builds a PartitionedLimiter.
type PartitionedBuilder interface {
	WithLimit(l limit.Limit) PartitionedBuilder
	WithName(name string) PartitionedBuilder
	WithPartition(cfg PartitionConfig) PartitionedBuilder
	WithResolver(r Resolver) PartitionedBuilder
	WithMaxDelayedThreads(n int) PartitionedBuilder
	WithMetricRegistry(r metrics.MetricRegistry) PartitionedBuilder
	WithLogger(logger *slog.Logger) PartitionedBuilder
	Build() *PartitionedLimiter
}

type partitionedBuilder struct {
	algorithm         limit.Limit
	name              string
	partitions        []PartitionConfig
	resolvers         []Resolver
	maxDelayedThreads int
	registry          metrics.MetricRegistry
	logger            *slog.Logger
}

// NewPartitionedBuilder returns a PartitionedBuilder with the teacher
// defaults: an AIMD algorithm and a no-op metric registry. The "unknown"
// partition (percent 0) is always added automatically; callers add their own
// named partitions via WithPartition.
func NewPartitionedBuilder() PartitionedBuilder {
	return &partitionedBuilder{
		algorithm: limit.NewAIMD(limit.DefaultAIMDInitialLimit, limit.DefaultAIMDBackoffRatio),
		registry:  metrics.NoopRegistry{},
	}
}

func (b *partitionedBuilder) WithLimit(l limit.Limit) PartitionedBuilder { b.algorithm = l; return b }
func (b *partitionedBuilder) WithName(name string) PartitionedBuilder    { b.name = name; return b }
func (b *partitionedBuilder) WithPartition(cfg PartitionConfig) PartitionedBuilder {
	b.partitions = append(b.partitions, cfg)
	return b
}
func (b *partitionedBuilder) WithResolver(r Resolver) PartitionedBuilder {
	b.resolvers = append(b.resolvers, r)
	return b
}
func (b *partitionedBuilder) WithMaxDelayedThreads(n int) PartitionedBuilder {
	b.maxDelayedThreads = n
	return b
}
func (b *partitionedBuilder) WithMetricRegistry(r metrics.MetricRegistry) PartitionedBuilder {
	b.registry = r
	return b
}
func (b *partitionedBuilder) WithLogger(logger *slog.Logger) PartitionedBuilder {
	b.logger = logger
	return b
}

func (b *partitionedBuilder) Build() *PartitionedLimiter {
	name := b.name
	if name == "" {
		name = util.DefaultName()
	}

	configs := append(append([]PartitionConfig{}, b.partitions...), PartitionConfig{Name: unknownPartition, Percent: 0})
	pl := &PartitionedLimiter{
		name:              name,
		algorithm:         b.algorithm,
		resolvers:         b.resolvers,
		maxDelayedThreads: b.maxDelayedThreads,
		registry:          b.registry,
		logger:            b.logger,
		byName:            make(map[string]*partitionState, len(configs)),
		overflow:          util.NewOverflowSet(uint(len(configs))),
	}
	for _, c := range configs {
		p := &partitionState{name: c.Name, percent: c.Percent, rejectDelay: c.RejectDelay}
		pl.partitions = append(pl.partitions, p)
		pl.byName[c.Name] = p
	}

	pl.globalLimit = b.algorithm.EstimatedLimit()
	pl.recomputePartitionLimits()
	b.algorithm.Subscribe(pl.onLimitChanged)

	nameTag := metrics.Tag{Key: "limiter", Value: name}
	pl.registry.Gauge(metrics.IDLimit, func() float64 { return float64(pl.EstimatedLimit()) }, nameTag)
	pl.registry.Gauge(metrics.IDOverflowingPartitions, func() float64 { return float64(pl.PartitionedStats().OverflowingPartitions) }, nameTag)
	return pl
}

// PartitionedLimiter is the §4.6 partitioned admission core: a shared global
// gate plus per-partition reservations, carved out of the same learned
// limit.
type PartitionedLimiter struct {
	name              string
	algorithm         limit.Limit
	resolvers         []Resolver
	maxDelayedThreads int
	registry          metrics.MetricRegistry
	logger            *slog.Logger

	byName   map[string]*partitionState
	overflow *util.OverflowSet

	mu             sync.Mutex
	partitions     []*partitionState
	globalInFlight int
	globalLimit    int

	delayedCount atomic.Int64

	successCount  atomic.Int64
	ignoredCount  atomic.Int64
	droppedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// PartitionedStats is a Stats snapshot extended with the partition-overflow
// count: how many partitions were at or over their reserved share as of the
// last recompute.
type PartitionedStats struct {
	Stats
	OverflowingPartitions int
}

func (pl *PartitionedLimiter) Name() string { return pl.name }

func (pl *PartitionedLimiter) EstimatedLimit() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.globalLimit
}

func (pl *PartitionedLimiter) Inflight() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.globalInFlight
}

// PartitionLimit returns the current reserved limit for a named partition,
// or 0 if the name is unknown.
func (pl *PartitionedLimiter) PartitionLimit(name string) int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	p, ok := pl.byName[name]
	if !ok {
		return 0
	}
	return p.limit
}

func (pl *PartitionedLimiter) onLimitChanged(newLimit int) {
	pl.mu.Lock()
	pl.globalLimit = newLimit
	pl.recomputePartitionLimits()
	pl.mu.Unlock()
	if pl.logger != nil && pl.logger.Enabled(nil, slog.LevelDebug) {
		pl.logger.Debug("partitioned limit changed", "limiter", pl.name, "limit", newLimit)
	}
}

// recomputePartitionLimits must be called with pl.mu held. Each partition's
// limit = max(1, ceil(L*percent)); the sum may exceed L, since the global
// gate remains the true cap (spec.md §4.6).
func (pl *PartitionedLimiter) recomputePartitionLimits() {
	pl.overflow.ClearAll()
	for i, p := range pl.partitions {
		p.limit = int(math.Max(1, math.Ceil(float64(pl.globalLimit)*p.percent)))
		nameTag := metrics.Tag{Key: "limiter", Value: pl.name}
		partitionTag := metrics.Tag{Key: "partition", Value: p.name}
		limitCopy := p.limit
		pl.registry.Gauge(metrics.IDPartitionLimit, func() float64 { return float64(limitCopy) }, nameTag, partitionTag)
		if p.busy >= p.limit {
			pl.overflow.MarkOverflowing(uint(i))
		}
	}
}

// resolve tries each resolver in order, falling back to the unknown
// partition.
func (pl *PartitionedLimiter) resolve(ctx context.Context) *partitionState {
	for _, r := range pl.resolvers {
		if name, ok := r(ctx); ok {
			if p, exists := pl.byName[name]; exists {
				return p
			}
		}
	}
	return pl.byName[unknownPartition]
}

func (pl *PartitionedLimiter) Acquire(ctx context.Context) (Listener, bool) {
	pl.mu.Lock()
	p := pl.resolve(ctx)

	if pl.globalInFlight >= pl.globalLimit && p.busy >= p.limit {
		rejectDelay := p.rejectDelay
		pl.mu.Unlock()
		pl.countCall("rejected", p.name)
		if rejectDelay > 0 && pl.tryReserveDelaySlot() {
			time.Sleep(rejectDelay)
			pl.delayedCount.Add(-1)
		}
		return nil, false
	}

	p.busy++
	pl.globalInFlight++
	currentInflight := pl.globalInFlight
	pl.mu.Unlock()

	return &partitionListener{
		pl:              pl,
		partition:       p,
		startTime:       time.Now(),
		currentInflight: currentInflight,
	}, true
}

// tryReserveDelaySlot atomically claims one of maxDelayedThreads slots,
// returning false (and reserving nothing) if the cap is already reached or
// disabled.
func (pl *PartitionedLimiter) tryReserveDelaySlot() bool {
	if pl.maxDelayedThreads <= 0 {
		return false
	}
	for {
		cur := pl.delayedCount.Load()
		if cur >= int64(pl.maxDelayedThreads) {
			return false
		}
		if pl.delayedCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (pl *PartitionedLimiter) countCall(status, partitionName string) {
	switch status {
	case "success":
		pl.successCount.Add(1)
	case "ignored":
		pl.ignoredCount.Add(1)
	case "dropped":
		pl.droppedCount.Add(1)
	case "rejected":
		pl.rejectedCount.Add(1)
	}
	pl.registry.Counter(metrics.IDCall,
		metrics.Tag{Key: "status", Value: status},
		metrics.Tag{Key: "limiter", Value: pl.name},
		metrics.Tag{Key: "partition", Value: partitionName},
	).Increment()
}

// Stats returns a snapshot of the limiter's global admission counters,
// summed across every partition — the same shape simpleLimiter.Stats()
// returns, so callers don't need to care which admission core they hold.
func (pl *PartitionedLimiter) Stats() Stats {
	return Stats{
		Inflight: pl.Inflight(),
		Limit:    pl.EstimatedLimit(),
		Success:  pl.successCount.Load(),
		Ignored:  pl.ignoredCount.Load(),
		Dropped:  pl.droppedCount.Load(),
		Rejected: pl.rejectedCount.Load(),
	}
}

// PartitionedStats returns Stats plus how many partitions are currently at
// or over their reserved share, as of the last recompute.
func (pl *PartitionedLimiter) PartitionedStats() PartitionedStats {
	pl.mu.Lock()
	overflowing := int(pl.overflow.Count())
	pl.mu.Unlock()
	return PartitionedStats{Stats: pl.Stats(), OverflowingPartitions: overflowing}
}

func (pl *PartitionedLimiter) release(p *partitionState, startTime time.Time, currentInflight int, didDrop, ignored bool) {
	pl.mu.Lock()
	p.busy--
	pl.globalInFlight--
	pl.mu.Unlock()

	switch {
	case ignored:
		pl.countCall("ignored", p.name)
		return
	case didDrop:
		pl.countCall("dropped", p.name)
	default:
		pl.countCall("success", p.name)
	}

	rtt := time.Since(startTime)
	pl.algorithm.OnSample(startTime, rtt, currentInflight, didDrop)
}

type partitionListener struct {
	pl              *PartitionedLimiter
	partition       *partitionState
	startTime       time.Time
	currentInflight int
	once            sync.Once
}

func (c *partitionListener) OnSuccess() {
	c.once.Do(func() { c.pl.release(c.partition, c.startTime, c.currentInflight, false, false) })
}

func (c *partitionListener) OnIgnore() {
	c.once.Do(func() { c.pl.release(c.partition, c.startTime, c.currentInflight, false, true) })
}

func (c *partitionListener) OnDropped() {
	c.once.Do(func() { c.pl.release(c.partition, c.startTime, c.currentInflight, true, false) })
}
