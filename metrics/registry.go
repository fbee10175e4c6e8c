// Package metrics defines the minimal metric-registry contract the limiter
// packages emit against, plus a no-op and an in-process implementation.
// Registry backends (Prometheus, statsd, …) implement MetricRegistry; the
// core packages never depend on a concrete backend.
package metrics

// Canonical metric IDs emitted by the limiter and limit packages.
const (
	// IDCall counts admission outcomes, tagged with status ∈
	// {success, dropped, ignored, rejected, bypassed}.
	IDCall = "call"
	// IDInflight is a distribution of the in-flight count observed at
	// sample time.
	IDInflight = "inflight"
	// IDLimit is a gauge of the current estimated limit.
	IDLimit = "limit"
	// IDMinRTT is a distribution of per-sample round-trip time.
	IDMinRTT = "min_rtt"
	// IDWindowMinRTT is a distribution of a drained window's minimum rtt.
	IDWindowMinRTT = "window_min_rtt"
	// IDWindowQueueSize is a distribution of a drained window's implied
	// queue size.
	IDWindowQueueSize = "window_queue_size"
	// IDPartitionLimit is a gauge of a partition's current reserved limit.
	IDPartitionLimit = "partition_limit"
	// IDOverflowingPartitions is a gauge of how many partitions are
	// currently at or over their reserved share of the global limit.
	IDOverflowingPartitions = "overflowing_partitions"
)

// Tag is a single key/value label attached to a metric emission.
type Tag struct {
	Key   string
	Value string
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Increment()
}

// Distribution records individual observations for later quantile read-out.
type Distribution interface {
	AddSample(value float64)
}

// MetricRegistry is the contract every metric backend implements. Names are
// one of the canonical IDs above; tags are passed as variadic key/value
// pairs via Tag.
type MetricRegistry interface {
	// Counter returns (creating if necessary) a Counter identified by name
	// and tags.
	Counter(name string, tags ...Tag) Counter
	// Gauge registers a supplier function that is read on demand; calling
	// Gauge again with the same name and tags replaces the supplier.
	Gauge(name string, supplier func() float64, tags ...Tag)
	// Distribution returns (creating if necessary) a Distribution
	// identified by name and tags.
	Distribution(name string, tags ...Tag) Distribution
}
