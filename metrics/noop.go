package metrics

// NoopRegistry discards everything. It's the default registry for every
// limiter builder, so the admission core never needs a nil-check on the hot
// path.
type NoopRegistry struct{}

var _ MetricRegistry = NoopRegistry{}

func (NoopRegistry) Counter(string, ...Tag) Counter { return noopCounter{} }

func (NoopRegistry) Gauge(string, func() float64, ...Tag) {}

func (NoopRegistry) Distribution(string, ...Tag) Distribution { return noopDistribution{} }

type noopCounter struct{}

func (noopCounter) Increment() {}

type noopDistribution struct{}

func (noopDistribution) AddSample(float64) {}
