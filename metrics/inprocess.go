package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/influxdata/tdigest"
)

// InProcessRegistry is a MetricRegistry backed by t-digest sketches for
// distributions, kept entirely in memory. It's meant for tests, local
// debugging, or embedding behind a custom exporter; it is not a substitute
// for a push/scrape-based backend in production (use metrics/prommetrics for
// that).
type InProcessRegistry struct {
	mu            sync.Mutex
	counters      map[string]*inProcessCounter
	distributions map[string]*inProcessDistribution
	gauges        map[string]func() float64
}

var _ MetricRegistry = (*InProcessRegistry)(nil)

// NewInProcessRegistry returns an empty InProcessRegistry.
func NewInProcessRegistry() *InProcessRegistry {
	return &InProcessRegistry{
		counters:      make(map[string]*inProcessCounter),
		distributions: make(map[string]*inProcessDistribution),
		gauges:        make(map[string]func() float64),
	}
}

func metricKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteByte('|')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

func (r *InProcessRegistry) Counter(name string, tags ...Tag) Counter {
	key := metricKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[key]
	if !ok {
		c = &inProcessCounter{}
		r.counters[key] = c
	}
	return c
}

func (r *InProcessRegistry) Gauge(name string, supplier func() float64, tags ...Tag) {
	key := metricKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key] = supplier
}

// GaugeValue reads the current value of a previously registered gauge, or
// (0, false) if none has been registered under that name/tags.
func (r *InProcessRegistry) GaugeValue(name string, tags ...Tag) (float64, bool) {
	key := metricKey(name, tags)
	r.mu.Lock()
	supplier, ok := r.gauges[key]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}
	return supplier(), true
}

func (r *InProcessRegistry) Distribution(name string, tags ...Tag) Distribution {
	key := metricKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.distributions[key]
	if !ok {
		d = &inProcessDistribution{td: tdigest.NewWithCompression(100)}
		r.distributions[key] = d
	}
	return d
}

type inProcessCounter struct {
	mu    sync.Mutex
	value float64
}

func (c *inProcessCounter) Increment() {
	c.mu.Lock()
	c.value++
	c.mu.Unlock()
}

// Value returns the counter's current total.
func (c *inProcessCounter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type inProcessDistribution struct {
	mu sync.Mutex
	td *tdigest.TDigest
}

func (d *inProcessDistribution) AddSample(value float64) {
	d.mu.Lock()
	d.td.Add(value, 1)
	d.mu.Unlock()
}

// Quantile returns the estimated value at quantile q (0,1].
func (d *inProcessDistribution) Quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.td.Quantile(q)
}
