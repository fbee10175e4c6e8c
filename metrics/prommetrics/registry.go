// Package prommetrics adapts metrics.MetricRegistry onto Prometheus
// CounterVec/SummaryVec collectors and per-tag-set GaugeFunc collectors.
package prommetrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Netflix/concurrency-limits-go/metrics"
)

// Registry is a metrics.MetricRegistry backed by Prometheus collectors,
// registered against the given prometheus.Registerer (or the default
// registry if nil).
type Registry struct {
	registerer prometheus.Registerer
	namespace  string

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Collector // keyed by name+tags, so a repeat Gauge call can unregister the old collector
	summarys map[string]*prometheus.SummaryVec
}

var _ metrics.MetricRegistry = (*Registry)(nil)

// Option configures a Registry at construction.
type Option func(*Registry)

// WithNamespace prefixes every collector name, Prometheus-style.
func WithNamespace(ns string) Option {
	return func(r *Registry) { r.namespace = ns }
}

// New returns a Registry that registers its collectors against registerer.
// If registerer is nil, prometheus.DefaultRegisterer is used.
func New(registerer prometheus.Registerer, opts ...Option) *Registry {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Registry{
		registerer: registerer,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]prometheus.Collector),
		summarys:   make(map[string]*prometheus.SummaryVec),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func tagNames(tags []metrics.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Key
	}
	sort.Strings(names)
	return names
}

func tagValues(tags []metrics.Tag) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for _, t := range tags {
		labels[t.Key] = t.Value
	}
	return labels
}

func (r *Registry) counterVec(name string, tags []metrics.Tag) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      name,
			Help:      name + " counter",
		}, tagNames(tags))
		r.registerer.MustRegister(cv)
		r.counters[name] = cv
	}
	return cv
}

func (r *Registry) Counter(name string, tags ...metrics.Tag) metrics.Counter {
	cv := r.counterVec(name, tags)
	return promCounter{cv.With(tagValues(tags))}
}

// Gauge registers a prometheus.GaugeFunc that calls supplier lazily on every
// scrape, matching the read-on-demand contract of metrics.MetricRegistry.
// Prometheus has no vector equivalent of GaugeFunc, so each distinct
// name+tags combination gets its own collector with the tags baked in as
// ConstLabels; calling Gauge again with the same name+tags replaces it.
func (r *Registry) Gauge(name string, supplier func() float64, tags ...metrics.Tag) {
	key := name + "|" + metricsTagKey(tags)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.gauges[key]; ok {
		r.registerer.Unregister(old)
	}
	gf := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        name,
		Help:        name + " gauge",
		ConstLabels: tagValues(tags),
	}, supplier)
	r.registerer.MustRegister(gf)
	r.gauges[key] = gf
}

func metricsTagKey(tags []metrics.Tag) string {
	labels := tagValues(tags)
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func (r *Registry) summaryVec(name string, tags []metrics.Tag) *prometheus.SummaryVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	sv, ok := r.summarys[name]
	if !ok {
		sv = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  r.namespace,
			Name:       name,
			Help:       name + " distribution",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, tagNames(tags))
		r.registerer.MustRegister(sv)
		r.summarys[name] = sv
	}
	return sv
}

func (r *Registry) Distribution(name string, tags ...metrics.Tag) metrics.Distribution {
	sv := r.summaryVec(name, tags)
	return promDistribution{sv.With(tagValues(tags))}
}

type promCounter struct {
	c prometheus.Counter
}

func (p promCounter) Increment() { p.c.Inc() }

type promDistribution struct {
	o prometheus.Observer
}

func (p promDistribution) AddSample(value float64) { p.o.Observe(value) }
