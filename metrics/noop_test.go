package metrics

import "testing"

// TestNoopRegistryDiscardsEverything just verifies nothing panics when a
// caller exercises the full MetricRegistry surface against the no-op
// implementation; there's no observable state to assert on.
func TestNoopRegistryDiscardsEverything(t *testing.T) {
	r := NoopRegistry{}
	r.Counter(IDCall, Tag{Key: "status", Value: "success"}).Increment()
	r.Gauge(IDLimit, func() float64 { return 42 }, Tag{Key: "limiter", Value: "x"})
	r.Distribution(IDMinRTT).AddSample(1.5)
}
