package limit

import "math"

// Log10RootFunction returns a function of the current limit used by Vegas'
// alpha/beta/threshold/increase/decrease strategies: baseline + log10(limit).
// Providing these as package-level function values, rather than per-call
// closures, avoids an allocation on every limit update (spec.md §9).
func Log10RootFunction(baseline int) func(int) int {
	return func(estimatedLimit int) int {
		return baseline + int(math.Log10(float64(estimatedLimit)))
	}
}

// SqrtQueueFunction returns the default Gradient/Gradient2 queue-size
// strategy: max(4, ceil(sqrt(limit))), a small head-room that lets the limit
// keep growing while latency stays flat.
func SqrtQueueFunction(estimatedLimit int) int {
	return int(math.Max(4, math.Ceil(math.Sqrt(float64(estimatedLimit)))))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
