// Package util holds the limiter package's default-name helper and the
// partition overflow set.
package util

import "github.com/google/uuid"

// DefaultName returns a UUID-derived default name for a limiter or bulkhead
// that wasn't given an explicit one, used as the "limiter" tag on emitted
// metrics. A UUID avoids the process-wide mutable counter the source relies
// on for the same purpose (spec.md §9 Design Note).
func DefaultName() string {
	return uuid.NewString()
}
