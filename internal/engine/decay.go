// Package engine provides the tiered memory engine: decay math, the
// consolidation engine, the decay sweeper, and the MemoryManager facade.
package engine

import (
	"math"
	"time"
)

const (
	// DefaultHalfLifeDays is the number of days for a micro-memory's
	// effective importance to halve. At 14 days an importance-8 memory
	// sits at 4.0; at 28 days, 2.0.
	DefaultHalfLifeDays = 14.0

	// DefaultEvictionFloor is the effective importance below which a
	// micro-memory becomes eligible for pruning.
	DefaultEvictionFloor = 1.0

	minImportance = 1.0
	maxImportance = 10.0
)

// ClampImportance bounds an initial importance to [1, 10].
func ClampImportance(importance float64) float64 {
	if importance < minImportance {
		return minImportance
	}
	if importance > maxImportance {
		return maxImportance
	}
	return importance
}

// EffectiveImportance returns the decayed importance of a micro-memory at
// the given instant:
//
//	I(t) = I0 * 0.5^(t / halfLifeDays)
//
// where t is the age in days. The initial importance is clamped to [1, 10],
// a non-positive half-life falls back to DefaultHalfLifeDays, and a
// negative age (clock skew) is treated as zero. The result is never stored;
// callers recompute it on every read.
func EffectiveImportance(importance float64, createdAt, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}

	days := now.Sub(createdAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}

	return ClampImportance(importance) * math.Pow(0.5, days/halfLifeDays)
}
