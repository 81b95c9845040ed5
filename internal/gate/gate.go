// Package gate decides whether retrieved evidence is strong enough to answer from.
package gate

import "growthrag/internal/models"

// missingDistance stands in for hits without a reported distance.
const missingDistance = 1.0

type Thresholds struct {
	MinHits         int
	DistThreshold   float64
	MinUniquePapers int
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinHits: 4, DistThreshold: 0.35, MinUniquePapers: 2}
}

// EvidenceIsWeak reports whether hits are too few, too distant, or drawn from too few papers.
// hits must be in ascending distance order.
func EvidenceIsWeak(hits []models.Hit, t Thresholds) bool {
	if len(hits) == 0 || len(hits) < t.MinHits {
		return true
	}
	best := missingDistance
	if hits[0].Distance != nil {
		best = *hits[0].Distance
	}
	if best > t.DistThreshold {
		return true
	}
	return UniquePapers(hits) < t.MinUniquePapers
}

// UniquePapers counts distinct non-empty paper identity keys.
func UniquePapers(hits []models.Hit) int {
	keys := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if k := h.Meta.IdentityKey(); k != "" {
			keys[k] = struct{}{}
		}
	}
	return len(keys)
}
