// Package novelty scores how new a piece of intel is relative to history.
package novelty

import (
	"math"
	"time"
)

// Scorer computes decayed novelty scores. Given the best semantic match for a
// new item (cosine similarity s) and that match's age, the score is
//
//	novelty = clamp(1 - s*weight(age), 0, 1)
//
// where weight decays from 1.0 (match created just now) toward Floor as the
// match ages past the half-life. A highly similar story loses penalty weight
// the further in the past its earlier coverage was — recurring industry
// narratives (monthly viewership stats and the like) should not be
// permanently suppressed.
type Scorer struct {
	// Floor is the asymptotic minimum penalty weight for very old matches.
	Floor float64
	// HalfLife is the age at which the decaying portion of the penalty
	// weight halves.
	HalfLife time.Duration
}

// NewScorer returns a Scorer with the given floor and half-life, applying
// defaults for zero values.
func NewScorer(floor float64, halfLife time.Duration) *Scorer {
	if floor <= 0 {
		floor = 0.2
	}
	if halfLife <= 0 {
		halfLife = 48 * time.Hour
	}
	return &Scorer{Floor: floor, HalfLife: halfLife}
}

// Score computes the novelty for a best-match similarity and match age.
// Only the single best match matters — a near-perfect duplicate of one item
// is not diluted by weaker matches elsewhere.
func (s *Scorer) Score(similarity float64, age time.Duration) float64 {
	if similarity <= 0 {
		return 1.0
	}
	return clamp(1-similarity*s.weight(age), 0, 1)
}

// NoMatch is the novelty of a first-of-its-kind item (empty index).
func (s *Scorer) NoMatch() float64 { return 1.0 }

// weight(a) = floor + (1-floor) * 2^(-a/halfLife); strictly decreasing in a,
// 1.0 at a=0, approaching Floor for old matches.
func (s *Scorer) weight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	halved := age.Hours() / s.HalfLife.Hours()
	return s.Floor + (1-s.Floor)*math.Exp2(-halved)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
