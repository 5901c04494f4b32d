package novelty

import (
	"testing"
	"time"
)

func TestScoreNoMatch(t *testing.T) {
	s := NewScorer(0.2, 48*time.Hour)
	if got := s.Score(0, 0); got != 1.0 {
		t.Errorf("zero similarity should be fully novel, got %f", got)
	}
	if got := s.NoMatch(); got != 1.0 {
		t.Errorf("NoMatch should be 1.0, got %f", got)
	}
}

func TestScoreFreshExactMatch(t *testing.T) {
	s := NewScorer(0.2, 48*time.Hour)
	// A perfect match created just now carries full penalty weight.
	if got := s.Score(1.0, 0); got != 0.0 {
		t.Errorf("identical fresh story should score 0.0, got %f", got)
	}
}

func TestScoreDecayMonotonic(t *testing.T) {
	s := NewScorer(0.2, 48*time.Hour)
	sim := 0.92
	ages := []time.Duration{0, 6 * time.Hour, 24 * time.Hour, 72 * time.Hour, 30 * 24 * time.Hour}
	prev := -1.0
	for _, age := range ages {
		got := s.Score(sim, age)
		if got < prev {
			t.Fatalf("novelty decreased with age: %f at %s after %f", got, age, prev)
		}
		if got < 0 || got > 1 {
			t.Fatalf("score out of range at age %s: %f", age, got)
		}
		prev = got
	}
}

func TestScoreFloorBoundsOldPenalty(t *testing.T) {
	s := NewScorer(0.2, 48*time.Hour)
	// An ancient perfect match should penalize at most by the floor weight.
	got := s.Score(1.0, 365*24*time.Hour)
	want := 1 - 0.2 // weight has decayed to ~floor
	if got < want-0.01 {
		t.Errorf("year-old match should be near floor-only penalty: got %f, want >= %f", got, want-0.01)
	}
}

func TestScoreNegativeAgeClamped(t *testing.T) {
	s := NewScorer(0.2, 48*time.Hour)
	if got, fresh := s.Score(0.9, -time.Hour), s.Score(0.9, 0); got != fresh {
		t.Errorf("negative age should behave like zero: %f vs %f", got, fresh)
	}
}

func TestNewScorerDefaults(t *testing.T) {
	s := NewScorer(0, 0)
	if s.Floor != 0.2 {
		t.Errorf("default floor: got %f", s.Floor)
	}
	if s.HalfLife != 48*time.Hour {
		t.Errorf("default half-life: got %s", s.HalfLife)
	}
}
