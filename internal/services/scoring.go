package services

import (
	"math"
	"strings"
	"time"

	"cascade-engine/internal/models"
)

// TimeBand awards Bonus to predictions submitted less than Within after the
// target opened.
type TimeBand struct {
	Within time.Duration
	Bonus  int
}

// ScoringConfig holds the point constants used by PredictionScorer.
type ScoringConfig struct {
	BaseCorrect     int
	ConfidenceBonus int // per confidence point
	TimeBands       []TimeBand
	TierMultipliers map[models.Tier]float64
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BaseCorrect:     100,
		ConfidenceBonus: 10,
		TimeBands: []TimeBand{
			{Within: time.Hour, Bonus: 50},
			{Within: 24 * time.Hour, Bonus: 30},
			{Within: 72 * time.Hour, Bonus: 15},
		},
		TierMultipliers: map[models.Tier]float64{
			models.TierBeginner:     1.0,
			models.TierIntermediate: 1.5,
			models.TierAdvanced:     2.5,
			models.TierExpert:       4.0,
		},
	}
}

// ScoreResult is the outcome of scoring one prediction.
type ScoreResult struct {
	Correct bool
	Points  int
}

type PredictionScorer struct {
	cfg ScoringConfig
}

func NewPredictionScorer(cfg ScoringConfig) *PredictionScorer {
	return &PredictionScorer{cfg: cfg}
}

// Score compares the prediction against the actual outcome. Incorrect
// predictions earn nothing.
func (s *PredictionScorer) Score(p models.Prediction, actual string) ScoreResult {
	correct := strings.EqualFold(strings.TrimSpace(p.PredictedOutcome), strings.TrimSpace(actual))
	if !correct {
		return ScoreResult{Correct: false, Points: 0}
	}

	raw := s.cfg.BaseCorrect + s.ConfidenceBonus(p.Confidence) + s.TimeBonus(p.OpenedAt, p.CreatedAt)
	points := int(math.Round(float64(raw) * s.Multiplier(p.Tier)))
	return ScoreResult{Correct: true, Points: points}
}

func (s *PredictionScorer) ConfidenceBonus(confidence int) int {
	if confidence < models.MinConfidence {
		confidence = models.MinConfidence
	}
	if confidence > models.MaxConfidence {
		confidence = models.MaxConfidence
	}
	return confidence * s.cfg.ConfidenceBonus
}

// TimeBonus steps down with the time between the target opening and the
// prediction being submitted.
func (s *PredictionScorer) TimeBonus(openedAt, submittedAt time.Time) int {
	lateness := submittedAt.Sub(openedAt)
	if lateness < 0 {
		lateness = 0
	}
	for _, band := range s.cfg.TimeBands {
		if lateness < band.Within {
			return band.Bonus
		}
	}
	return 0
}

func (s *PredictionScorer) Multiplier(t models.Tier) float64 {
	if m, ok := s.cfg.TierMultipliers[t]; ok {
		return m
	}
	return 1.0
}
