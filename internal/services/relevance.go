package services

import (
	"math"
	"sort"
	"strings"

	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

// Candidate is an event prepared for scoring.
type Candidate struct {
	Event    models.Event
	Domain   models.Domain
	Keywords []string
}

// ScoredCandidate is a candidate plus its affinity to the trigger. It only
// lives for one generation cycle.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// EventHistory reports how often an event appeared in recent cascades.
type EventHistory interface {
	EventAppearances(eventID string) int
}

// RelevanceScorer computes trigger/candidate affinity from the rule weights.
type RelevanceScorer struct {
	rules      *rules.Rules
	classifier *Classifier
	history    EventHistory
}

func NewRelevanceScorer(r *rules.Rules, classifier *Classifier, history EventHistory) *RelevanceScorer {
	return &RelevanceScorer{rules: r, classifier: classifier, history: history}
}

// Score sums the independent contributions for one candidate. It is
// deterministic for a fixed history.
func (s *RelevanceScorer) Score(trigger, candidate Candidate) float64 {
	w := s.rules.Weights
	score := 0.0

	if candidate.Domain == trigger.Domain {
		score += w.SameDomain
	} else if s.rules.IsRelated(trigger.Domain, candidate.Domain) {
		score += w.RelatedDomain
	}

	exact, partial := keywordOverlap(trigger.Keywords, candidate.Keywords)
	score += float64(exact) * w.ExactKeyword
	score += math.Min(float64(partial)*w.PartialKeyword, w.PartialKeywordCap)

	score += s.volumeBonus(candidate.Event.VolumeFloat())

	if s.rules.IsUnderrepresented(candidate.Domain) {
		score += w.Underrepresented
	}
	// Drifting into an over-used domain is penalized; staying in the
	// trigger's own domain is not.
	if candidate.Domain != trigger.Domain && s.rules.IsOverrepresented(candidate.Domain) {
		score += w.Overrepresented
	}

	if s.history != nil {
		score += float64(s.history.EventAppearances(candidate.Event.ID)) * w.FreshnessPenalty
	}
	return score
}

func (s *RelevanceScorer) volumeBonus(volume float64) float64 {
	w := s.rules.Weights
	if volume < w.VolumeBonusThreshold || w.VolumeBonusDivisor <= 0 {
		return 0
	}
	return math.Min(volume/w.VolumeBonusDivisor, w.VolumeBonusCap)
}

// Rank scores every pool event except the trigger and returns them sorted by
// descending score, ties broken by event id.
func (s *RelevanceScorer) Rank(trigger Candidate, pool []models.Event) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(pool))
	for _, e := range pool {
		if e.ID == trigger.Event.ID {
			continue
		}
		c := s.classifier.Candidate(e)
		out = append(out, ScoredCandidate{Candidate: c, Score: s.Score(trigger, c)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Event.ID < out[j].Event.ID
	})
	return out
}

// keywordOverlap counts exact shared tokens and distinct substring pairs.
func keywordOverlap(a, b []string) (exact, partial int) {
	bset := make(map[string]bool, len(b))
	for _, k := range b {
		bset[k] = true
	}
	for _, ka := range a {
		if bset[ka] {
			exact++
		}
		for _, kb := range b {
			if ka == kb {
				continue
			}
			if strings.Contains(ka, kb) || strings.Contains(kb, ka) {
				partial++
			}
		}
	}
	return exact, partial
}
