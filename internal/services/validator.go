package services

import (
	"fmt"

	"cascade-engine/internal/metrics"
	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

// Rule categories, in evaluation order.
const (
	CategoryConfidence  = "confidence"
	CategoryMechanism   = "mechanism"
	CategoryCrossover   = "crossover"
	CategoryReferential = "referential"
	CategoryDiversity   = "diversity"
)

// Violation is a single broken rule.
type Violation struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	return v.Category + ": " + v.Message
}

// ValidationResult is the verdict for one generated cascade.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// Accepted is true only when no rule was broken anywhere.
func (r ValidationResult) Accepted() bool {
	return len(r.Violations) == 0
}

// Reasons flattens the violations into human readable strings.
func (r ValidationResult) Reasons() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// DomainGate is the diversity check the validator consults last.
type DomainGate interface {
	ShouldAllowDomain(d models.Domain) bool
}

// CascadeValidator applies the hard acceptance rules to a generated cascade.
// By default every category is evaluated and all violations are reported;
// with FailFast it stops after the first failing category.
type CascadeValidator struct {
	rules    *rules.Rules
	gate     DomainGate
	FailFast bool
}

func NewCascadeValidator(r *rules.Rules, gate DomainGate) *CascadeValidator {
	return &CascadeValidator{rules: r, gate: gate}
}

// Validate checks gc against the trigger and the candidate list that was used
// to build the prompt.
func (v *CascadeValidator) Validate(gc *GeneratedCascade, trigger Candidate, candidates []ScoredCandidate) ValidationResult {
	byID := make(map[string]ScoredCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.Event.ID] = c
	}

	checks := []func() []Violation{
		func() []Violation { return v.checkConfidence(gc) },
		func() []Violation { return v.checkMechanisms(gc) },
		func() []Violation { return v.checkCrossover(gc, byID) },
		func() []Violation { return v.checkReferences(gc, trigger, byID) },
		func() []Violation { return v.checkDiversity(gc) },
	}

	var result ValidationResult
	for _, check := range checks {
		found := check()
		result.Violations = append(result.Violations, found...)
		if v.FailFast && len(found) > 0 {
			break
		}
	}

	for _, viol := range result.Violations {
		metrics.ValidationViolations.WithLabelValues(viol.Category).Inc()
	}
	return result
}

func (v *CascadeValidator) checkConfidence(gc *GeneratedCascade) []Violation {
	var out []Violation
	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		floor := v.rules.Floors.ForLevel(level)
		for i, e := range gc.EffectsAt(level) {
			if e.Confidence < floor {
				out = append(out, Violation{CategoryConfidence, fmt.Sprintf(
					"%s effect %d (%s) confidence %.2f below %.2f", levelName(level), i+1, e.EventID, e.Confidence, floor)})
			}
		}
	}
	for i, r := range gc.Relationships {
		if r.Strength < v.rules.Floors.Relationship {
			out = append(out, Violation{CategoryConfidence, fmt.Sprintf(
				"relationship %d (%s -> %s) strength %.2f below %.2f", i+1, r.SourceEventID, r.TargetEventID, r.Strength, v.rules.Floors.Relationship)})
		}
	}
	return out
}

func (v *CascadeValidator) checkMechanisms(gc *GeneratedCascade) []Violation {
	var out []Violation
	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		for i, e := range gc.EffectsAt(level) {
			if e.Reason == "" {
				out = append(out, Violation{CategoryMechanism, fmt.Sprintf(
					"%s effect %d (%s) has no reason", levelName(level), i+1, e.EventID)})
				continue
			}
			if phrase, bad := v.rules.ForbiddenPhrase(e.Reason); bad {
				out = append(out, Violation{CategoryMechanism, fmt.Sprintf(
					"%s effect %d (%s) reason uses vague phrase %q", levelName(level), i+1, e.EventID, phrase)})
			}
		}
	}
	for i, r := range gc.Relationships {
		if r.Mechanism == "" {
			out = append(out, Violation{CategoryMechanism, fmt.Sprintf(
				"relationship %d (%s -> %s) is missing a mechanism", i+1, r.SourceEventID, r.TargetEventID)})
			continue
		}
		if phrase, bad := v.rules.ForbiddenPhrase(r.Mechanism); bad {
			out = append(out, Violation{CategoryMechanism, fmt.Sprintf(
				"relationship %d (%s -> %s) mechanism uses vague phrase %q", i+1, r.SourceEventID, r.TargetEventID, phrase)})
		}
	}
	return out
}

func (v *CascadeValidator) checkCrossover(gc *GeneratedCascade, byID map[string]ScoredCandidate) []Violation {
	declared, ok := models.ParseDomain(gc.Domain)
	if !ok {
		return []Violation{{CategoryCrossover, fmt.Sprintf("unknown cascade domain %q", gc.Domain)}}
	}

	var out []Violation
	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		for _, e := range gc.EffectsAt(level) {
			c, found := byID[e.EventID]
			if !found {
				continue // reported by the referential check
			}
			if v.rules.IsForbiddenCrossing(declared, c.Domain) {
				out = append(out, Violation{CategoryCrossover, fmt.Sprintf(
					"%s effect %s is %s, forbidden under a %s cascade", levelName(level), e.EventID, c.Domain, declared)})
			}
		}
	}
	return out
}

func (v *CascadeValidator) checkReferences(gc *GeneratedCascade, trigger Candidate, byID map[string]ScoredCandidate) []Violation {
	var out []Violation

	members := map[string]bool{trigger.Event.ID: true}
	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		for _, e := range gc.EffectsAt(level) {
			members[e.EventID] = true
		}
	}

	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		for _, e := range gc.EffectsAt(level) {
			c, found := byID[e.EventID]
			if !found {
				out = append(out, Violation{CategoryReferential, fmt.Sprintf(
					"%s effect references unknown event %s", levelName(level), e.EventID)})
				continue
			}
			if e.MarketName != c.Event.Title {
				out = append(out, Violation{CategoryReferential, fmt.Sprintf(
					"%s effect %s market name %q does not match event title %q", levelName(level), e.EventID, e.MarketName, c.Event.Title)})
			}
			if want := v.rules.EventURL(c.Event.Slug); e.URL != want {
				out = append(out, Violation{CategoryReferential, fmt.Sprintf(
					"%s effect %s url %q does not match %q", levelName(level), e.EventID, e.URL, want)})
			}
			if e.TriggeredBy != "" && (e.TriggeredBy == e.EventID || !members[e.TriggeredBy]) {
				out = append(out, Violation{CategoryReferential, fmt.Sprintf(
					"%s effect %s triggered_by %s is not another event of this cascade", levelName(level), e.EventID, e.TriggeredBy)})
			}
		}
	}

	for i, r := range gc.Relationships {
		if !members[r.SourceEventID] || !members[r.TargetEventID] {
			out = append(out, Violation{CategoryReferential, fmt.Sprintf(
				"relationship %d (%s -> %s) has an endpoint outside the cascade", i+1, r.SourceEventID, r.TargetEventID)})
		}
	}
	return out
}

func (v *CascadeValidator) checkDiversity(gc *GeneratedCascade) []Violation {
	if v.gate == nil {
		return nil
	}
	declared, ok := models.ParseDomain(gc.Domain)
	if !ok {
		return nil
	}
	if !v.gate.ShouldAllowDomain(declared) {
		return []Violation{{CategoryDiversity, fmt.Sprintf("domain %s is over-represented in recent cascades", declared)}}
	}
	return nil
}

func levelName(level int) string {
	switch level {
	case models.LevelPrimary:
		return "primary"
	case models.LevelSecondary:
		return "secondary"
	default:
		return "tertiary"
	}
}
