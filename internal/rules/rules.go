// Package rules holds the lookup tables that drive relevance scoring and
// cascade validation. The tables are plain data so each rule set can be
// tested without the generation pipeline.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cascade-engine/internal/models"
)

// Weights are the additive contributions of the relevance scorer.
type Weights struct {
	SameDomain           float64 `yaml:"same_domain"`
	RelatedDomain        float64 `yaml:"related_domain"`
	ExactKeyword         float64 `yaml:"exact_keyword"`
	PartialKeyword       float64 `yaml:"partial_keyword"`
	PartialKeywordCap    float64 `yaml:"partial_keyword_cap"`
	VolumeBonusThreshold float64 `yaml:"volume_bonus_threshold"`
	VolumeBonusDivisor   float64 `yaml:"volume_bonus_divisor"`
	VolumeBonusCap       float64 `yaml:"volume_bonus_cap"`
	Underrepresented     float64 `yaml:"underrepresented"`
	Overrepresented      float64 `yaml:"overrepresented"`
	FreshnessPenalty     float64 `yaml:"freshness_penalty"`
}

// ConfidenceFloors are the minimum confidence per effect level plus the
// minimum relationship strength.
type ConfidenceFloors struct {
	Primary      float64 `yaml:"primary"`
	Secondary    float64 `yaml:"secondary"`
	Tertiary     float64 `yaml:"tertiary"`
	Relationship float64 `yaml:"relationship"`
}

// ForLevel returns the floor for an effect level.
func (f ConfidenceFloors) ForLevel(level int) float64 {
	switch level {
	case models.LevelPrimary:
		return f.Primary
	case models.LevelSecondary:
		return f.Secondary
	default:
		return f.Tertiary
	}
}

// Rules is the full rule set shared by classifier, scorer, tracker and validator.
type Rules struct {
	DefaultDomain     models.Domain                     `yaml:"default_domain"`
	DomainKeywords    map[models.Domain][]string        `yaml:"domain_keywords"`
	Stopwords         []string                          `yaml:"stopwords"`
	RelatedDomains    map[models.Domain][]models.Domain `yaml:"related_domains"`
	Underrepresented  []models.Domain                   `yaml:"underrepresented"`
	Overrepresented   []models.Domain                   `yaml:"overrepresented"`
	SensitiveDomains  []models.Domain                   `yaml:"sensitive_domains"`
	ForbiddenCrossing map[models.Domain][]models.Domain `yaml:"forbidden_crossovers"`
	ForbiddenPhrases  []string                          `yaml:"forbidden_mechanisms"`
	Floors            ConfidenceFloors                  `yaml:"confidence_floors"`
	Weights           Weights                           `yaml:"weights"`
	EventURLPrefix    string                            `yaml:"event_url_prefix"`
}

// Load reads a YAML rule file on top of the defaults. Tables present in the
// file replace the default table wholesale; scalar fields left at zero keep
// their default value.
func Load(path string) (*Rules, error) {
	r := Default()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	r.merge(&override)

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rules) merge(o *Rules) {
	if o.DefaultDomain != "" {
		r.DefaultDomain = o.DefaultDomain
	}
	if o.DomainKeywords != nil {
		r.DomainKeywords = o.DomainKeywords
	}
	if o.Stopwords != nil {
		r.Stopwords = o.Stopwords
	}
	if o.RelatedDomains != nil {
		r.RelatedDomains = o.RelatedDomains
	}
	if o.Underrepresented != nil {
		r.Underrepresented = o.Underrepresented
	}
	if o.Overrepresented != nil {
		r.Overrepresented = o.Overrepresented
	}
	if o.SensitiveDomains != nil {
		r.SensitiveDomains = o.SensitiveDomains
	}
	if o.ForbiddenCrossing != nil {
		r.ForbiddenCrossing = o.ForbiddenCrossing
	}
	if o.ForbiddenPhrases != nil {
		r.ForbiddenPhrases = o.ForbiddenPhrases
	}
	if o.EventURLPrefix != "" {
		r.EventURLPrefix = o.EventURLPrefix
	}
	mergeFloat(&r.Floors.Primary, o.Floors.Primary)
	mergeFloat(&r.Floors.Secondary, o.Floors.Secondary)
	mergeFloat(&r.Floors.Tertiary, o.Floors.Tertiary)
	mergeFloat(&r.Floors.Relationship, o.Floors.Relationship)

	w, ow := &r.Weights, o.Weights
	mergeFloat(&w.SameDomain, ow.SameDomain)
	mergeFloat(&w.RelatedDomain, ow.RelatedDomain)
	mergeFloat(&w.ExactKeyword, ow.ExactKeyword)
	mergeFloat(&w.PartialKeyword, ow.PartialKeyword)
	mergeFloat(&w.PartialKeywordCap, ow.PartialKeywordCap)
	mergeFloat(&w.VolumeBonusThreshold, ow.VolumeBonusThreshold)
	mergeFloat(&w.VolumeBonusDivisor, ow.VolumeBonusDivisor)
	mergeFloat(&w.VolumeBonusCap, ow.VolumeBonusCap)
	mergeFloat(&w.Underrepresented, ow.Underrepresented)
	mergeFloat(&w.Overrepresented, ow.Overrepresented)
	mergeFloat(&w.FreshnessPenalty, ow.FreshnessPenalty)
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// Validate checks that every domain named in the tables is a known tag.
func (r *Rules) Validate() error {
	check := func(where string, d models.Domain) error {
		if _, ok := models.ParseDomain(string(d)); !ok {
			return fmt.Errorf("rules: unknown domain %q in %s", d, where)
		}
		return nil
	}

	if err := check("default_domain", r.DefaultDomain); err != nil {
		return err
	}
	for d := range r.DomainKeywords {
		if err := check("domain_keywords", d); err != nil {
			return err
		}
	}
	for _, table := range []struct {
		name string
		m    map[models.Domain][]models.Domain
	}{{"related_domains", r.RelatedDomains}, {"forbidden_crossovers", r.ForbiddenCrossing}} {
		for k, vs := range table.m {
			if err := check(table.name, k); err != nil {
				return err
			}
			for _, v := range vs {
				if err := check(table.name, v); err != nil {
					return err
				}
			}
		}
	}
	for _, set := range [][]models.Domain{r.Underrepresented, r.Overrepresented, r.SensitiveDomains} {
		for _, d := range set {
			if err := check("domain set", d); err != nil {
				return err
			}
		}
	}
	if r.Floors.Primary < 0 || r.Floors.Primary > 1 {
		return fmt.Errorf("rules: primary floor %v out of [0,1]", r.Floors.Primary)
	}
	return nil
}

// IsRelated reports whether candidate is in trigger's related-domain row.
// The table is directional.
func (r *Rules) IsRelated(trigger, candidate models.Domain) bool {
	return containsDomain(r.RelatedDomains[trigger], candidate)
}

func (r *Rules) IsUnderrepresented(d models.Domain) bool {
	return containsDomain(r.Underrepresented, d)
}

func (r *Rules) IsOverrepresented(d models.Domain) bool {
	return containsDomain(r.Overrepresented, d)
}

func (r *Rules) IsSensitive(d models.Domain) bool {
	return containsDomain(r.SensitiveDomains, d)
}

// IsForbiddenCrossing checks the crossover table in both directions.
func (r *Rules) IsForbiddenCrossing(declared, effect models.Domain) bool {
	return containsDomain(r.ForbiddenCrossing[declared], effect) ||
		containsDomain(r.ForbiddenCrossing[effect], declared)
}

// ForbiddenPhrase returns the first forbidden phrase found in text.
func (r *Rules) ForbiddenPhrase(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range r.ForbiddenPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// EventURL is the canonical reference for an event slug.
func (r *Rules) EventURL(slug string) string {
	return strings.TrimRight(r.EventURLPrefix, "/") + "/" + slug
}

// IsStopword reports whether the token is ignored for keyword matching.
func (r *Rules) IsStopword(token string) bool {
	for _, s := range r.Stopwords {
		if s == token {
			return true
		}
	}
	return false
}

func containsDomain(set []models.Domain, d models.Domain) bool {
	for _, s := range set {
		if s == d {
			return true
		}
	}
	return false
}
