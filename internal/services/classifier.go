package services

import (
	"strings"
	"unicode"

	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

// minKeywordLen is the shortest token kept as a keyword; shorter ones are noise.
const minKeywordLen = 4

// Classifier tags events with a domain and extracts title keywords.
type Classifier struct {
	rules *rules.Rules
}

func NewClassifier(r *rules.Rules) *Classifier {
	return &Classifier{rules: r}
}

// Classify picks the domain whose keyword list has the most matches in the
// title. Ties go to the earlier domain; no match yields the default domain.
func (c *Classifier) Classify(title string) models.Domain {
	lower := strings.ToLower(title)
	tokens := make(map[string]bool)
	for _, t := range tokenize(lower) {
		tokens[t] = true
	}

	best := c.rules.DefaultDomain
	bestCount := 0
	for _, d := range models.Domains {
		count := 0
		for _, kw := range c.rules.DomainKeywords[d] {
			if strings.ContainsRune(kw, ' ') || strings.ContainsRune(kw, '&') {
				if strings.Contains(lower, kw) {
					count++
				}
			} else if tokens[kw] {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// Keywords returns the distinct significant tokens of a title, in order of
// first appearance.
func (c *Classifier) Keywords(title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokenize(strings.ToLower(title)) {
		if len(t) < minKeywordLen || c.rules.IsStopword(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Candidate is an event with its derived domain and keyword set.
func (c *Classifier) Candidate(e models.Event) Candidate {
	d := e.Domain
	if d == "" {
		d = c.Classify(e.Title)
	}
	e.Domain = d
	return Candidate{Event: e, Domain: d, Keywords: c.Keywords(e.Title)}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
