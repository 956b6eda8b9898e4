package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(rules.Default())

	tests := []struct {
		title string
		want  models.Domain
	}{
		{"Will the Lakers win the NBA Finals?", models.DomainSports},
		{"Will Bitcoin hit $150k?", models.DomainCrypto},
		{"Will the Fed cut interest rates in March?", models.DomainEconomic},
		{"Who will win the 2028 election?", models.DomainPolitical},
		{"Will a hurricane make landfall in Florida?", models.DomainClimate},
		{"Completely unrelated question", models.DomainEconomic},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.title))
		})
	}
}

func TestClassifyMatchesWholeTokens(t *testing.T) {
	c := NewClassifier(rules.Default())
	// "teammate" must not count as "team", "ethical" must not count as "eth"
	assert.Equal(t, models.DomainEconomic, c.Classify("Is the teammate ethical?"))
}

func TestKeywords(t *testing.T) {
	c := NewClassifier(rules.Default())
	assert.Equal(t, []string{"lakers", "finals"}, c.Keywords("Will the Lakers win the NBA Finals in 2025? Finals!"))
	assert.Empty(t, c.Keywords("Will it be?"))
}

func TestCandidateKeepsStoredDomain(t *testing.T) {
	c := NewClassifier(rules.Default())
	e := testEvent("1", "s", "Will Bitcoin hit $150k?", 0)
	e.Domain = models.DomainTechnology

	cand := c.Candidate(e)
	assert.Equal(t, models.DomainTechnology, cand.Domain)
	assert.Equal(t, []string{"bitcoin", "150k"}, cand.Keywords)
}
