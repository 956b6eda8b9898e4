package services

import (
	"strings"

	"cascade-engine/internal/models"
)

const (
	OutcomeYes = "yes"
	OutcomeNo  = "no"
)

// NormalizeOutcome lowercases a binary outcome. ok is false for anything
// other than yes or no.
func NormalizeOutcome(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case OutcomeYes:
		return OutcomeYes, true
	case OutcomeNo:
		return OutcomeNo, true
	}
	return "", false
}

// DetermineOutcome picks the binary outcome of a closed market. An explicit
// resolved value wins, then the side with the higher final price. Anything
// ambiguous resolves to "no".
func DetermineOutcome(state models.MarketState) string {
	if outcome, ok := NormalizeOutcome(state.ResolvedOutcome); ok {
		return outcome
	}

	var yes, no float64
	var haveYes, haveNo bool
	for name, price := range state.OutcomePrices {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case OutcomeYes:
			yes, haveYes = price, true
		case OutcomeNo:
			no, haveNo = price, true
		}
	}
	if haveYes && haveNo && yes > no {
		return OutcomeYes
	}
	if haveYes && !haveNo && yes > 0.5 {
		return OutcomeYes
	}
	return OutcomeNo
}
