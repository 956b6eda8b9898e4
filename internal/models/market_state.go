package models

// MarketState is the current state of an event as reported by the market-data
// source. ResolvedOutcome is set only when the source names a winner.
type MarketState struct {
	EventID         string
	Slug            string
	Closed          bool
	ResolvedOutcome string
	OutcomePrices   map[string]float64
}
