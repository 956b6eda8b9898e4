package rules

import "cascade-engine/internal/models"

// Default returns the built-in rule set.
func Default() *Rules {
	return &Rules{
		DefaultDomain: models.DomainEconomic,
		DomainKeywords: map[models.Domain][]string{
			models.DomainSports: {
				"nba", "nfl", "mlb", "nhl", "soccer", "football", "basketball", "baseball",
				"hockey", "tennis", "golf", "championship", "super bowl", "world cup",
				"playoffs", "finals", "league", "olympics", "match", "team", "coach", "mvp",
			},
			models.DomainEconomic: {
				"fed", "interest rate", "rates", "inflation", "cpi", "gdp", "recession",
				"unemployment", "jobs report", "tariff", "treasury", "stock", "s&p",
				"nasdaq", "dow", "earnings", "oil price", "economy", "bank",
			},
			models.DomainTechnology: {
				"openai", "apple", "google", "microsoft", "nvidia", "tesla", "iphone",
				"chip", "semiconductor", "software", "launch", "model", "tech", "spacex",
			},
			models.DomainHealth: {
				"covid", "vaccine", "pandemic", "outbreak", "virus", "fda", "disease",
				"measles", "bird flu", "hospital", "drug", "world health",
			},
			models.DomainEntertainment: {
				"oscar", "oscars", "grammy", "emmy", "movie", "film", "box office",
				"album", "song", "netflix", "taylor swift", "celebrity", "tv show", "award",
			},
			models.DomainGeopolitical: {
				"war", "ukraine", "russia", "china", "taiwan", "israel", "iran", "gaza",
				"nato", "ceasefire", "invasion", "sanctions", "missile", "military", "treaty",
			},
			models.DomainClimate: {
				"climate", "hurricane", "temperature", "heatwave", "wildfire", "emissions",
				"carbon", "flood", "drought", "weather", "hottest", "storm",
			},
			models.DomainPolitical: {
				"trump", "biden", "election", "president", "congress", "senate", "house",
				"democrat", "republican", "vote", "governor", "primary", "nominee",
				"impeachment", "poll", "cabinet", "supreme court",
			},
			models.DomainCrypto: {
				"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "token", "coin",
				"defi", "etf", "stablecoin", "binance", "coinbase", "memecoin",
			},
		},
		Stopwords: []string{
			"will", "the", "and", "for", "with", "this", "that", "from", "before",
			"after", "than", "more", "less", "by", "end", "of", "in", "on", "at",
			"be", "to", "a", "an", "or", "what", "when", "which", "who", "does",
			"have", "has", "into", "over", "under", "above", "below", "between",
			"2024", "2025", "2026", "2027", "year", "month", "week", "reach",
			"price", "least", "most", "any", "next",
		},
		RelatedDomains: map[models.Domain][]models.Domain{
			models.DomainEconomic:      {models.DomainCrypto, models.DomainPolitical},
			models.DomainPolitical:     {models.DomainEconomic, models.DomainGeopolitical},
			models.DomainGeopolitical:  {models.DomainEconomic, models.DomainClimate},
			models.DomainTechnology:    {models.DomainEconomic},
			models.DomainCrypto:        {models.DomainTechnology},
			models.DomainClimate:       {models.DomainEconomic},
			models.DomainHealth:        {models.DomainEconomic},
			models.DomainSports:        {models.DomainEntertainment},
			models.DomainEntertainment: {models.DomainTechnology},
		},
		Underrepresented: []models.Domain{
			models.DomainHealth, models.DomainClimate, models.DomainTechnology, models.DomainEntertainment,
		},
		Overrepresented: []models.Domain{
			models.DomainPolitical, models.DomainGeopolitical,
		},
		SensitiveDomains: []models.Domain{
			models.DomainPolitical, models.DomainGeopolitical, models.DomainCrypto,
		},
		ForbiddenCrossing: map[models.Domain][]models.Domain{
			models.DomainSports:        {models.DomainPolitical, models.DomainGeopolitical, models.DomainClimate},
			models.DomainEntertainment: {models.DomainGeopolitical, models.DomainPolitical},
			models.DomainCrypto:        {models.DomainHealth, models.DomainSports},
			models.DomainHealth:        {models.DomainEntertainment},
		},
		ForbiddenPhrases: []string{
			"market sentiment",
			"sentiment shift",
			"general uncertainty",
			"could potentially",
			"might affect",
			"may impact",
			"indirectly influence",
			"ripple effect",
			"various factors",
			"somehow",
			"in some way",
			"broadly impact",
			"risk appetite",
			"investor mood",
			"vibes",
		},
		Floors: ConfidenceFloors{
			Primary:      0.75,
			Secondary:    0.65,
			Tertiary:     0.60,
			Relationship: 0.6,
		},
		Weights: Weights{
			SameDomain:           40,
			RelatedDomain:        20,
			ExactKeyword:         25,
			PartialKeyword:       12,
			PartialKeywordCap:    36,
			VolumeBonusThreshold: 1_000_000,
			VolumeBonusDivisor:   10_000_000,
			VolumeBonusCap:       1.5,
			Underrepresented:     15,
			Overrepresented:      -5,
			FreshnessPenalty:     -10,
		},
		EventURLPrefix: "https://polymarket.com/event",
	}
}
