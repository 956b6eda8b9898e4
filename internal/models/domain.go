package models

import "strings"

// Domain is the coarse topic tag attached to events and cascades.
type Domain string

const (
	DomainSports        Domain = "SPORTS"
	DomainEconomic      Domain = "ECONOMIC"
	DomainTechnology    Domain = "TECHNOLOGY"
	DomainHealth        Domain = "HEALTH"
	DomainEntertainment Domain = "ENTERTAINMENT"
	DomainGeopolitical  Domain = "GEOPOLITICAL"
	DomainClimate       Domain = "CLIMATE"
	DomainPolitical     Domain = "POLITICAL"
	DomainCrypto        Domain = "CRYPTO"
)

// Domains lists every tag in enumeration order. Classifier ties resolve to the
// earliest entry.
var Domains = []Domain{
	DomainSports,
	DomainEconomic,
	DomainTechnology,
	DomainHealth,
	DomainEntertainment,
	DomainGeopolitical,
	DomainClimate,
	DomainPolitical,
	DomainCrypto,
}

// ParseDomain normalizes a free-form tag. The second return is false for
// unknown tags.
func ParseDomain(s string) (Domain, bool) {
	d := Domain(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Domains {
		if d == known {
			return d, true
		}
	}
	return "", false
}
