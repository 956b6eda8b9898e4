package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascade-engine/internal/models"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestIsForbiddenCrossing_BothDirections(t *testing.T) {
	r := Default()
	assert.True(t, r.IsForbiddenCrossing(models.DomainSports, models.DomainPolitical))
	assert.True(t, r.IsForbiddenCrossing(models.DomainPolitical, models.DomainSports))
	assert.False(t, r.IsForbiddenCrossing(models.DomainEconomic, models.DomainCrypto))
}

func TestIsRelated_Asymmetric(t *testing.T) {
	r := Default()
	assert.True(t, r.IsRelated(models.DomainEconomic, models.DomainCrypto))
	assert.False(t, r.IsRelated(models.DomainCrypto, models.DomainEconomic))
}

func TestForbiddenPhrase_CaseInsensitive(t *testing.T) {
	r := Default()
	p, ok := r.ForbiddenPhrase("Traders react to Market Sentiment after the vote")
	assert.True(t, ok)
	assert.Equal(t, "market sentiment", p)

	_, ok = r.ForbiddenPhrase("Rate cut lowers mortgage costs for homebuilders")
	assert.False(t, ok)
}

func TestEventURL(t *testing.T) {
	r := Default()
	assert.Equal(t, "https://polymarket.com/event/fed-decision", r.EventURL("fed-decision"))
}

func TestLoad_OverridesTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
forbidden_mechanisms:
  - "hand waving"
confidence_floors:
  primary: 0.9
weights:
  same_domain: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"hand waving"}, r.ForbiddenPhrases)
	assert.Equal(t, 0.9, r.Floors.Primary)
	assert.Equal(t, 0.65, r.Floors.Secondary)
	assert.Equal(t, 50.0, r.Weights.SameDomain)
	assert.Equal(t, 25.0, r.Weights.ExactKeyword)
	assert.NotEmpty(t, r.DomainKeywords)
}

func TestLoad_RejectsUnknownDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensitive_domains: [WEATHERMEN]\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.DomainEconomic, r.DefaultDomain)
}
