package services

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cascade-engine/internal/database"
	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

// setupTestDB opens a private in-memory database for one test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func testEvent(id, slug, title string, volume int64) models.Event {
	return models.Event{ID: id, Slug: slug, Title: title, Volume: decimal.NewFromInt(volume)}
}

func testCandidate(e models.Event, d models.Domain, keywords ...string) Candidate {
	e.Domain = d
	return Candidate{Event: e, Domain: d, Keywords: keywords}
}

// fakeGenerator returns a canned response and records the prompt.
type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

// sportsFixture is a SPORTS trigger with a small candidate pool.
type sportsFixture struct {
	rules      *rules.Rules
	trigger    Candidate
	celtics    ScoredCandidate
	movie      ScoredCandidate
	president  ScoredCandidate
	candidates []ScoredCandidate
}

func newSportsFixture() *sportsFixture {
	f := &sportsFixture{rules: rules.Default()}
	f.trigger = testCandidate(testEvent("100", "lakers-nba-finals", "Will the Lakers win the NBA Finals?", 5_000_000),
		models.DomainSports, "lakers", "finals")
	f.celtics = ScoredCandidate{Candidate: testCandidate(
		testEvent("201", "celtics-east-finals", "Will the Celtics reach the Eastern Conference Finals?", 900_000),
		models.DomainSports, "celtics", "reach", "eastern", "conference", "finals"), Score: 65}
	f.movie = ScoredCandidate{Candidate: testCandidate(
		testEvent("202", "basketball-movie-box-office", "Will a basketball movie top the box office?", 300_000),
		models.DomainEntertainment, "basketball", "movie", "office"), Score: 35}
	f.president = ScoredCandidate{Candidate: testCandidate(
		testEvent("203", "president-attends-finals", "Will the President attend the NBA Finals?", 200_000),
		models.DomainPolitical, "president", "attend", "finals"), Score: 20}
	f.candidates = []ScoredCandidate{f.celtics, f.movie, f.president}
	return f
}

func (f *sportsFixture) effect(c ScoredCandidate, confidence float64, triggeredBy string) GeneratedEffect {
	return GeneratedEffect{
		EventID:     c.Event.ID,
		MarketName:  c.Event.Title,
		URL:         f.rules.EventURL(c.Event.Slug),
		Direction:   "DOWN",
		Magnitude:   20,
		Timing:      "1-2 weeks",
		Confidence:  confidence,
		Reason:      "A Lakers title run removes the Celtics from the same bracket",
		TriggeredBy: triggeredBy,
	}
}

// validCascade passes every validator rule against the fixture.
func (f *sportsFixture) validCascade() *GeneratedCascade {
	movie := f.effect(f.movie, 0.7, f.celtics.Event.ID)
	movie.Direction = "UP"
	movie.Reason = "Finals viewership lifts ticket sales for basketball releases"
	return &GeneratedCascade{
		Name:             "Lakers championship run",
		Description:      "Downstream effects of a Lakers title",
		Domain:           "SPORTS",
		Severity:         5,
		PrimaryEffects:   []GeneratedEffect{f.effect(f.celtics, 0.8, f.trigger.Event.ID)},
		SecondaryEffects: []GeneratedEffect{movie},
		Relationships: []GeneratedRelationship{{
			SourceEventID: f.trigger.Event.ID,
			TargetEventID: f.celtics.Event.ID,
			Type:          "elimination",
			Mechanism:     "Only one team can advance from the playoff bracket",
			Strength:      0.8,
			Confidence:    0.8,
		}},
		Risks: []string{"injuries"},
	}
}
