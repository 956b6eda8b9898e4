package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

func TestLevelFor(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	assert.Equal(t, 1, u.LevelFor(0))
	assert.Equal(t, 1, u.LevelFor(99))
	assert.Equal(t, 2, u.LevelFor(100))
	assert.Equal(t, 3, u.LevelFor(250))
	assert.Equal(t, 9, u.LevelFor(11999))
	assert.Equal(t, 10, u.LevelFor(12000))
	assert.Equal(t, 10, u.LevelFor(1_000_000))
}

func TestApplyFirstPrediction(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	p := models.NewUserProgress("alice")

	res := u.Apply(p, ProgressUpdate{Category: models.DomainSports, Tier: models.TierBeginner, Correct: true, Points: 120})

	assert.Equal(t, 1, p.TotalAttempts)
	assert.Equal(t, 1, p.CorrectCount)
	assert.Equal(t, 120, p.Experience)
	assert.Equal(t, 2, p.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, models.SkillRecord{Attempts: 1, Correct: 1, Accuracy: 1}, p.Skills[models.DomainSports])
	assert.ElementsMatch(t, []string{BadgeFirstPrediction, BadgeFirstCorrect}, res.NewBadges)

	res = u.Apply(p, ProgressUpdate{Category: models.DomainSports, Tier: models.TierBeginner, Correct: false})
	assert.Empty(t, res.NewBadges)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, 1, p.BestStreak)
	assert.Equal(t, 0.5, p.Skills[models.DomainSports].Accuracy)
}

func TestApplyStreakBadges(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	p := models.NewUserProgress("bob")

	var earned []string
	for i := 0; i < 10; i++ {
		res := u.Apply(p, ProgressUpdate{Category: models.DomainEconomic, Correct: true, Points: 1})
		earned = append(earned, res.NewBadges...)
	}
	assert.Contains(t, earned, "streak_5")
	assert.Contains(t, earned, "streak_10")
	assert.NotContains(t, earned, "streak_25")
	assert.Equal(t, 10, p.BestStreak)

	// losing and rebuilding a streak does not award the badge twice
	u.Apply(p, ProgressUpdate{Correct: false})
	for i := 0; i < 5; i++ {
		res := u.Apply(p, ProgressUpdate{Correct: true})
		assert.NotContains(t, res.NewBadges, "streak_5")
	}
}

func TestApplyUnlocksTierOnCrossingCall(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	p := models.NewUserProgress("carol")
	p.Experience = 300 // level 3 already
	p.Level = 3

	// 9 attempts with 6 correct: enough accuracy, not enough attempts
	for i := 0; i < 9; i++ {
		res := u.Apply(p, ProgressUpdate{Tier: models.TierBeginner, Correct: i < 6})
		require.Empty(t, res.NewTiers, "attempt %d", i+1)
	}
	assert.False(t, p.HasTier(models.TierIntermediate))

	// 10th attempt brings 6/10 = 0.6, exactly the threshold
	res := u.Apply(p, ProgressUpdate{Tier: models.TierBeginner, Correct: false})
	assert.Equal(t, []models.Tier{models.TierIntermediate}, res.NewTiers)
	assert.Contains(t, res.NewBadges, "tier_intermediate")
	assert.True(t, p.HasTier(models.TierIntermediate))

	res = u.Apply(p, ProgressUpdate{Tier: models.TierBeginner, Correct: true})
	assert.Empty(t, res.NewTiers)
	assert.NotContains(t, res.NewBadges, "tier_intermediate")
}

func TestApplyTierNeedsLevelFloor(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	p := models.NewUserProgress("dave")

	for i := 0; i < 12; i++ {
		u.Apply(p, ProgressUpdate{Tier: models.TierBeginner, Correct: true, Points: 10})
	}
	// 120 xp is level 2, below the level 3 floor
	assert.Equal(t, 2, p.Level)
	assert.False(t, p.HasTier(models.TierIntermediate))

	res := u.Apply(p, ProgressUpdate{Tier: models.TierBeginner, Correct: true, Points: 200})
	assert.Equal(t, []models.Tier{models.TierIntermediate}, res.NewTiers)
}

func TestApplyLevelBadges(t *testing.T) {
	u := NewProgressionUpdater(DefaultProgressionRules())
	p := models.NewUserProgress("erin")

	res := u.Apply(p, ProgressUpdate{Correct: true, Points: 12000})
	assert.Equal(t, 10, p.Level)
	assert.Contains(t, res.NewBadges, "level_5")
	assert.Contains(t, res.NewBadges, "level_10")
}

func TestUpdateProgressPersists(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	u := NewProgressionUpdater(DefaultProgressionRules())
	ctx := context.Background()

	_, err := u.UpdateProgress(ctx, repo, "frank", ProgressUpdate{Category: models.DomainCrypto, Tier: models.TierBeginner, Correct: true, Points: 150})
	require.NoError(t, err)
	res, err := u.UpdateProgress(ctx, repo, "frank", ProgressUpdate{Category: models.DomainCrypto, Tier: models.TierBeginner, Correct: false})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Progress.TotalAttempts)

	stored, err := repo.GetUserProgress(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TotalAttempts)
	assert.Equal(t, 150, stored.Experience)
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, 2, stored.Skills[models.DomainCrypto].Attempts)
	assert.Equal(t, 2, stored.TierStats[models.TierBeginner].Attempts)
	assert.ElementsMatch(t, []string{BadgeFirstPrediction, BadgeFirstCorrect}, stored.Badges)
	assert.Equal(t, []models.Tier{models.TierBeginner}, stored.UnlockedTiers)
}

func TestUpdateProgressReadsWithRowLock(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	u := NewProgressionUpdater(DefaultProgressionRules())
	ctx := context.Background()

	var locked, unlocked int
	err := db.Callback().Query().Before("gorm:query").Register("test:lock_check", func(tx *gorm.DB) {
		if tx.Statement.Table != "user_progress" {
			return
		}
		if c, ok := tx.Statement.Clauses["FOR"]; ok {
			if l, ok := c.Expression.(clause.Locking); ok && l.Strength == "UPDATE" {
				locked++
				return
			}
		}
		unlocked++
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := repo.Transaction(ctx, func(tx *repository.Repository) error {
			_, err := u.UpdateProgress(ctx, tx, "gina", ProgressUpdate{Category: models.DomainSports, Tier: models.TierBeginner, Correct: true, Points: 100})
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, locked)
	assert.Zero(t, unlocked)

	stored, err := repo.GetUserProgress(ctx, "gina")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TotalAttempts)
	assert.Equal(t, 200, stored.Experience)
}
