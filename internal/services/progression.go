package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

const (
	BadgeFirstPrediction = "first_prediction"
	BadgeFirstCorrect    = "first_correct"
)

// accuracyEpsilon absorbs float noise when comparing against a threshold.
const accuracyEpsilon = 1e-9

// TierUnlockRule gates a tier behind a level floor and a track record on the
// tier below it. All three conditions must hold.
type TierUnlockRule struct {
	Tier        models.Tier
	MinLevel    int
	PriorTier   models.Tier
	MinAttempts int
	MinAccuracy float64
}

// ProgressionRules are the tables driving level, tier and badge changes.
type ProgressionRules struct {
	LevelThresholds []int // experience needed for level i+1, ascending
	TierUnlocks     []TierUnlockRule
	StreakBadges    []int
	LevelBadges     []int
}

func DefaultProgressionRules() ProgressionRules {
	return ProgressionRules{
		LevelThresholds: []int{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000},
		TierUnlocks: []TierUnlockRule{
			{Tier: models.TierIntermediate, MinLevel: 3, PriorTier: models.TierBeginner, MinAttempts: 10, MinAccuracy: 0.60},
			{Tier: models.TierAdvanced, MinLevel: 5, PriorTier: models.TierIntermediate, MinAttempts: 15, MinAccuracy: 0.65},
			{Tier: models.TierExpert, MinLevel: 8, PriorTier: models.TierAdvanced, MinAttempts: 20, MinAccuracy: 0.70},
		},
		StreakBadges: []int{5, 10, 25},
		LevelBadges:  []int{5, 10},
	}
}

// ProgressUpdate describes one scored prediction.
type ProgressUpdate struct {
	Category models.Domain
	Tier     models.Tier
	Correct  bool
	Points   int
}

// ProgressionResult reports what changed for the user.
type ProgressionResult struct {
	Progress      *models.UserProgress `json:"progress"`
	PreviousLevel int                  `json:"previous_level"`
	LeveledUp     bool                 `json:"leveled_up"`
	NewTiers      []models.Tier        `json:"new_tiers"`
	NewBadges     []string             `json:"new_badges"`
}

type ProgressionUpdater struct {
	rules ProgressionRules
}

func NewProgressionUpdater(rules ProgressionRules) *ProgressionUpdater {
	return &ProgressionUpdater{rules: rules}
}

// LevelFor scans the threshold table from the top down.
func (u *ProgressionUpdater) LevelFor(experience int) int {
	for i := len(u.rules.LevelThresholds) - 1; i >= 0; i-- {
		if experience >= u.rules.LevelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

// Apply folds one scored prediction into progress and returns the changes.
// It mutates p in place and touches no storage.
func (u *ProgressionUpdater) Apply(p *models.UserProgress, upd ProgressUpdate) ProgressionResult {
	ensureProgressMaps(p)
	before := *p
	beforeTiers := append([]models.Tier(nil), p.UnlockedTiers...)

	p.TotalAttempts++
	if upd.Correct {
		p.CorrectCount++
		p.CurrentStreak++
	} else {
		p.CurrentStreak = 0
	}
	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}

	p.Experience += upd.Points
	p.Level = u.LevelFor(p.Experience)

	if upd.Category != "" {
		p.Skills[upd.Category] = bumpRecord(p.Skills[upd.Category], upd.Correct)
	}
	tier := upd.Tier
	if tier == "" {
		tier = models.TierBeginner
	}
	p.TierStats[tier] = bumpRecord(p.TierStats[tier], upd.Correct)

	result := ProgressionResult{
		Progress:      p,
		PreviousLevel: before.Level,
		LeveledUp:     p.Level > before.Level,
		NewTiers:      []models.Tier{},
		NewBadges:     []string{},
	}

	for _, rule := range u.rules.TierUnlocks {
		if p.HasTier(rule.Tier) || !u.tierEligible(p, rule) {
			continue
		}
		p.UnlockedTiers = append(p.UnlockedTiers, rule.Tier)
		result.NewTiers = append(result.NewTiers, rule.Tier)
	}

	award := func(id string) {
		if p.HasBadge(id) {
			return
		}
		p.Badges = append(p.Badges, id)
		result.NewBadges = append(result.NewBadges, id)
	}

	if before.TotalAttempts == 0 && p.TotalAttempts > 0 {
		award(BadgeFirstPrediction)
	}
	if before.CorrectCount == 0 && p.CorrectCount > 0 {
		award(BadgeFirstCorrect)
	}
	for _, n := range u.rules.StreakBadges {
		if before.CurrentStreak < n && p.CurrentStreak >= n {
			award(fmt.Sprintf("streak_%d", n))
		}
	}
	for _, t := range result.NewTiers {
		if !containsTier(beforeTiers, t) {
			award("tier_" + strings.ToLower(string(t)))
		}
	}
	for _, n := range u.rules.LevelBadges {
		if before.Level < n && p.Level >= n {
			award(fmt.Sprintf("level_%d", n))
		}
	}

	return result
}

func (u *ProgressionUpdater) tierEligible(p *models.UserProgress, rule TierUnlockRule) bool {
	if p.Level < rule.MinLevel {
		return false
	}
	rec := p.TierStats[rule.PriorTier]
	if rec.Attempts < rule.MinAttempts {
		return false
	}
	return rec.Accuracy+accuracyEpsilon >= rule.MinAccuracy
}

// UpdateProgress locks (or creates) the user's progress row, applies the
// update and saves it. Pass a transaction-bound repository so the row lock
// holds until the save commits with scoring.
func (u *ProgressionUpdater) UpdateProgress(ctx context.Context, repo *repository.Repository, userID string, upd ProgressUpdate) (*ProgressionResult, error) {
	progress, err := repo.LockUserProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for %s: %w", userID, err)
	}
	result := u.Apply(progress, upd)
	if err := repo.SaveUserProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("failed to save progress for %s: %w", userID, err)
	}
	return &result, nil
}

func bumpRecord(rec models.SkillRecord, correct bool) models.SkillRecord {
	rec.Attempts++
	if correct {
		rec.Correct++
	}
	rec.Accuracy = math.Round(float64(rec.Correct)/float64(rec.Attempts)*1e6) / 1e6
	return rec
}

func ensureProgressMaps(p *models.UserProgress) {
	if p.Skills == nil {
		p.Skills = map[models.Domain]models.SkillRecord{}
	}
	if p.TierStats == nil {
		p.TierStats = map[models.Tier]models.SkillRecord{}
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	if len(p.UnlockedTiers) == 0 {
		p.UnlockedTiers = []models.Tier{models.TierBeginner}
	}
	if p.Level == 0 {
		p.Level = 1
	}
}

func containsTier(tiers []models.Tier, t models.Tier) bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}
