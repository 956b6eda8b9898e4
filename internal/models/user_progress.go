package models

import "time"

// SkillRecord aggregates attempts in one category or tier.
type SkillRecord struct {
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// UserProgress is the per-user gamification state. Only the progression
// updater writes it.
type UserProgress struct {
	ID            uint                   `gorm:"primaryKey" json:"id"`
	UserID        string                 `gorm:"size:128;not null;uniqueIndex" json:"user_id"`
	TotalAttempts int                    `gorm:"default:0" json:"total_attempts"`
	CorrectCount  int                    `gorm:"default:0" json:"correct_count"`
	Level         int                    `gorm:"default:1" json:"level"`
	Experience    int                    `gorm:"default:0" json:"experience"`
	Skills        map[Domain]SkillRecord `gorm:"serializer:json" json:"skills"`
	TierStats     map[Tier]SkillRecord   `gorm:"serializer:json" json:"tier_stats"`
	UnlockedTiers []Tier                 `gorm:"serializer:json" json:"unlocked_tiers"`
	Badges        []string               `gorm:"serializer:json" json:"badges"`
	CurrentStreak int                    `gorm:"default:0" json:"current_streak"`
	BestStreak    int                    `gorm:"default:0" json:"best_streak"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// NewUserProgress returns the initial state for a user seen for the first time.
func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID:        userID,
		Level:         1,
		Skills:        map[Domain]SkillRecord{},
		TierStats:     map[Tier]SkillRecord{},
		UnlockedTiers: []Tier{TierBeginner},
		Badges:        []string{},
	}
}

// HasTier reports whether the tier is unlocked.
func (p *UserProgress) HasTier(t Tier) bool {
	for _, u := range p.UnlockedTiers {
		if u == t {
			return true
		}
	}
	return false
}

// HasBadge reports whether the badge was already earned.
func (p *UserProgress) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b == id {
			return true
		}
	}
	return false
}
