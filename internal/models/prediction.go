package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Tier string

const (
	TierBeginner     Tier = "BEGINNER"
	TierIntermediate Tier = "INTERMEDIATE"
	TierAdvanced     Tier = "ADVANCED"
	TierExpert       Tier = "EXPERT"
)

// Tiers is ordered easiest to hardest.
var Tiers = []Tier{TierBeginner, TierIntermediate, TierAdvanced, TierExpert}

const (
	TargetTypeChallenge = "challenge"
	TargetTypeCascade   = "cascade"
)

const (
	MinConfidence = 1
	MaxConfidence = 5
)

// Prediction is a user's call on the outcome of an event. IsCorrect stays nil
// until settlement; settlement never touches a row that already has it.
type Prediction struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string     `gorm:"size:128;not null;index" json:"user_id"`
	TargetType       string     `gorm:"size:20;not null" json:"target_type"`
	TargetID         string     `gorm:"size:64;not null;index" json:"target_id"`
	EventID          string     `gorm:"size:64;not null;index" json:"event_id"`
	Category         Domain     `gorm:"size:32" json:"category"`
	Tier             Tier       `gorm:"size:20;not null;default:BEGINNER" json:"tier"`
	PredictedOutcome string     `gorm:"size:32;not null" json:"predicted_outcome"`
	Confidence       int        `gorm:"not null" json:"confidence"`
	Reasoning        string     `gorm:"type:text" json:"reasoning,omitempty"`
	IsCorrect        *bool      `gorm:"index" json:"is_correct"`
	PointsEarned     int        `gorm:"default:0" json:"points_earned"`
	OpenedAt         time.Time  `json:"opened_at"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func (Prediction) TableName() string {
	return "predictions"
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = p.CreatedAt
	}
	return nil
}
