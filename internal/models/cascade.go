package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CascadeStatus string

const (
	CascadeStatusLive     CascadeStatus = "LIVE"
	CascadeStatusResolved CascadeStatus = "RESOLVED"
)

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Effect levels
const (
	LevelPrimary   = 1
	LevelSecondary = 2
	LevelTertiary  = 3
)

// Cascade is a validated trigger event plus its downstream effects. Only the
// status and resolution fields change after creation.
type Cascade struct {
	ID             uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string                `gorm:"size:255;not null" json:"name"`
	Description    string                `gorm:"type:text" json:"description"`
	Domain         Domain                `gorm:"size:32;not null;index" json:"domain"`
	Severity       int                   `gorm:"not null" json:"severity"`
	Status         CascadeStatus         `gorm:"size:20;not null;default:LIVE;index" json:"status"`
	TriggerEventID string                `gorm:"size:64;not null;index" json:"trigger_event_id"`
	Effects        []CascadeEffect       `gorm:"foreignKey:CascadeID" json:"effects,omitempty"`
	Relationships  []CascadeRelationship `gorm:"foreignKey:CascadeID" json:"relationships,omitempty"`
	Risks          []string              `gorm:"serializer:json" json:"risks"`
	CreatedAt      time.Time             `gorm:"index" json:"created_at"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
}

func (Cascade) TableName() string {
	return "cascades"
}

func (c *Cascade) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// EffectsAt returns the effects of one level in their generated order.
func (c *Cascade) EffectsAt(level int) []CascadeEffect {
	var out []CascadeEffect
	for _, e := range c.Effects {
		if e.Level == level {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// EventIDs returns the trigger followed by every distinct effect event.
func (c *Cascade) EventIDs() []string {
	seen := map[string]bool{c.TriggerEventID: true}
	ids := []string{c.TriggerEventID}
	for _, e := range c.Effects {
		if !seen[e.EventID] {
			seen[e.EventID] = true
			ids = append(ids, e.EventID)
		}
	}
	return ids
}

// CascadeEffect is one predicted market reaction at a given level.
type CascadeEffect struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CascadeID   uuid.UUID `gorm:"type:uuid;not null;index" json:"cascade_id"`
	EventID     string    `gorm:"size:64;not null;index" json:"event_id"`
	MarketName  string    `gorm:"size:500;not null" json:"market_name"`
	URL         string    `gorm:"size:500" json:"url"`
	Direction   Direction `gorm:"size:8;not null" json:"direction"`
	Magnitude   float64   `json:"magnitude"`
	Timing      string    `gorm:"size:64" json:"timing"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `gorm:"type:text" json:"reason"`
	Level       int       `gorm:"not null;index" json:"level"`
	TriggeredBy *string   `gorm:"size:64" json:"triggered_by,omitempty"`
	Position    int       `json:"position"`
}

func (CascadeEffect) TableName() string {
	return "cascade_effects"
}

func (e *CascadeEffect) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// CascadeRelationship is a typed causal edge between two events of a cascade.
type CascadeRelationship struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CascadeID     uuid.UUID `gorm:"type:uuid;not null;index" json:"cascade_id"`
	SourceEventID string    `gorm:"size:64;not null" json:"source_event_id"`
	TargetEventID string    `gorm:"size:64;not null" json:"target_event_id"`
	Type          string    `gorm:"size:64" json:"type"`
	Mechanism     string    `gorm:"type:text;not null" json:"mechanism"`
	Strength      float64   `json:"strength"`
	Confidence    float64   `json:"confidence"`
}

func (CascadeRelationship) TableName() string {
	return "cascade_relationships"
}
