package models

import (
	"time"

	"gorm.io/datatypes"
)

type QueueStatus string

const (
	QueueStatusPending  QueueStatus = "pending"
	QueueStatusResolved QueueStatus = "resolved"
)

// ResolutionQueueEntry tracks one event awaiting settlement. There is at most
// one entry per event and it only ever moves pending -> resolved.
type ResolutionQueueEntry struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	EventID       string         `gorm:"size:64;not null;uniqueIndex" json:"event_id"`
	EventSlug     string         `gorm:"size:255;index" json:"event_slug"`
	Status        QueueStatus    `gorm:"size:20;not null;default:pending;index" json:"status"`
	LastCheckedAt *time.Time     `json:"last_checked_at,omitempty"`
	Outcome       string         `gorm:"size:32" json:"outcome,omitempty"`
	Payload       datatypes.JSON `json:"payload,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	ResolvedAt    *time.Time     `gorm:"index" json:"resolved_at,omitempty"`
}

func (ResolutionQueueEntry) TableName() string {
	return "resolution_queue"
}

// ResolutionSnapshot is the closing state stored in the entry payload.
type ResolutionSnapshot struct {
	Outcome       string             `json:"outcome"`
	Source        string             `json:"source"` // poller or manual
	Closed        bool               `json:"closed"`
	OutcomePrices map[string]float64 `json:"outcome_prices,omitempty"`
	Explicit      bool               `json:"explicit"`
	CapturedAt    time.Time          `json:"captured_at"`
}
