package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a prediction-market event pulled from the event pool.
type Event struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	Slug        string          `gorm:"size:255;index" json:"slug"`
	Title       string          `gorm:"size:500;not null" json:"title"`
	Domain      Domain          `gorm:"size:32;index" json:"domain"`
	Volume      decimal.Decimal `gorm:"type:decimal(24,4)" json:"volume"`
	Liquidity   decimal.Decimal `gorm:"type:decimal(24,4)" json:"liquidity"`
	MarketCount int             `gorm:"default:0" json:"market_count"`
	Closed      bool            `gorm:"default:false" json:"closed"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// TableName specifies the table name for Event model
func (Event) TableName() string {
	return "events"
}

// VolumeFloat returns the volume as a float for scoring.
func (e Event) VolumeFloat() float64 {
	return e.Volume.InexactFloat64()
}
