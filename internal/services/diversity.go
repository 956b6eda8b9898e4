package services

import (
	"sync"
	"time"

	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

const (
	// DefaultHistorySize is how many accepted cascades the tracker keeps.
	DefaultHistorySize = 10
	// sensitiveWindow is how many of the latest cascades the domain gate inspects.
	sensitiveWindow = 3
)

// CascadeRecord is what the tracker remembers about an accepted cascade.
type CascadeRecord struct {
	CascadeID  string
	Domain     models.Domain
	EventIDs   []string
	RecordedAt time.Time
}

// DiversityTracker is a bounded FIFO of recently accepted cascades. It is
// owned by the generation pipeline, not global.
type DiversityTracker struct {
	mu       sync.RWMutex
	rules    *rules.Rules
	capacity int
	records  []CascadeRecord
}

func NewDiversityTracker(r *rules.Rules, capacity int) *DiversityTracker {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &DiversityTracker{rules: r, capacity: capacity}
}

// ShouldAllowDomain vetoes a sensitive domain that already appears among the
// last three cascades. With fewer than three recorded it always allows.
func (t *DiversityTracker) ShouldAllowDomain(d models.Domain) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.records) < sensitiveWindow {
		return true
	}
	if !t.rules.IsSensitive(d) {
		return true
	}
	for _, r := range t.records[len(t.records)-sensitiveWindow:] {
		if r.Domain == d {
			return false
		}
	}
	return true
}

// RecordCascade appends a cascade, evicting the oldest beyond capacity.
func (t *DiversityTracker) RecordCascade(rec CascadeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	t.records = append(t.records, rec)
	if over := len(t.records) - t.capacity; over > 0 {
		t.records = append([]CascadeRecord(nil), t.records[over:]...)
	}
}

// RecordFromCascade records a persisted cascade.
func (t *DiversityTracker) RecordFromCascade(c *models.Cascade) {
	t.RecordCascade(CascadeRecord{
		CascadeID:  c.ID.String(),
		Domain:     c.Domain,
		EventIDs:   c.EventIDs(),
		RecordedAt: c.CreatedAt,
	})
}

// EventAppearances counts how many tracked cascades used the event.
func (t *DiversityTracker) EventAppearances(eventID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, r := range t.records {
		for _, id := range r.EventIDs {
			if id == eventID {
				n++
				break
			}
		}
	}
	return n
}

// DomainCounts tallies domains across the tracked window.
func (t *DiversityTracker) DomainCounts() map[models.Domain]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[models.Domain]int)
	for _, r := range t.records {
		counts[r.Domain]++
	}
	return counts
}

func (t *DiversityTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Snapshot returns a copy of the tracked records, oldest first.
func (t *DiversityTracker) Snapshot() []CascadeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]CascadeRecord(nil), t.records...)
}
