package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cascade-engine/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for callers composing their own queries.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn with a repository bound to a single transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// UpsertEvents stores the latest known state of events.
func (r *Repository) UpsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&events).Error
}

// GetEvent retrieves a stored event.
func (r *Repository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateCascade persists an accepted cascade with its effects, relationships
// and referenced events, and enqueues every event for resolution.
func (r *Repository) CreateCascade(ctx context.Context, cascade *models.Cascade, events []models.Event) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.UpsertEvents(ctx, events); err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Create(cascade).Error; err != nil {
			return err
		}

		slugs := make(map[string]string, len(events))
		for _, e := range events {
			slugs[e.ID] = e.Slug
		}
		entries := make([]models.ResolutionQueueEntry, 0, len(slugs))
		for _, id := range cascade.EventIDs() {
			entries = append(entries, models.ResolutionQueueEntry{
				EventID:   id,
				EventSlug: slugs[id],
				Status:    models.QueueStatusPending,
			})
		}
		return tx.EnqueueEvents(ctx, entries)
	})
}

// GetCascade retrieves a cascade with effects and relationships.
func (r *Repository) GetCascade(ctx context.Context, id uuid.UUID) (*models.Cascade, error) {
	var cascade models.Cascade
	err := r.db.WithContext(ctx).
		Preload("Effects").
		Preload("Relationships").
		Where("id = ?", id).
		First(&cascade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cascade, nil
}

// ListCascades returns cascades newest first, optionally filtered by status.
func (r *Repository) ListCascades(ctx context.Context, status string, limit, offset int) ([]models.Cascade, error) {
	var cascades []models.Cascade
	query := r.db.WithContext(ctx).Preload("Effects").Preload("Relationships")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&cascades).Error
	return cascades, err
}

// RecentCascades returns the latest n cascades, oldest first.
func (r *Repository) RecentCascades(ctx context.Context, n int) ([]models.Cascade, error) {
	var cascades []models.Cascade
	if err := r.db.WithContext(ctx).
		Preload("Effects").
		Order("created_at DESC").
		Limit(n).
		Find(&cascades).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(cascades)-1; i < j; i, j = i+1, j-1 {
		cascades[i], cascades[j] = cascades[j], cascades[i]
	}
	return cascades, nil
}

// EnqueueEvents inserts queue entries, skipping events already queued.
func (r *Repository) EnqueueEvents(ctx context.Context, entries []models.ResolutionQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entries).Error
}

// PendingEntries returns pending queue entries in creation order.
func (r *Repository) PendingEntries(ctx context.Context) ([]models.ResolutionQueueEntry, error) {
	var entries []models.ResolutionQueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", models.QueueStatusPending).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// FindQueueEntry looks an entry up by event id or slug.
func (r *Repository) FindQueueEntry(ctx context.Context, ref string) (*models.ResolutionQueueEntry, error) {
	var entry models.ResolutionQueueEntry
	err := r.db.WithContext(ctx).
		Where("event_id = ? OR event_slug = ?", ref, ref).
		Order("id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LockQueueEntry is FindQueueEntry with a row lock held until the
// surrounding transaction ends.
func (r *Repository) LockQueueEntry(ctx context.Context, ref string) (*models.ResolutionQueueEntry, error) {
	var entry models.ResolutionQueueEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ? OR event_slug = ?", ref, ref).
		Order("id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// TouchQueueEntry records that a pending entry was checked.
func (r *Repository) TouchQueueEntry(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ResolutionQueueEntry{}).
		Where("id = ? AND status = ?", id, models.QueueStatusPending).
		Update("last_checked_at", at).Error
}

// MarkQueueEntryResolved moves a pending entry to resolved. It reports false
// when the entry was not pending any more.
func (r *Repository) MarkQueueEntryResolved(ctx context.Context, eventID, outcome string, payload datatypes.JSON, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ResolutionQueueEntry{}).
		Where("event_id = ? AND status = ?", eventID, models.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":          models.QueueStatusResolved,
			"outcome":         outcome,
			"payload":         payload,
			"resolved_at":     at,
			"last_checked_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteResolvedBefore removes entries resolved before the cutoff.
func (r *Repository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND resolved_at < ?", models.QueueStatusResolved, cutoff).
		Delete(&models.ResolutionQueueEntry{})
	return res.RowsAffected, res.Error
}

// QueueCounts returns the number of pending and resolved entries.
func (r *Repository) QueueCounts(ctx context.Context) (pending, resolved int64, err error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err = r.db.WithContext(ctx).
		Model(&models.ResolutionQueueEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, rw := range rows {
		switch models.QueueStatus(rw.Status) {
		case models.QueueStatusPending:
			pending = rw.Count
		case models.QueueStatusResolved:
			resolved = rw.Count
		}
	}
	return pending, resolved, nil
}

// ResolveCascadesForEvent marks LIVE cascades that use the event as RESOLVED
// once none of their events is still pending.
func (r *Repository) ResolveCascadesForEvent(ctx context.Context, eventID string, at time.Time) (int, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Cascade{}).
		Where("status = ?", models.CascadeStatusLive).
		Where("trigger_event_id = ? OR id IN (?)", eventID,
			r.db.Model(&models.CascadeEffect{}).Select("cascade_id").Where("event_id = ?", eventID)).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, id := range ids {
		cascade, err := r.GetCascade(ctx, id)
		if err != nil {
			return resolved, err
		}
		var pending int64
		if err := r.db.WithContext(ctx).
			Model(&models.ResolutionQueueEntry{}).
			Where("event_id IN ? AND status = ?", cascade.EventIDs(), models.QueueStatusPending).
			Count(&pending).Error; err != nil {
			return resolved, err
		}
		if pending > 0 {
			continue
		}
		res := r.db.WithContext(ctx).
			Model(&models.Cascade{}).
			Where("id = ? AND status = ?", id, models.CascadeStatusLive).
			Updates(map[string]interface{}{"status": models.CascadeStatusResolved, "resolved_at": at})
		if res.Error != nil {
			return resolved, res.Error
		}
		resolved += int(res.RowsAffected)
	}
	return resolved, nil
}

// CreatePrediction stores a new unscored prediction.
func (r *Repository) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetPrediction retrieves a prediction by id.
func (r *Repository) GetPrediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	var p models.Prediction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenPredictionsForEvent returns unscored predictions settled by the event.
func (r *Repository) OpenPredictionsForEvent(ctx context.Context, eventID string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND is_correct IS NULL", eventID).
		Order("created_at ASC").
		Find(&predictions).Error
	return predictions, err
}

// ScorePrediction writes the settlement result if the prediction is still
// unscored. It reports false when another settlement got there first.
func (r *Repository) ScorePrediction(ctx context.Context, id uuid.UUID, correct bool, points int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("id = ? AND is_correct IS NULL", id).
		Updates(map[string]interface{}{
			"is_correct":    correct,
			"points_earned": points,
			"resolved_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetUserProgress returns the stored progress or ErrNotFound.
func (r *Repository) GetUserProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	var p models.UserProgress
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateUserProgress lazily creates the progress row on first use.
func (r *Repository) GetOrCreateUserProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	p, err := r.GetUserProgress(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := models.NewUserProgress(userID)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.GetUserProgress(ctx, userID)
}

// LockUserProgress creates the progress row if needed and reads it with a
// row lock. Call it inside Transaction so the lock spans the write back.
func (r *Repository) LockUserProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	fresh := models.NewUserProgress(userID)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, err
	}

	var p models.UserProgress
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveUserProgress persists the full progress record.
func (r *Repository) SaveUserProgress(ctx context.Context, p *models.UserProgress) error {
	return r.db.WithContext(ctx).Save(p).Error
}
