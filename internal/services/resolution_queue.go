package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

var (
	// ErrInvalidOutcome is returned for outcomes other than yes or no.
	ErrInvalidOutcome = errors.New("outcome must be yes or no")
	// ErrNotFound is returned when an event reference matches no queue entry.
	ErrNotFound = repository.ErrNotFound
)

// SweepReporter tells whether a poll sweep is in progress.
type SweepReporter interface {
	IsRunning() bool
}

// QueueStatus is the externally visible queue state.
type QueueStatus struct {
	Pending     int64 `json:"pending"`
	Resolved    int64 `json:"resolved"`
	SweepActive bool  `json:"sweep_active"`
}

type ResolutionQueueService struct {
	repo       *repository.Repository
	settlement *SettlementService
	sweeps     SweepReporter
}

func NewResolutionQueueService(repo *repository.Repository, settlement *SettlementService) *ResolutionQueueService {
	return &ResolutionQueueService{repo: repo, settlement: settlement}
}

// SetSweepReporter attaches the poller once it exists.
func (s *ResolutionQueueService) SetSweepReporter(r SweepReporter) {
	s.sweeps = r
}

// Enqueue adds events to the queue. Events already queued are left alone.
func (s *ResolutionQueueService) Enqueue(ctx context.Context, events []models.Event) error {
	entries := make([]models.ResolutionQueueEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, models.ResolutionQueueEntry{
			EventID:   e.ID,
			EventSlug: e.Slug,
			Status:    models.QueueStatusPending,
		})
	}
	if err := s.repo.EnqueueEvents(ctx, entries); err != nil {
		return fmt.Errorf("failed to enqueue events: %w", err)
	}
	return nil
}

// Status returns pending and resolved counts and whether a sweep is running.
func (s *ResolutionQueueService) Status(ctx context.Context) (*QueueStatus, error) {
	pending, resolved, err := s.repo.QueueCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	status := &QueueStatus{Pending: pending, Resolved: resolved}
	if s.sweeps != nil {
		status.SweepActive = s.sweeps.IsRunning()
	}
	return status, nil
}

// ResolveManually runs the poller's settlement path synchronously for the
// event identified by id or slug. An already resolved entry keeps its stored
// outcome; only predictions left open on it are settled.
func (s *ResolutionQueueService) ResolveManually(ctx context.Context, ref, outcome string) (*SettlementReport, error) {
	normalized, ok := NormalizeOutcome(outcome)
	if !ok {
		return nil, ErrInvalidOutcome
	}
	entry, err := s.repo.FindQueueEntry(ctx, ref)
	if err != nil {
		return nil, err
	}
	if entry.Status == models.QueueStatusResolved {
		return s.settlement.SettleStragglers(ctx, entry.EventID, entry.Outcome)
	}

	return s.settlement.SettleEvent(ctx, entry.EventID, normalized, models.ResolutionSnapshot{
		Source:     SourceManual,
		Closed:     true,
		Explicit:   true,
		CapturedAt: time.Now(),
	})
}
