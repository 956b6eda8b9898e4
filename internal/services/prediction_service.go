package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

var (
	ErrInvalidPrediction = errors.New("invalid prediction")
	ErrTierLocked        = errors.New("tier not unlocked")
	ErrEventClosed       = errors.New("event already resolved")
)

// PredictionRequest is a user's submission.
type PredictionRequest struct {
	UserID           string      `json:"-"`
	TargetType       string      `json:"target_type" binding:"required,oneof=challenge cascade"`
	TargetID         string      `json:"target_id" binding:"required"`
	EventID          string      `json:"event_id"`
	Tier             models.Tier `json:"tier"`
	PredictedOutcome string      `json:"predicted_outcome" binding:"required"`
	Confidence       int         `json:"confidence" binding:"required,min=1,max=5"`
	Reasoning        string      `json:"reasoning"`
}

// PredictionService accepts predictions on queued events.
type PredictionService struct {
	repo *repository.Repository
	now  func() time.Time
}

func NewPredictionService(repo *repository.Repository) *PredictionService {
	return &PredictionService{repo: repo, now: time.Now}
}

// Submit stores a prediction against an event that is still pending
// resolution. For a cascade target the event defaults to the trigger and
// must belong to the cascade.
func (s *PredictionService) Submit(ctx context.Context, req PredictionRequest) (*models.Prediction, error) {
	outcome, ok := NormalizeOutcome(req.PredictedOutcome)
	if !ok {
		return nil, ErrInvalidOutcome
	}
	if req.Confidence < models.MinConfidence || req.Confidence > models.MaxConfidence {
		return nil, fmt.Errorf("%w: confidence must be between %d and %d", ErrInvalidPrediction, models.MinConfidence, models.MaxConfidence)
	}
	if req.Tier == "" {
		req.Tier = models.TierBeginner
	}

	progress, err := s.repo.GetOrCreateUserProgress(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	if !progress.HasTier(req.Tier) {
		return nil, fmt.Errorf("%w: %s", ErrTierLocked, req.Tier)
	}

	prediction := &models.Prediction{
		UserID:           req.UserID,
		TargetID:         req.TargetID,
		Tier:             req.Tier,
		PredictedOutcome: outcome,
		Confidence:       req.Confidence,
		Reasoning:        strings.TrimSpace(req.Reasoning),
		CreatedAt:        s.now(),
	}

	// The queue entry stays locked until the insert commits, so settlement
	// either sees this prediction or rejects it as closed.
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		switch req.TargetType {
		case models.TargetTypeCascade:
			if err := s.bindCascade(ctx, tx, prediction, req.EventID); err != nil {
				return err
			}
		case models.TargetTypeChallenge:
			if err := s.bindChallenge(ctx, tx, prediction, req.EventID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown target type %q", ErrInvalidPrediction, req.TargetType)
		}
		if err := tx.CreatePrediction(ctx, prediction); err != nil {
			return fmt.Errorf("failed to save prediction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prediction, nil
}

func (s *PredictionService) bindCascade(ctx context.Context, tx *repository.Repository, p *models.Prediction, eventID string) error {
	id, err := uuid.Parse(p.TargetID)
	if err != nil {
		return fmt.Errorf("%w: bad cascade id", ErrInvalidPrediction)
	}
	cascade, err := tx.GetCascade(ctx, id)
	if err != nil {
		return err
	}
	if eventID == "" {
		eventID = cascade.TriggerEventID
	}
	member := false
	for _, e := range cascade.EventIDs() {
		if e == eventID {
			member = true
			break
		}
	}
	if !member {
		return fmt.Errorf("%w: event %s is not part of cascade %s", ErrInvalidPrediction, eventID, id)
	}

	if err := requirePending(ctx, tx, eventID); err != nil {
		return err
	}
	p.TargetType = models.TargetTypeCascade
	p.EventID = eventID
	p.Category = cascade.Domain
	p.OpenedAt = cascade.CreatedAt
	if e, err := tx.GetEvent(ctx, eventID); err == nil && e.Domain != "" {
		p.Category = e.Domain
	}
	return nil
}

// bindChallenge targets a single queued event; the target id is the event.
func (s *PredictionService) bindChallenge(ctx context.Context, tx *repository.Repository, p *models.Prediction, eventID string) error {
	if eventID == "" {
		eventID = p.TargetID
	}
	entry, err := tx.LockQueueEntry(ctx, eventID)
	if err != nil {
		return err
	}
	if entry.Status != models.QueueStatusPending {
		return ErrEventClosed
	}
	p.TargetType = models.TargetTypeChallenge
	p.EventID = entry.EventID
	p.OpenedAt = entry.CreatedAt
	if e, err := tx.GetEvent(ctx, entry.EventID); err == nil {
		p.Category = e.Domain
	}
	return nil
}

func requirePending(ctx context.Context, tx *repository.Repository, eventID string) error {
	entry, err := tx.LockQueueEntry(ctx, eventID)
	if err != nil {
		return err
	}
	if entry.Status != models.QueueStatusPending {
		return ErrEventClosed
	}
	return nil
}
