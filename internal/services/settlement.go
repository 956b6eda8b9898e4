package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"cascade-engine/internal/logging"
	"cascade-engine/internal/metrics"
	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

const (
	SourcePoller = "poller"
	SourceManual = "manual"
)

// SettlementReport summarizes one settlement of an event.
type SettlementReport struct {
	EventID          string              `json:"event_id"`
	Outcome          string              `json:"outcome"`
	Settled          int                 `json:"settled"`
	Skipped          int                 `json:"skipped"`
	EntryResolved    bool                `json:"entry_resolved"`
	CascadesResolved int                 `json:"cascades_resolved"`
	NewBadges        map[string][]string `json:"new_badges,omitempty"`
}

// SettlementService scores the open predictions of a resolved event, advances
// user progression and closes the queue entry. Running it twice for the same
// event changes nothing the second time.
type SettlementService struct {
	repo        *repository.Repository
	scorer      *PredictionScorer
	progression *ProgressionUpdater
	now         func() time.Time
	log         zerolog.Logger
}

func NewSettlementService(repo *repository.Repository, scorer *PredictionScorer, progression *ProgressionUpdater) *SettlementService {
	return &SettlementService{
		repo:        repo,
		scorer:      scorer,
		progression: progression,
		now:         time.Now,
		log:         logging.Component("settlement"),
	}
}

// SettleEvent settles every open prediction on the event. If any prediction
// fails, the queue entry stays pending so the next sweep retries it. Open
// predictions are swept again once the entry is resolved.
func (s *SettlementService) SettleEvent(ctx context.Context, eventID, outcome string, snapshot models.ResolutionSnapshot) (*SettlementReport, error) {
	outcome, ok := NormalizeOutcome(outcome)
	if !ok {
		return nil, ErrInvalidOutcome
	}

	report := &SettlementReport{EventID: eventID, Outcome: outcome, NewBadges: map[string][]string{}}

	if err := s.settleOpen(ctx, eventID, outcome, report); err != nil {
		return report, err
	}

	now := s.now()
	snapshot.Outcome = outcome
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = now
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return report, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	resolved, err := s.repo.MarkQueueEntryResolved(ctx, eventID, outcome, datatypes.JSON(payload), now)
	if err != nil {
		return report, fmt.Errorf("failed to resolve queue entry %s: %w", eventID, err)
	}
	report.EntryResolved = resolved
	if resolved {
		metrics.EventsResolved.WithLabelValues(snapshot.Source).Inc()
	}

	// Predictions committed between the first pass and the status flip.
	if err := s.settleOpen(ctx, eventID, outcome, report); err != nil {
		return report, err
	}

	n, err := s.repo.ResolveCascadesForEvent(ctx, eventID, now)
	if err != nil {
		return report, fmt.Errorf("failed to resolve cascades for %s: %w", eventID, err)
	}
	report.CascadesResolved = n

	s.log.Info().
		Str("event_id", eventID).
		Str("outcome", outcome).
		Int("settled", report.Settled).
		Int("skipped", report.Skipped).
		Bool("entry_resolved", resolved).
		Msg("event settled")
	return report, nil
}

// SettleStragglers scores predictions still open on an event whose queue
// entry is already resolved, using the stored outcome.
func (s *SettlementService) SettleStragglers(ctx context.Context, eventID, outcome string) (*SettlementReport, error) {
	outcome, ok := NormalizeOutcome(outcome)
	if !ok {
		return nil, ErrInvalidOutcome
	}
	report := &SettlementReport{EventID: eventID, Outcome: outcome, NewBadges: map[string][]string{}}
	if err := s.settleOpen(ctx, eventID, outcome, report); err != nil {
		return report, err
	}
	if report.Settled > 0 {
		s.log.Info().Str("event_id", eventID).Int("settled", report.Settled).Msg("late predictions settled")
	}
	return report, nil
}

// settleOpen scores every open prediction on the event into report.
func (s *SettlementService) settleOpen(ctx context.Context, eventID, outcome string, report *SettlementReport) error {
	predictions, err := s.repo.OpenPredictionsForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load predictions for %s: %w", eventID, err)
	}

	var failed int
	for _, p := range predictions {
		settled, badges, err := s.settleOne(ctx, p, outcome)
		if err != nil {
			failed++
			s.log.Error().Err(err).Str("prediction_id", p.ID.String()).Str("event_id", eventID).Msg("settlement failed")
			continue
		}
		if !settled {
			report.Skipped++
			continue
		}
		report.Settled++
		if len(badges) > 0 {
			report.NewBadges[p.UserID] = append(report.NewBadges[p.UserID], badges...)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to settle %d of %d predictions for %s", failed, len(predictions), eventID)
	}
	return nil
}

// settleOne scores one prediction and updates its owner's progression in a
// single transaction. It reports false when the prediction was already scored.
func (s *SettlementService) settleOne(ctx context.Context, p models.Prediction, outcome string) (bool, []string, error) {
	result := s.scorer.Score(p, outcome)
	var badges []string
	var settled bool

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ok, err := tx.ScorePrediction(ctx, p.ID, result.Correct, result.Points, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		progress, err := s.progression.UpdateProgress(ctx, tx, p.UserID, ProgressUpdate{
			Category: p.Category,
			Tier:     p.Tier,
			Correct:  result.Correct,
			Points:   result.Points,
		})
		if err != nil {
			return err
		}
		settled = true
		badges = progress.NewBadges
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	if settled {
		metrics.PredictionsSettled.WithLabelValues(strconv.FormatBool(result.Correct)).Inc()
	}
	return settled, badges, nil
}
