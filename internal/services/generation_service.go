package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cascade-engine/internal/logging"
	"cascade-engine/internal/metrics"
	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
)

// ErrNoTrigger is returned when no pool event is eligible as a trigger.
var ErrNoTrigger = errors.New("no eligible trigger event")

// RejectionError carries the validator's reasons for discarding a cascade.
type RejectionError struct {
	Reasons []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("cascade rejected: %s", strings.Join(e.Reasons, "; "))
}

// EventSource pages through open events, largest volume first.
type EventSource interface {
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)
}

// GenerationConfig controls one generation cycle.
type GenerationConfig struct {
	PageSize      int
	MaxPages      int
	TargetEffects int
	Timeout       time.Duration
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PageSize:      100,
		MaxPages:      3,
		TargetEffects: 6,
		Timeout:       90 * time.Second,
	}
}

// GenerationService runs the candidate selection and validation pipeline and
// persists accepted cascades.
type GenerationService struct {
	source       EventSource
	repo         *repository.Repository
	classifier   *Classifier
	scorer       *RelevanceScorer
	tracker      *DiversityTracker
	orchestrator *Orchestrator
	validator    *CascadeValidator
	cfg          GenerationConfig
	log          zerolog.Logger
}

func NewGenerationService(
	source EventSource,
	repo *repository.Repository,
	classifier *Classifier,
	scorer *RelevanceScorer,
	tracker *DiversityTracker,
	orchestrator *Orchestrator,
	validator *CascadeValidator,
	cfg GenerationConfig,
) *GenerationService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &GenerationService{
		source:       source,
		repo:         repo,
		classifier:   classifier,
		scorer:       scorer,
		tracker:      tracker,
		orchestrator: orchestrator,
		validator:    validator,
		cfg:          cfg,
		log:          logging.Component("generation"),
	}
}

// Rehydrate seeds the diversity tracker from the latest persisted cascades.
func (s *GenerationService) Rehydrate(ctx context.Context, n int) error {
	cascades, err := s.repo.RecentCascades(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to load recent cascades: %w", err)
	}
	for i := range cascades {
		s.tracker.RecordFromCascade(&cascades[i])
	}
	s.log.Info().Int("cascades", len(cascades)).Msg("diversity history restored")
	return nil
}

// FetchPool pages through the event source, dropping closed events and
// duplicates.
func (s *GenerationService) FetchPool(ctx context.Context) ([]models.Event, error) {
	seen := make(map[string]bool)
	var pool []models.Event

	for page := 0; page < s.cfg.MaxPages; page++ {
		events, err := s.source.ListEvents(ctx, s.cfg.PageSize, page*s.cfg.PageSize)
		if err != nil {
			if len(pool) > 0 {
				s.log.Warn().Err(err).Int("page", page).Msg("stopping pool fetch early")
				break
			}
			return nil, fmt.Errorf("failed to fetch event pool: %w", err)
		}
		for _, e := range events {
			if e.ID == "" || e.Closed || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			if e.Domain == "" {
				e.Domain = s.classifier.Classify(e.Title)
			}
			pool = append(pool, e)
		}
		if len(events) < s.cfg.PageSize {
			break
		}
	}
	return pool, nil
}

// SelectTrigger picks the highest-volume event whose domain the diversity
// tracker currently allows.
func (s *GenerationService) SelectTrigger(pool []models.Event) (Candidate, error) {
	ordered := append([]models.Event(nil), pool...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Volume.GreaterThan(ordered[j].Volume)
	})
	for _, e := range ordered {
		c := s.classifier.Candidate(e)
		if s.tracker.ShouldAllowDomain(c.Domain) {
			return c, nil
		}
	}
	return Candidate{}, ErrNoTrigger
}

// GenerateNext fetches a pool, picks a trigger and runs one attempt.
func (s *GenerationService) GenerateNext(ctx context.Context) (*models.Cascade, error) {
	pool, err := s.FetchPool(ctx)
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues("failed").Inc()
		return nil, err
	}
	trigger, err := s.SelectTrigger(pool)
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues("failed").Inc()
		return nil, err
	}
	return s.GenerateForTrigger(ctx, trigger, pool)
}

// GenerateForTrigger ranks the pool against the trigger, asks the generator
// for a cascade, validates it and persists it on acceptance. Nothing is
// written for a failed or rejected attempt.
func (s *GenerationService) GenerateForTrigger(ctx context.Context, trigger Candidate, pool []models.Event) (*models.Cascade, error) {
	ranked := s.scorer.Rank(trigger, pool)
	candidates := s.orchestrator.PromptCandidates(ranked)

	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	gc, err := s.orchestrator.Generate(genCtx, GenerationRequest{
		Trigger:       trigger,
		Candidates:    candidates,
		TargetEffects: s.cfg.TargetEffects,
	})
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues("failed").Inc()
		s.log.Warn().Err(err).Str("trigger", trigger.Event.ID).Msg("generation attempt failed")
		return nil, err
	}

	result := s.validator.Validate(gc, trigger, candidates)
	if !result.Accepted() {
		metrics.GenerationAttempts.WithLabelValues("rejected").Inc()
		s.log.Info().
			Str("trigger", trigger.Event.ID).
			Strs("reasons", result.Reasons()).
			Msg("cascade rejected")
		return nil, &RejectionError{Reasons: result.Reasons()}
	}

	cascade, events := s.buildCascade(gc, trigger, candidates)
	if err := s.repo.CreateCascade(ctx, cascade, events); err != nil {
		metrics.GenerationAttempts.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to persist cascade: %w", err)
	}
	s.tracker.RecordFromCascade(cascade)
	metrics.GenerationAttempts.WithLabelValues("accepted").Inc()

	s.log.Info().
		Str("cascade_id", cascade.ID.String()).
		Str("domain", string(cascade.Domain)).
		Int("effects", len(cascade.Effects)).
		Msg("cascade accepted")
	return cascade, nil
}

// buildCascade converts an accepted document into models, returning the
// events it references starting with the trigger.
func (s *GenerationService) buildCascade(gc *GeneratedCascade, trigger Candidate, candidates []ScoredCandidate) (*models.Cascade, []models.Event) {
	byID := make(map[string]models.Event, len(candidates))
	for _, c := range candidates {
		byID[c.Event.ID] = c.Event
	}

	domain, _ := models.ParseDomain(gc.Domain)
	cascade := &models.Cascade{
		Name:           gc.Name,
		Description:    gc.Description,
		Domain:         domain,
		Severity:       gc.Severity,
		Status:         models.CascadeStatusLive,
		TriggerEventID: trigger.Event.ID,
		Risks:          gc.Risks,
	}
	if cascade.Risks == nil {
		cascade.Risks = []string{}
	}

	triggerEvent := trigger.Event
	triggerEvent.Domain = trigger.Domain
	events := []models.Event{triggerEvent}
	seen := map[string]bool{trigger.Event.ID: true}

	for _, level := range []int{models.LevelPrimary, models.LevelSecondary, models.LevelTertiary} {
		for i, ge := range gc.EffectsAt(level) {
			effect := models.CascadeEffect{
				EventID:    ge.EventID,
				MarketName: ge.MarketName,
				URL:        ge.URL,
				Direction:  models.Direction(ge.Direction),
				Magnitude:  ge.Magnitude,
				Timing:     ge.Timing,
				Confidence: ge.Confidence,
				Reason:     ge.Reason,
				Level:      level,
				Position:   i,
			}
			if ge.TriggeredBy != "" {
				by := ge.TriggeredBy
				effect.TriggeredBy = &by
			}
			cascade.Effects = append(cascade.Effects, effect)

			if !seen[ge.EventID] {
				seen[ge.EventID] = true
				events = append(events, byID[ge.EventID])
			}
		}
	}

	for _, gr := range gc.Relationships {
		cascade.Relationships = append(cascade.Relationships, models.CascadeRelationship{
			SourceEventID: gr.SourceEventID,
			TargetEventID: gr.TargetEventID,
			Type:          gr.Type,
			Mechanism:     gr.Mechanism,
			Strength:      gr.Strength,
			Confidence:    gr.Confidence,
		})
	}
	return cascade, events
}
