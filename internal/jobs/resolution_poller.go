package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cascade-engine/internal/logging"
	"cascade-engine/internal/metrics"
	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
	"cascade-engine/internal/services"
)

// MarketStateSource fetches the current state of one event.
type MarketStateSource interface {
	GetEventState(ctx context.Context, eventID string) (*models.MarketState, error)
}

// PollerConfig controls the resolution poller schedule.
type PollerConfig struct {
	Interval  time.Duration
	CallDelay time.Duration // minimum gap between upstream calls
	Retention time.Duration // how long resolved entries are kept
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:  15 * time.Minute,
		CallDelay: 500 * time.Millisecond,
		Retention: 7 * 24 * time.Hour,
	}
}

// SweepSummary reports one pass over the pending queue.
type SweepSummary struct {
	Skipped   bool          `json:"skipped"`
	Checked   int           `json:"checked"`
	Resolved  int           `json:"resolved"`
	StillOpen int           `json:"still_open"`
	Failed    int           `json:"failed"`
	Purged    int64         `json:"purged"`
	Duration  time.Duration `json:"duration"`
}

// ResolutionPoller periodically checks pending queue entries against the
// market-data source and settles the ones that closed. Only one sweep runs
// at a time; a sweep that finds another in progress is skipped.
type ResolutionPoller struct {
	repo       *repository.Repository
	source     MarketStateSource
	settlement *services.SettlementService
	cfg        PollerConfig
	limiter    *rate.Limiter
	cron       *cron.Cron
	running    atomic.Bool
	wg         sync.WaitGroup
	now        func() time.Time
	log        zerolog.Logger
}

func NewResolutionPoller(repo *repository.Repository, source MarketStateSource, settlement *services.SettlementService, cfg PollerConfig) *ResolutionPoller {
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	return &ResolutionPoller{
		repo:       repo,
		source:     source,
		settlement: settlement,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		cron:       cron.New(),
		now:        time.Now,
		log:        logging.Component("resolution-poller"),
	}
}

// Start runs one sweep immediately and schedules the rest.
func (p *ResolutionPoller) Start() error {
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("starting resolution poller")

	if _, err := p.cron.AddFunc("@every "+p.cfg.Interval.String(), p.run); err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run()
	}()
	p.cron.Start()
	return nil
}

// Stop stops scheduling and waits for an in-flight sweep to finish.
func (p *ResolutionPoller) Stop() {
	<-p.cron.Stop().Done()
	p.wg.Wait()
	p.log.Info().Msg("resolution poller stopped")
}

// IsRunning reports whether a sweep is in progress.
func (p *ResolutionPoller) IsRunning() bool {
	return p.running.Load()
}

func (p *ResolutionPoller) run() {
	if _, err := p.Poll(context.Background()); err != nil {
		p.log.Error().Err(err).Msg("sweep failed")
	}
}

// Poll runs one sweep over the pending queue in creation order. A failure on
// one entry is logged and the sweep moves on.
func (p *ResolutionPoller) Poll(ctx context.Context) (*SweepSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		metrics.PollSweeps.WithLabelValues("skipped").Inc()
		p.log.Debug().Msg("sweep already running, skipping")
		return &SweepSummary{Skipped: true}, nil
	}
	defer p.running.Store(false)

	started := p.now()
	summary := &SweepSummary{}

	entries, err := p.repo.PendingEntries(ctx)
	if err != nil {
		return nil, err
	}
	metrics.PendingEntries.Set(float64(len(entries)))

	for _, entry := range entries {
		if err := p.limiter.Wait(ctx); err != nil {
			return summary, err
		}
		summary.Checked++

		switch settled, err := p.checkEntry(ctx, entry); {
		case err != nil:
			summary.Failed++
			p.log.Warn().Err(err).Str("event_id", entry.EventID).Msg("failed to check entry")
		case settled:
			summary.Resolved++
		default:
			summary.StillOpen++
		}
	}

	if p.cfg.Retention > 0 {
		purged, err := p.repo.DeleteResolvedBefore(ctx, p.now().Add(-p.cfg.Retention))
		if err != nil {
			p.log.Warn().Err(err).Msg("retention cleanup failed")
		}
		summary.Purged = purged
	}

	summary.Duration = p.now().Sub(started)
	metrics.PollSweeps.WithLabelValues("completed").Inc()
	p.log.Info().
		Int("checked", summary.Checked).
		Int("resolved", summary.Resolved).
		Int("still_open", summary.StillOpen).
		Int("failed", summary.Failed).
		Int64("purged", summary.Purged).
		Dur("duration", summary.Duration).
		Msg("sweep finished")
	return summary, nil
}

// checkEntry reports true when the entry's event closed and was settled.
func (p *ResolutionPoller) checkEntry(ctx context.Context, entry models.ResolutionQueueEntry) (bool, error) {
	state, err := p.source.GetEventState(ctx, entry.EventID)
	if err != nil {
		metrics.PollFetchFailures.Inc()
		return false, err
	}

	if !state.Closed {
		return false, p.repo.TouchQueueEntry(ctx, entry.ID, p.now())
	}

	outcome := services.DetermineOutcome(*state)
	_, err = p.settlement.SettleEvent(ctx, entry.EventID, outcome, models.ResolutionSnapshot{
		Source:        services.SourcePoller,
		Closed:        true,
		OutcomePrices: state.OutcomePrices,
		Explicit:      state.ResolvedOutcome != "",
		CapturedAt:    p.now(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
