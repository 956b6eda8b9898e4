package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
	"cascade-engine/internal/services"
)

type fakeStates struct {
	mu     sync.Mutex
	states map[string]*models.MarketState
	errs   map[string]error
	calls  []string
	block  chan struct{}
}

func (f *fakeStates) GetEventState(ctx context.Context, eventID string) (*models.MarketState, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, eventID)
	if err := f.errs[eventID]; err != nil {
		return nil, err
	}
	if s, ok := f.states[eventID]; ok {
		return s, nil
	}
	return &models.MarketState{EventID: eventID}, nil
}

func newTestPoller(t *testing.T, source MarketStateSource) (*ResolutionPoller, *repository.Repository) {
	t.Helper()
	repo := setupTestRepo(t)
	settlement := services.NewSettlementService(repo,
		services.NewPredictionScorer(services.DefaultScoringConfig()),
		services.NewProgressionUpdater(services.DefaultProgressionRules()))
	cfg := DefaultPollerConfig()
	cfg.CallDelay = 0
	return NewResolutionPoller(repo, source, settlement, cfg), repo
}

func enqueue(t *testing.T, repo *repository.Repository, ids ...string) {
	t.Helper()
	entries := make([]models.ResolutionQueueEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, models.ResolutionQueueEntry{EventID: id, EventSlug: "slug-" + id, Status: models.QueueStatusPending})
	}
	require.NoError(t, repo.EnqueueEvents(context.Background(), entries))
}

func TestPollSettlesClosedEvents(t *testing.T) {
	source := &fakeStates{
		states: map[string]*models.MarketState{
			"1": {EventID: "1", Closed: true, ResolvedOutcome: "yes"},
			"2": {EventID: "2", Closed: true, OutcomePrices: map[string]float64{"yes": 0.2, "no": 0.8}},
			"3": {EventID: "3", Closed: false},
		},
	}
	poller, repo := newTestPoller(t, source)
	ctx := context.Background()
	enqueue(t, repo, "1", "2", "3")

	pred := &models.Prediction{UserID: "alice", TargetType: models.TargetTypeChallenge, TargetID: "1", EventID: "1",
		Tier: models.TierBeginner, PredictedOutcome: "yes", Confidence: 5}
	require.NoError(t, repo.CreatePrediction(ctx, pred))

	summary, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 2, summary.Resolved)
	assert.Equal(t, 1, summary.StillOpen)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, []string{"1", "2", "3"}, source.calls)

	e1, err := repo.FindQueueEntry(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusResolved, e1.Status)
	assert.Equal(t, "yes", e1.Outcome)

	e2, err := repo.FindQueueEntry(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "no", e2.Outcome)

	e3, err := repo.FindQueueEntry(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, e3.Status)
	assert.NotNil(t, e3.LastCheckedAt)

	got, err := repo.GetPrediction(ctx, pred.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IsCorrect)
	assert.True(t, *got.IsCorrect)

	// only the open entry is checked on the next sweep
	source.calls = nil
	summary, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, []string{"3"}, source.calls)
}

func TestPollIsolatesFailures(t *testing.T) {
	source := &fakeStates{
		states: map[string]*models.MarketState{
			"2": {EventID: "2", Closed: true, ResolvedOutcome: "no"},
		},
		errs: map[string]error{"1": errors.New("gateway timeout")},
	}
	poller, repo := newTestPoller(t, source)
	ctx := context.Background()
	enqueue(t, repo, "1", "2")

	summary, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Resolved)

	e1, err := repo.FindQueueEntry(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, e1.Status)
}

func TestPollSkipsWhileRunning(t *testing.T) {
	source := &fakeStates{block: make(chan struct{})}
	poller, repo := newTestPoller(t, source)
	ctx := context.Background()
	enqueue(t, repo, "1")

	done := make(chan *SweepSummary)
	go func() {
		s, _ := poller.Poll(ctx)
		done <- s
	}()
	require.Eventually(t, poller.IsRunning, time.Second, 5*time.Millisecond)

	skipped, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)

	close(source.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Checked)
	assert.False(t, poller.IsRunning())
}

func TestPollPurgesOldResolvedEntries(t *testing.T) {
	poller, repo := newTestPoller(t, &fakeStates{})
	ctx := context.Background()
	enqueue(t, repo, "old", "recent")

	now := time.Now()
	_, err := repo.MarkQueueEntryResolved(ctx, "old", "yes", nil, now.Add(-8*24*time.Hour))
	require.NoError(t, err)
	_, err = repo.MarkQueueEntryResolved(ctx, "recent", "no", nil, now.Add(-time.Hour))
	require.NoError(t, err)

	summary, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Equal(t, int64(1), summary.Purged)

	_, err = repo.FindQueueEntry(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindQueueEntry(ctx, "recent")
	assert.NoError(t, err)
}

func TestPollerStartStop(t *testing.T) {
	source := &fakeStates{}
	poller, repo := newTestPoller(t, source)
	enqueue(t, repo, "1")
	poller.cfg.Interval = time.Hour

	require.NoError(t, poller.Start())
	poller.Stop()

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, []string{"1"}, source.calls)
}
