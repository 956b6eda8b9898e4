package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"cascade-engine/internal/models"
)

type flakyGenerator struct {
	failures int
	calls    int
}

func (g *flakyGenerator) GenerateNext(ctx context.Context) (*models.Cascade, error) {
	g.calls++
	if g.calls <= g.failures {
		return nil, errors.New("cascade rejected")
	}
	return &models.Cascade{Name: "accepted"}, nil
}

func TestRunOnceRetriesUntilAccepted(t *testing.T) {
	gen := &flakyGenerator{failures: 2}
	job := NewGenerationJob(gen, "@every 1h", 3)

	cascade := job.RunOnce(context.Background())
	assert.NotNil(t, cascade)
	assert.Equal(t, 3, gen.calls)
}

func TestRunOnceGivesUp(t *testing.T) {
	gen := &flakyGenerator{failures: 5}
	job := NewGenerationJob(gen, "@every 1h", 2)

	assert.Nil(t, job.RunOnce(context.Background()))
	assert.Equal(t, 2, gen.calls)
}

func TestRunOnceStopsOnCancel(t *testing.T) {
	gen := &flakyGenerator{failures: 5}
	job := NewGenerationJob(gen, "@every 1h", 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, job.RunOnce(ctx))
	assert.Equal(t, 1, gen.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	job := NewGenerationJob(&flakyGenerator{}, "not a schedule", 1)
	assert.Error(t, job.Start())
}
