package jobs

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cascade-engine/internal/logging"
	"cascade-engine/internal/models"
)

// CascadeGenerator runs one generation cycle.
type CascadeGenerator interface {
	GenerateNext(ctx context.Context) (*models.Cascade, error)
}

// GenerationJob produces cascades on a schedule. A cycle that is still
// running when the next tick fires is not doubled up.
type GenerationJob struct {
	generator CascadeGenerator
	schedule  string
	attempts  int
	cron      *cron.Cron
	log       zerolog.Logger
}

// NewGenerationJob takes a cron spec such as "@every 6h". attempts bounds how
// many fresh prompts one cycle may try before giving up.
func NewGenerationJob(generator CascadeGenerator, schedule string, attempts int) *GenerationJob {
	if attempts <= 0 {
		attempts = 1
	}
	log := logging.Component("generation-job")
	return &GenerationJob{
		generator: generator,
		schedule:  schedule,
		attempts:  attempts,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		log: log,
	}
}

// Start schedules generation cycles. The first one runs on the first tick.
func (j *GenerationJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info().Str("schedule", j.schedule).Msg("generation job scheduled")
	return nil
}

// Stop waits for a running cycle to finish.
func (j *GenerationJob) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce tries up to the configured number of attempts and returns the
// accepted cascade, or nil when every attempt failed.
func (j *GenerationJob) RunOnce(ctx context.Context) *models.Cascade {
	for attempt := 1; attempt <= j.attempts; attempt++ {
		cascade, err := j.generator.GenerateNext(ctx)
		if err == nil {
			return cascade
		}
		j.log.Warn().Err(err).Int("attempt", attempt).Msg("generation cycle attempt failed")
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
	}
	return nil
}
