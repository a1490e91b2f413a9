package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
)

// Runner executes collection cycles on a fixed interval.
type Runner struct {
	collector *Collector
	interval  time.Duration
	log       *logging.Logger
}

// NewRunner creates a Runner around c.
func NewRunner(c *Collector, interval time.Duration, log *logging.Logger) *Runner {
	return &Runner{
		collector: c,
		interval:  interval,
		log:       log.With("component", "collector_runner"),
	}
}

// Run schedules cycles every interval, starting with an immediate one,
// and blocks until ctx is cancelled. A cycle still in flight when the
// next tick arrives is not overlapped; the tick is rescheduled.
func (r *Runner) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.collector.Collect(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("collection cycle failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling collection job: %w", err)
	}

	r.log.Info("collector scheduled", "interval", r.interval)
	scheduler.Start()

	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return ctx.Err()
}
