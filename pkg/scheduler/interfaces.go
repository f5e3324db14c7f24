//go:generate mockgen -destination=./mocks/scheduler.go -package=mocks . Scheduler,Job

// Package scheduler runs the periodic update job: a fixed-interval timer
// with an optional immediate first run, and bounded exponential backoff
// when a run asks to be retried.
package scheduler

import (
	"context"
	"time"

	"github.com/rainxch/githubstore/pkg/model"
)

// Job is one unit of scheduled work. Run reports whether the run
// succeeded, should be retried with backoff, or failed for this period.
type Job interface {
	Run(ctx context.Context) model.JobResult
}

// Scheduler arms and disarms the periodic job.
type Scheduler interface {
	// SchedulePeriodic arms the job at the given interval. When immediate
	// is set, one run fires right away and does not shift the periodic
	// cadence. Arming while already armed replaces the previous schedule.
	SchedulePeriodic(interval time.Duration, immediate bool)

	// Cancel disarms the schedule and waits for an in-flight run to
	// return. Cancelling an unarmed scheduler is a no-op.
	Cancel()

	// Active reports whether a schedule is currently armed.
	Active() bool
}
