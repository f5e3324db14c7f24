package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	// retryBackoffSeed is the delay before the first retry of a run that
	// returned JobRetry. Each further retry doubles it.
	retryBackoffSeed = 30 * time.Minute

	// maxRetryAttempts bounds the retries of one run. After the cap the
	// run waits for the next periodic tick.
	maxRetryAttempts = 3
)

// TimerScheduler is the timer-backed Scheduler implementation.
type TimerScheduler struct {
	job Job

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// sleep waits for d or until ctx is cancelled, reporting whether the
	// full duration elapsed. Swappable for tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates a scheduler driving the given job.
func NewTimerScheduler(job Job) *TimerScheduler {
	return &TimerScheduler{job: job, sleep: sleepCtx}
}

// SchedulePeriodic arms the schedule, replacing any previous one.
func (s *TimerScheduler) SchedulePeriodic(interval time.Duration, immediate bool) {
	s.mu.Lock()
	// Another caller may install a fresh schedule while the lock is
	// released for the wait, so keep cancelling until no loop is armed.
	for s.cancel != nil {
		cancel, done := s.cancel, s.done
		cancel()
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	logger.Info("update schedule armed", logrus.Fields{
		"interval":  interval,
		"immediate": immediate,
	})
	go s.loop(ctx, done, interval, immediate)
}

// Cancel disarms the schedule and waits for the loop to exit.
func (s *TimerScheduler) Cancel() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info("update schedule cancelled", nil)
}

// Active reports whether a schedule is armed.
func (s *TimerScheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *TimerScheduler) loop(ctx context.Context, done chan struct{}, interval time.Duration, immediate bool) {
	defer close(done)

	if immediate {
		s.runWithRetry(ctx)
	}
	for {
		if !s.sleep(ctx, interval) {
			return
		}
		s.runWithRetry(ctx)
	}
}

// runWithRetry executes one run, retrying with doubling backoff while the
// job keeps asking for it, up to the attempt cap.
func (s *TimerScheduler) runWithRetry(ctx context.Context) {
	backoff := retryBackoffSeed
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		result := s.job.Run(ctx)
		if result != model.JobRetry {
			return
		}
		if attempt >= maxRetryAttempts {
			logger.Warn("update run gave up after retries", logrus.Fields{"attempts": attempt})
			return
		}
		logger.Info("update run will be retried", logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
		})
		if !s.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
