package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rainxch/githubstore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedJob returns queued results, then JobSuccess forever.
type scriptedJob struct {
	mu      sync.Mutex
	results []model.JobResult
	runs    int
	ran     chan struct{}
}

func newScriptedJob(results ...model.JobResult) *scriptedJob {
	return &scriptedJob{results: results, ran: make(chan struct{}, 64)}
}

func (j *scriptedJob) Run(context.Context) model.JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	j.ran <- struct{}{}
	if len(j.results) == 0 {
		return model.JobSuccess
	}
	r := j.results[0]
	j.results = j.results[1:]
	return r
}

func (j *scriptedJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// blockUntilCancelled is a sleep hook that never elapses.
func blockUntilCancelled(ctx context.Context, _ time.Duration) bool {
	<-ctx.Done()
	return false
}

func TestTimerScheduler_ImmediateRunFiresOnce(t *testing.T) {
	job := newScriptedJob()
	s := NewTimerScheduler(job)
	s.sleep = blockUntilCancelled

	s.SchedulePeriodic(time.Hour, true)
	select {
	case <-job.ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run did not fire")
	}
	s.Cancel()

	assert.Equal(t, 1, job.runCount())
	assert.False(t, s.Active())
}

func TestTimerScheduler_NoImmediateRunWithoutFlag(t *testing.T) {
	job := newScriptedJob()
	s := NewTimerScheduler(job)
	s.sleep = blockUntilCancelled

	s.SchedulePeriodic(time.Hour, false)
	assert.True(t, s.Active())
	s.Cancel()

	assert.Zero(t, job.runCount())
}

func TestTimerScheduler_RetryBackoffDoublesAndCapsAttempts(t *testing.T) {
	job := newScriptedJob(model.JobRetry, model.JobRetry, model.JobRetry, model.JobRetry)
	s := NewTimerScheduler(job)

	var mu sync.Mutex
	var backoffs []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) bool {
		if d == time.Hour*24 {
			// Periodic tick: end the loop instead of running again.
			return false
		}
		mu.Lock()
		backoffs = append(backoffs, d)
		mu.Unlock()
		return true
	}

	s.SchedulePeriodic(24*time.Hour, true)
	// The loop exits on its own once the retry budget is spent and the
	// periodic sleep reports cancellation.
	require.Eventually(t, func() bool { return job.runCount() == maxRetryAttempts },
		time.Second, time.Millisecond)
	s.Cancel()

	assert.Equal(t, maxRetryAttempts, job.runCount())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{30 * time.Minute, time.Hour}, backoffs)
}

func TestTimerScheduler_RetryStopsWhenRunSucceeds(t *testing.T) {
	job := newScriptedJob(model.JobRetry, model.JobSuccess)
	s := NewTimerScheduler(job)
	s.sleep = func(_ context.Context, d time.Duration) bool {
		return d < time.Hour // backoff elapses, the periodic tick does not
	}

	s.SchedulePeriodic(time.Hour, true)
	require.Eventually(t, func() bool { return job.runCount() == 2 },
		time.Second, time.Millisecond)
	s.Cancel()

	assert.Equal(t, 2, job.runCount())
}

func TestTimerScheduler_RearmReplacesSchedule(t *testing.T) {
	job := newScriptedJob()
	s := NewTimerScheduler(job)
	s.sleep = blockUntilCancelled

	s.SchedulePeriodic(time.Hour, false)
	require.True(t, s.Active())

	s.SchedulePeriodic(time.Minute, true)
	select {
	case <-job.ran:
	case <-time.After(time.Second):
		t.Fatal("re-armed immediate run did not fire")
	}
	s.Cancel()

	assert.Equal(t, 1, job.runCount(), "the replaced schedule must not run the job again")
	assert.False(t, s.Active())
}

func TestTimerScheduler_ConcurrentRearmsDoNotStackLoops(t *testing.T) {
	job := newScriptedJob()
	s := NewTimerScheduler(job)

	// Count loops parked in their periodic sleep. A loop whose cancel
	// func got lost in a re-arm race would stay parked forever.
	var mu sync.Mutex
	sleeping := 0
	s.sleep = func(ctx context.Context, _ time.Duration) bool {
		mu.Lock()
		sleeping++
		mu.Unlock()
		defer func() {
			mu.Lock()
			sleeping--
			mu.Unlock()
		}()
		<-ctx.Done()
		return false
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SchedulePeriodic(time.Hour, false)
		}()
	}
	wg.Wait()
	require.True(t, s.Active())

	s.Cancel()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sleeping == 0
	}, 2*time.Second, 5*time.Millisecond, "a superseded loop kept running after Cancel")
	assert.False(t, s.Active())
}

func TestTimerScheduler_CancelTwiceIsSafe(t *testing.T) {
	s := NewTimerScheduler(newScriptedJob())
	s.sleep = blockUntilCancelled

	s.SchedulePeriodic(time.Hour, false)
	s.Cancel()
	s.Cancel()
	assert.False(t, s.Active())
}
