package model

// JobResult is what a scheduled job run reports back to the runner.
type JobResult string

const (
	// JobSuccess means the run completed; individual batch items may still
	// have failed and recorded their own failure state.
	JobSuccess JobResult = "success"
	// JobRetry asks the runner to retry the whole run with backoff.
	JobRetry JobResult = "retry"
	// JobFailure marks the run permanently failed for this period.
	JobFailure JobResult = "failure"
)

// UpdateRunSummary aggregates one scheduled run for the summary
// notification.
type UpdateRunSummary struct {
	Checked          int
	UpdatesAvailable []string // app names with an update not auto-installed
	AutoUpdated      []string // app names updated by this run
	AutoUpdateFailed []string // app names whose auto-update failed
	RateLimited      bool
}

// Empty reports whether the run found nothing worth notifying about.
func (s UpdateRunSummary) Empty() bool {
	return len(s.UpdatesAvailable) == 0 && len(s.AutoUpdated) == 0 && len(s.AutoUpdateFailed) == 0 && !s.RateLimited
}
