// Package notify delivers user-facing notifications about update runs.
// The daemon has no UI surface of its own, so the default implementation
// writes structured log lines a wrapper can forward to the desktop.
package notify

import (
	"fmt"

	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

// Notifier receives the outcome of one scheduled update run.
type Notifier interface {
	UpdateRunFinished(summary model.UpdateRunSummary)
	AppUpdated(appName, version string)
	UpdateFailed(appName, reason string)
}

// LogNotifier emits notifications as log lines.
type LogNotifier struct{}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates the logging notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// UpdateRunFinished logs the run summary. A run with nothing to report
// stays silent.
func (n *LogNotifier) UpdateRunFinished(summary model.UpdateRunSummary) {
	if summary.Empty() {
		return
	}
	logger.Info(SummaryLine(summary), logrus.Fields{
		"checked":      summary.Checked,
		"available":    len(summary.UpdatesAvailable),
		"auto_updated": len(summary.AutoUpdated),
		"failed":       len(summary.AutoUpdateFailed),
		"rate_limited": summary.RateLimited,
	})
}

// AppUpdated logs one successful unattended update.
func (n *LogNotifier) AppUpdated(appName, version string) {
	logger.Info("app updated", logrus.Fields{"app": appName, "version": version})
}

// UpdateFailed logs one failed unattended update.
func (n *LogNotifier) UpdateFailed(appName, reason string) {
	logger.Warn("app update failed", logrus.Fields{"app": appName, "reason": reason})
}

// SummaryLine renders the one-line headline for a run summary.
func SummaryLine(s model.UpdateRunSummary) string {
	switch {
	case s.RateLimited:
		return "update check postponed: API rate limit reached"
	case len(s.AutoUpdateFailed) > 0:
		return fmt.Sprintf("%d app update(s) failed", len(s.AutoUpdateFailed))
	case len(s.AutoUpdated) > 0 && len(s.UpdatesAvailable) == 0:
		return fmt.Sprintf("%d app(s) updated", len(s.AutoUpdated))
	case len(s.UpdatesAvailable) == 1:
		return s.UpdatesAvailable[0] + " update available"
	default:
		return fmt.Sprintf("%d app updates available", len(s.UpdatesAvailable))
	}
}
