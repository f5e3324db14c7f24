package scheduler

import (
	"context"
	"time"

	"github.com/rainxch/githubstore/pkg/asset"
	"github.com/rainxch/githubstore/pkg/config"
	"github.com/rainxch/githubstore/pkg/download"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/hostpkg"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/rainxch/githubstore/pkg/notify"
	"github.com/rainxch/githubstore/pkg/ratelimit"
	"github.com/rainxch/githubstore/pkg/reconcile"
	"github.com/rainxch/githubstore/pkg/release"
	"github.com/sirupsen/logrus"
)

// autoUpdateFailCap is the consecutive-failure count after which an app is
// skipped by the unattended pass until a manual install resets it.
const autoUpdateFailCap = 3

// AppStore is the tracker surface the update job needs.
type AppStore interface {
	List(ctx context.Context) ([]*model.TrackedApp, error)
	Update(ctx context.Context, app *model.TrackedApp) error
	SetPendingInstall(ctx context.Context, packageName string, pending bool) error
	RecordAutoUpdateFailure(ctx context.Context, packageName, reason string, at time.Time) error
	ClearAutoUpdateFailures(ctx context.Context, packageName string, at time.Time) error
}

// Reconciler runs one reconciliation pass before the release checks.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Installer drives one session install of a downloaded asset.
type Installer interface {
	Install(ctx context.Context, filePath string) <-chan model.InstallProgress
}

// UpdateJob is the scheduled run: reconcile, check every tracked
// repository for a new release, and auto-update the apps that opted in.
type UpdateJob struct {
	store      AppStore
	reconciler Reconciler
	source     release.Source
	downloads  download.Manager
	installer  Installer
	host       hostpkg.Manager
	guard      *ratelimit.Guard
	notifier   notify.Notifier

	platform      config.PlatformConfig
	autoUpdate    bool
	notifications bool

	now func() time.Time
}

var _ Job = (*UpdateJob)(nil)

// NewUpdateJob wires the scheduled update run.
func NewUpdateJob(
	store AppStore,
	reconciler Reconciler,
	source release.Source,
	downloads download.Manager,
	installer Installer,
	host hostpkg.Manager,
	guard *ratelimit.Guard,
	notifier notify.Notifier,
	settings config.Settings,
) *UpdateJob {
	return &UpdateJob{
		store:         store,
		reconciler:    reconciler,
		source:        source,
		downloads:     downloads,
		installer:     installer,
		host:          host,
		guard:         guard,
		notifier:      notifier,
		platform:      settings.Platform,
		autoUpdate:    settings.Update.AutoUpdate,
		notifications: settings.Update.Notifications,
		now:           time.Now,
	}
}

// Run executes one scheduled pass. A quota-limited pass reports JobRetry
// so the scheduler backs off instead of burning the next period's budget;
// the same goes for whole-run errors (reconciliation, listing the
// tracker), which get the bounded backoff rather than a terminal failure.
func (j *UpdateJob) Run(ctx context.Context) model.JobResult {
	_, result := j.RunOnce(ctx)
	return result
}

// RunOnce executes one pass and returns the run summary alongside the
// result, for callers that surface the outcome directly (a manual "check
// now").
func (j *UpdateJob) RunOnce(ctx context.Context) (model.UpdateRunSummary, model.JobResult) {
	var summary model.UpdateRunSummary

	if _, err := j.reconciler.Reconcile(ctx); err != nil {
		logger.Error("reconciliation pass failed", logrus.Fields{"error": err})
		return summary, model.JobRetry
	}

	if j.guard.IsCurrentlyLimited() {
		logger.Info("skipping update check, rate limit not yet reset", logrus.Fields{
			"reset_in": j.guard.TimeUntilReset(),
		})
		summary.RateLimited = true
		j.finish(summary)
		return summary, model.JobRetry
	}

	apps, err := j.store.List(ctx)
	if err != nil {
		logger.Error("failed to list tracked apps", logrus.Fields{"error": err})
		return summary, model.JobRetry
	}

	autoUpdated := make(map[string]bool)
	for _, app := range apps {
		if ctx.Err() != nil {
			return summary, model.JobFailure
		}
		if !app.UpdateCheckEnabled {
			continue
		}
		if summary.RateLimited {
			break
		}
		limited, err := j.checkApp(ctx, app)
		if limited {
			summary.RateLimited = true
			continue
		}
		if err != nil {
			logger.Warn("release check failed", logrus.Fields{
				"package": app.PackageName,
				"error":   err,
			})
			continue
		}
		summary.Checked++
	}

	if j.autoUpdate && j.host.Available() {
		for _, app := range apps {
			if ctx.Err() != nil {
				return summary, model.JobFailure
			}
			if !app.UpdateEligible() || app.AutoUpdateFailCount >= autoUpdateFailCap {
				continue
			}
			switch err := j.autoUpdateApp(ctx, app); {
			case err == nil:
				autoUpdated[app.PackageName] = true
				summary.AutoUpdated = append(summary.AutoUpdated, displayName(app))
			case errors.Is(err, errNotNewer):
				// Release tag moved but the asset carries no newer build.
			default:
				summary.AutoUpdateFailed = append(summary.AutoUpdateFailed, displayName(app))
			}
		}
	}

	for _, app := range apps {
		if app.IsUpdateAvailable && !autoUpdated[app.PackageName] {
			summary.UpdatesAvailable = append(summary.UpdatesAvailable, displayName(app))
		}
	}

	j.finish(summary)
	if summary.RateLimited {
		return summary, model.JobRetry
	}
	return summary, model.JobSuccess
}

// checkApp fetches the latest release for one app and folds it into the
// tracked row. It reports whether the fetch hit the API quota.
func (j *UpdateJob) checkApp(ctx context.Context, app *model.TrackedApp) (bool, error) {
	ref := model.RepoRef{ID: app.RepoID, Owner: app.RepoOwner, Name: app.RepoName}
	rel, err := j.source.LatestRelease(ctx, ref)
	if err != nil {
		if errors.Is(err, errors.ErrRateLimited) {
			return true, err
		}
		return false, err
	}

	ext := app.FileExtension
	if ext == "" {
		ext = j.platform.FileExtension
	}
	ast, err := release.SelectAsset(rel, j.platform.OS, j.platform.Arch, ext)
	if err != nil && !errors.Is(err, errors.ErrNoMatchingAsset) {
		return false, err
	}

	release.ApplyLatest(app, rel, ast, j.now())
	return false, j.store.Update(ctx, app)
}

// errNotNewer marks an auto-update attempt that was skipped because the
// downloaded asset's version code is not above the installed one.
var errNotNewer = errors.Wrap(errors.ErrUpdateFailed, "asset is not newer than the installed build")

// autoUpdateApp downloads the latest asset, verifies its manifest, marks
// the row pending and drives one session install. Failures are recorded on
// the row so a broken release stops being retried after the cap.
func (j *UpdateJob) autoUpdateApp(ctx context.Context, app *model.TrackedApp) error {
	logger.Info("auto-updating app", logrus.Fields{
		"package": app.PackageName,
		"version": app.LatestVersion,
	})

	path, err := j.fetchAsset(ctx, app)
	if err != nil {
		return j.failUpdate(ctx, app, err)
	}

	meta, err := asset.ReadMetadata(ctx, path)
	if err != nil {
		return j.failUpdate(ctx, app, err)
	}
	if meta.PackageName != app.PackageName {
		return j.failUpdate(ctx, app, errors.Wrapf(errors.ErrAssetInvalid,
			"asset is for %s, expected %s", meta.PackageName, app.PackageName))
	}

	// The manifest is the first place the new build's version code is
	// known. If it is not above the installed code the release tag lied;
	// record the code and stand down.
	app.LatestVersionName = meta.VersionName
	app.LatestVersionCode = meta.VersionCode
	app.IsUpdateAvailable = model.UpdateAvailable(
		app.InstalledVersion, app.InstalledVersionCode, app.LatestVersion, app.LatestVersionCode)
	if !app.IsUpdateAvailable {
		if err := j.store.Update(ctx, app); err != nil {
			return j.failUpdate(ctx, app, err)
		}
		return errNotNewer
	}

	app.IsPendingInstall = true
	if err := j.store.Update(ctx, app); err != nil {
		return j.failUpdate(ctx, app, err)
	}

	if err := j.runInstall(ctx, path); err != nil {
		if clearErr := j.store.SetPendingInstall(ctx, app.PackageName, false); clearErr != nil {
			logger.Warn("failed to clear pending flag", logrus.Fields{
				"package": app.PackageName,
				"error":   clearErr,
			})
		}
		return j.failUpdate(ctx, app, err)
	}

	if err := j.store.ClearAutoUpdateFailures(ctx, app.PackageName, j.now()); err != nil {
		logger.Warn("failed to reset failure counter", logrus.Fields{
			"package": app.PackageName,
			"error":   err,
		})
	}
	j.notifier.AppUpdated(displayName(app), app.LatestVersion)
	return nil
}

// fetchAsset downloads the app's latest asset and returns the local path.
func (j *UpdateJob) fetchAsset(ctx context.Context, app *model.TrackedApp) (string, error) {
	if app.LatestAssetURL == "" {
		return "", errors.Wrapf(errors.ErrNoAssetURL, "package %s", app.PackageName)
	}
	var last model.DownloadProgress
	for p := range j.downloads.Download(ctx, app.LatestAssetURL, app.LatestAssetName) {
		last = p
	}
	if last.Err != "" {
		return "", errors.Wrap(errors.ErrDownloadFailed, last.Err)
	}
	if !last.Done || last.Path == "" {
		return "", errors.Wrap(errors.ErrDownloadFailed, "download ended without a file")
	}
	return last.Path, nil
}

// runInstall drives one session install to its terminal state.
func (j *UpdateJob) runInstall(ctx context.Context, path string) error {
	var last model.InstallProgress
	for p := range j.installer.Install(ctx, path) {
		last = p
	}
	if last.Phase != model.InstallPhaseSuccess {
		msg := last.Message
		if msg == "" {
			msg = "install did not reach a terminal state"
		}
		return errors.Wrap(errors.ErrUpdateFailed, msg)
	}
	return nil
}

func (j *UpdateJob) failUpdate(ctx context.Context, app *model.TrackedApp, cause error) error {
	logger.Warn("auto-update failed", logrus.Fields{
		"package": app.PackageName,
		"error":   cause,
	})
	if err := j.store.RecordAutoUpdateFailure(ctx, app.PackageName, cause.Error(), j.now()); err != nil {
		logger.Warn("failed to record update failure", logrus.Fields{
			"package": app.PackageName,
			"error":   err,
		})
	}
	j.notifier.UpdateFailed(displayName(app), cause.Error())
	return cause
}

func (j *UpdateJob) finish(summary model.UpdateRunSummary) {
	if j.notifications {
		j.notifier.UpdateRunFinished(summary)
	}
}

func displayName(app *model.TrackedApp) string {
	if app.AppName != "" {
		return app.AppName
	}
	return app.PackageName
}
