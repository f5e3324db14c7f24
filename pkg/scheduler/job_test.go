package scheduler

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rainxch/githubstore/pkg/asset"
	"github.com/rainxch/githubstore/pkg/config"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/rainxch/githubstore/pkg/ratelimit"
	"github.com/rainxch/githubstore/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobStore struct {
	apps     map[string]*model.TrackedApp
	listErr  error
	failures map[string]int
	reasons  map[string]string
	cleared  map[string]bool
}

func newJobStore(apps ...*model.TrackedApp) *jobStore {
	s := &jobStore{
		apps:     make(map[string]*model.TrackedApp),
		failures: make(map[string]int),
		reasons:  make(map[string]string),
		cleared:  make(map[string]bool),
	}
	for _, app := range apps {
		s.apps[app.PackageName] = app
	}
	return s
}

func (s *jobStore) List(context.Context) ([]*model.TrackedApp, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*model.TrackedApp
	for _, app := range s.apps {
		out = append(out, app)
	}
	return out, nil
}

func (s *jobStore) Update(_ context.Context, app *model.TrackedApp) error {
	s.apps[app.PackageName] = app
	return nil
}

func (s *jobStore) SetPendingInstall(_ context.Context, packageName string, pending bool) error {
	if app, ok := s.apps[packageName]; ok {
		app.IsPendingInstall = pending
	}
	return nil
}

func (s *jobStore) RecordAutoUpdateFailure(_ context.Context, packageName, reason string, _ time.Time) error {
	s.failures[packageName]++
	s.reasons[packageName] = reason
	return nil
}

func (s *jobStore) ClearAutoUpdateFailures(_ context.Context, packageName string, _ time.Time) error {
	s.cleared[packageName] = true
	return nil
}

type fakeReconciler struct {
	result reconcile.Result
	err    error
	runs   int
}

func (r *fakeReconciler) Reconcile(context.Context) (reconcile.Result, error) {
	r.runs++
	return r.result, r.err
}

type fakeSource struct {
	releases map[string]*model.Release
	errs     map[string]error
	calls    int
}

func (s *fakeSource) LatestRelease(_ context.Context, ref model.RepoRef) (*model.Release, error) {
	s.calls++
	key := ref.Owner + "/" + ref.Name
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	rel, ok := s.releases[key]
	if !ok {
		return nil, fmt.Errorf("unknown repository %s", key)
	}
	return rel, nil
}

type fakeDownloads struct {
	paths map[string]string // url -> local file
	errs  map[string]string
}

func (d *fakeDownloads) Download(_ context.Context, url, _ string) <-chan model.DownloadProgress {
	out := make(chan model.DownloadProgress, 2)
	if msg, ok := d.errs[url]; ok {
		out <- model.DownloadProgress{Err: msg}
	} else {
		out <- model.DownloadProgress{Done: true, Percent: 100, Path: d.paths[url]}
	}
	close(out)
	return out
}

func (d *fakeDownloads) DownloadedFilePath(string) (string, bool) { return "", false }

func (d *fakeDownloads) Cancel(string, bool) bool { return false }

type fakeInstaller struct {
	failWith string
	installs int
}

func (i *fakeInstaller) Install(_ context.Context, _ string) <-chan model.InstallProgress {
	i.installs++
	out := make(chan model.InstallProgress, 1)
	if i.failWith != "" {
		out <- model.InstallError(i.failWith)
	} else {
		out <- model.InstallSuccess("com.example.app")
	}
	close(out)
	return out
}

type availHost struct {
	available bool
}

func (h *availHost) Available() bool { return h.available }

func (h *availHost) CreateSession(context.Context) (int, error) { return 0, nil }

func (h *availHost) OpenWrite(int, string, int64) (io.WriteCloser, error) { return nil, nil }

func (h *availHost) Commit(context.Context, int) error { return nil }

func (h *availHost) Abandon(int) error { return nil }

func (h *availHost) Uninstall(context.Context, string) error { return nil }

func (h *availHost) InstalledPackages(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (h *availHost) PackageInfo(context.Context, string) (*model.SystemPackageInfo, error) {
	return nil, errors.ErrPackageNotFound
}

func (h *availHost) Events() <-chan model.PackageEvent { return nil }

type recordingNotifier struct {
	summaries []model.UpdateRunSummary
	updated   []string
	failed    []string
}

func (n *recordingNotifier) UpdateRunFinished(s model.UpdateRunSummary) {
	n.summaries = append(n.summaries, s)
}

func (n *recordingNotifier) AppUpdated(appName, _ string) { n.updated = append(n.updated, appName) }

func (n *recordingNotifier) UpdateFailed(appName, _ string) { n.failed = append(n.failed, appName) }

func writeAssetZip(t *testing.T, meta asset.Metadata) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(w).Encode(meta))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func testSettings(autoUpdate bool) config.Settings {
	return config.Settings{
		Update:   config.UpdateConfig{AutoUpdate: autoUpdate, Notifications: true},
		Platform: config.PlatformConfig{FileExtension: ".zip"},
	}
}

func trackedApp() *model.TrackedApp {
	return &model.TrackedApp{
		PackageName:          "com.example.app",
		AppName:              "Example",
		RepoOwner:            "octocat",
		RepoName:             "hello",
		InstalledVersion:     "v1.0.0",
		InstalledVersionCode: 10,
		UpdateCheckEnabled:   true,
	}
}

func releaseFor(tag, assetURL string) *model.Release {
	return &model.Release{
		Tag:  tag,
		Name: tag,
		Assets: []model.Asset{
			{Name: "app.zip", URL: assetURL, Size: 1024},
		},
	}
}

func newTestJob(store *jobStore, source *fakeSource, downloads *fakeDownloads, installer *fakeInstaller, host *availHost, guard *ratelimit.Guard, notifier *recordingNotifier, autoUpdate bool) *UpdateJob {
	if guard == nil {
		guard = ratelimit.NewGuard()
	}
	return NewUpdateJob(store, &fakeReconciler{}, source, downloads, installer, host, guard,
		notifier, testSettings(autoUpdate))
}

func TestUpdateJob_GuardLimitSkipsBatch(t *testing.T) {
	guard := ratelimit.NewGuard()
	h := map[string][]string{
		"X-Ratelimit-Limit":     {"60"},
		"X-Ratelimit-Remaining": {"0"},
		"X-Ratelimit-Reset":     {fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix())},
	}
	guard.ObserveHeaders(h)

	source := &fakeSource{}
	notifier := &recordingNotifier{}
	job := newTestJob(newJobStore(trackedApp()), source, &fakeDownloads{}, &fakeInstaller{},
		&availHost{available: true}, guard, notifier, true)

	summary, result := job.RunOnce(context.Background())
	assert.Equal(t, model.JobRetry, result)
	assert.True(t, summary.RateLimited)
	assert.Zero(t, source.calls, "no release may be fetched while limited")
	require.Len(t, notifier.summaries, 1)
	assert.True(t, notifier.summaries[0].RateLimited)
}

func TestUpdateJob_ListFailureRequestsRetry(t *testing.T) {
	store := newJobStore(trackedApp())
	store.listErr = fmt.Errorf("database is locked")
	job := newTestJob(store, &fakeSource{}, &fakeDownloads{}, &fakeInstaller{},
		&availHost{available: true}, nil, &recordingNotifier{}, false)

	_, result := job.RunOnce(context.Background())
	assert.Equal(t, model.JobRetry, result, "a whole-run error must reach the backoff policy")
}

func TestUpdateJob_ReconcileFailureRequestsRetry(t *testing.T) {
	source := &fakeSource{}
	job := NewUpdateJob(newJobStore(trackedApp()),
		&fakeReconciler{err: fmt.Errorf("host registry unreachable")},
		source, &fakeDownloads{}, &fakeInstaller{}, &availHost{available: true},
		ratelimit.NewGuard(), &recordingNotifier{}, testSettings(false))

	_, result := job.RunOnce(context.Background())
	assert.Equal(t, model.JobRetry, result)
	assert.Zero(t, source.calls, "the batch must not run on an unreconciled tracker")
}

func TestUpdateJob_RecordsAvailableUpdate(t *testing.T) {
	app := trackedApp()
	store := newJobStore(app)
	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/app.zip"),
	}}
	notifier := &recordingNotifier{}
	job := newTestJob(store, source, &fakeDownloads{}, &fakeInstaller{},
		&availHost{available: true}, nil, notifier, false)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, []string{"Example"}, summary.UpdatesAvailable)
	assert.Empty(t, summary.AutoUpdated)

	assert.Equal(t, "v1.1.0", app.LatestVersion)
	assert.True(t, app.IsUpdateAvailable)
	assert.Equal(t, "https://example.com/app.zip", app.LatestAssetURL)
}

func TestUpdateJob_SourceRateLimitTurnsIntoRetry(t *testing.T) {
	store := newJobStore(trackedApp())
	source := &fakeSource{errs: map[string]error{
		"octocat/hello": errors.Wrapf(errors.ErrRateLimited, "octocat/hello"),
	}}
	job := newTestJob(store, source, &fakeDownloads{}, &fakeInstaller{},
		&availHost{available: true}, nil, &recordingNotifier{}, false)

	summary, result := job.RunOnce(context.Background())
	assert.Equal(t, model.JobRetry, result)
	assert.True(t, summary.RateLimited)
	assert.Zero(t, summary.Checked)
}

func TestUpdateJob_AutoUpdateSuccess(t *testing.T) {
	app := trackedApp()
	app.AutoUpdateEnabled = true
	store := newJobStore(app)

	path := writeAssetZip(t, asset.Metadata{
		PackageName: "com.example.app",
		VersionName: "1.1.0",
		VersionCode: 11,
	})
	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/app.zip"),
	}}
	downloads := &fakeDownloads{paths: map[string]string{"https://example.com/app.zip": path}}
	installer := &fakeInstaller{}
	notifier := &recordingNotifier{}
	job := newTestJob(store, source, downloads, installer, &availHost{available: true}, nil, notifier, true)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result)
	assert.Equal(t, []string{"Example"}, summary.AutoUpdated)
	assert.Empty(t, summary.AutoUpdateFailed)
	assert.Empty(t, summary.UpdatesAvailable)

	assert.Equal(t, 1, installer.installs)
	assert.True(t, store.cleared["com.example.app"])
	assert.Equal(t, []string{"Example"}, notifier.updated)
	assert.Equal(t, int64(11), app.LatestVersionCode, "manifest version code is recorded")
}

func TestUpdateJob_AutoUpdateFailureIsIsolated(t *testing.T) {
	broken := trackedApp()
	broken.AutoUpdateEnabled = true

	healthy := trackedApp()
	healthy.PackageName = "com.example.other"
	healthy.AppName = "Other"
	healthy.RepoName = "world"
	healthy.AutoUpdateEnabled = true

	store := newJobStore(broken, healthy)
	path := writeAssetZip(t, asset.Metadata{
		PackageName: "com.example.other",
		VersionName: "1.1.0",
		VersionCode: 11,
	})
	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/broken.zip"),
		"octocat/world": releaseFor("v1.1.0", "https://example.com/other.zip"),
	}}
	downloads := &fakeDownloads{
		paths: map[string]string{"https://example.com/other.zip": path},
		errs:  map[string]string{"https://example.com/broken.zip": "connection reset"},
	}
	notifier := &recordingNotifier{}
	job := newTestJob(store, source, downloads, &fakeInstaller{}, &availHost{available: true}, nil, notifier, true)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result, "a per-app failure must not fail the run")
	assert.Equal(t, []string{"Other"}, summary.AutoUpdated)
	assert.Equal(t, []string{"Example"}, summary.AutoUpdateFailed)

	assert.Equal(t, 1, store.failures["com.example.app"])
	assert.Contains(t, store.reasons["com.example.app"], "connection reset")
	assert.Equal(t, []string{"Example"}, notifier.failed)
}

func TestUpdateJob_FailCountCapSkipsApp(t *testing.T) {
	app := trackedApp()
	app.AutoUpdateEnabled = true
	app.AutoUpdateFailCount = autoUpdateFailCap
	store := newJobStore(app)

	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/app.zip"),
	}}
	installer := &fakeInstaller{}
	job := newTestJob(store, source, &fakeDownloads{}, installer, &availHost{available: true}, nil, &recordingNotifier{}, true)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result)
	assert.Zero(t, installer.installs)
	assert.Equal(t, []string{"Example"}, summary.UpdatesAvailable, "the update is still reported, just not attempted")
}

func TestUpdateJob_NotNewerAssetStandsDown(t *testing.T) {
	app := trackedApp()
	app.AutoUpdateEnabled = true
	store := newJobStore(app)

	// The release tag moved but the asset carries the installed build.
	path := writeAssetZip(t, asset.Metadata{
		PackageName: "com.example.app",
		VersionName: "1.0.0",
		VersionCode: 10,
	})
	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/app.zip"),
	}}
	downloads := &fakeDownloads{paths: map[string]string{"https://example.com/app.zip": path}}
	installer := &fakeInstaller{}
	job := newTestJob(store, source, downloads, installer, &availHost{available: true}, nil, &recordingNotifier{}, true)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result)
	assert.Zero(t, installer.installs)
	assert.Empty(t, summary.AutoUpdated)
	assert.Empty(t, summary.AutoUpdateFailed)
	assert.False(t, app.IsUpdateAvailable)
}

func TestUpdateJob_UnavailableHostSkipsAutoUpdates(t *testing.T) {
	app := trackedApp()
	app.AutoUpdateEnabled = true
	store := newJobStore(app)
	source := &fakeSource{releases: map[string]*model.Release{
		"octocat/hello": releaseFor("v1.1.0", "https://example.com/app.zip"),
	}}
	installer := &fakeInstaller{}
	job := newTestJob(store, source, &fakeDownloads{}, installer, &availHost{available: false}, nil, &recordingNotifier{}, true)

	summary, result := job.RunOnce(context.Background())
	require.Equal(t, model.JobSuccess, result)
	assert.Zero(t, installer.installs)
	assert.Equal(t, []string{"Example"}, summary.UpdatesAvailable)
}
