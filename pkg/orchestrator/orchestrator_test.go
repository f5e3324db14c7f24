package orchestrator

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rainxch/githubstore/pkg/asset"
	"github.com/rainxch/githubstore/pkg/config"
	dlmocks "github.com/rainxch/githubstore/pkg/download/mocks"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeStore struct {
	apps    map[string]*model.TrackedApp
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{apps: make(map[string]*model.TrackedApp)}
}

func (s *fakeStore) Get(_ context.Context, packageName string) (*model.TrackedApp, error) {
	app, ok := s.apps[packageName]
	if !ok {
		return nil, errors.ErrAppNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *fakeStore) Upsert(_ context.Context, app *model.TrackedApp) error {
	cp := *app
	s.apps[app.PackageName] = &cp
	s.upserts++
	return nil
}

func (s *fakeStore) SetAutoUpdateEnabled(_ context.Context, packageName string, enabled bool) error {
	app, ok := s.apps[packageName]
	if !ok {
		return errors.ErrAppNotFound
	}
	app.AutoUpdateEnabled = enabled
	return nil
}

type fakeSource struct {
	release *model.Release
	err     error
}

func (s *fakeSource) LatestRelease(context.Context, model.RepoRef) (*model.Release, error) {
	return s.release, s.err
}

type fakeInstaller struct {
	failWith   string
	installs   int
	uninstalls []string
}

func (i *fakeInstaller) Install(_ context.Context, _ string) <-chan model.InstallProgress {
	i.installs++
	ch := make(chan model.InstallProgress, 3)
	ch <- model.InstallProgress{Phase: model.InstallPhasePreparing}
	if i.failWith != "" {
		ch <- model.InstallProgress{Phase: model.InstallPhaseError, Message: i.failWith}
	} else {
		ch <- model.InstallProgress{Phase: model.InstallPhaseWriting, Percent: 100}
		ch <- model.InstallProgress{Phase: model.InstallPhaseSuccess}
	}
	close(ch)
	return ch
}

func (i *fakeInstaller) Uninstall(_ context.Context, packageName string) (model.UninstallResult, error) {
	i.uninstalls = append(i.uninstalls, packageName)
	return model.UninstallResult{Success: true}, nil
}

type fakeChecker struct {
	summary model.UpdateRunSummary
	result  model.JobResult
}

func (c *fakeChecker) RunOnce(context.Context) (model.UpdateRunSummary, model.JobResult) {
	return c.summary, c.result
}

func progressStream(emissions ...model.DownloadProgress) <-chan model.DownloadProgress {
	ch := make(chan model.DownloadProgress, len(emissions))
	for _, p := range emissions {
		ch <- p
	}
	close(ch)
	return ch
}

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

func testPlatform() config.PlatformConfig {
	return config.PlatformConfig{OS: "linux", Arch: "amd64", FileExtension: ".zip"}
}

func newHarness(t *testing.T) (*Orchestrator, *fakeStore, *fakeSource, *dlmocks.MockManager, *fakeInstaller, *fakeChecker) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := newFakeStore()
	source := &fakeSource{}
	downloads := dlmocks.NewMockManager(ctrl)
	installer := &fakeInstaller{}
	checker := &fakeChecker{result: model.JobSuccess}
	orch := New(store, source, downloads, installer, checker, testPlatform())
	return orch, store, source, downloads, installer, checker
}

func TestInstallFromRelease(t *testing.T) {
	orch, store, source, downloads, installer, _ := newHarness(t)

	assetPath := writeAssetZip(t, asset.Metadata{
		PackageName: "com.example.app",
		AppName:     "Example",
		VersionName: "1.1.0",
		VersionCode: 11,
	})
	source.release = &model.Release{
		Tag:   "v1.1.0",
		Notes: "fixes",
		Assets: []model.Asset{
			{Name: "app.zip", URL: "https://example.com/app.zip", Size: 4096},
		},
	}
	downloads.EXPECT().
		Download(gomock.Any(), "https://example.com/app.zip", "app.zip").
		Return(progressStream(
			model.DownloadProgress{Percent: 50},
			model.DownloadProgress{Done: true, Path: assetPath, Percent: 100},
		))

	var stages []string
	hooks := Hooks{OnEvent: func(e Event) { stages = append(stages, e.Stage) }}

	app, err := orch.InstallFromRelease(context.Background(), model.RepoRef{ID: 7, Owner: "octocat", Name: "hello"}, hooks)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", app.PackageName)
	assert.Equal(t, int64(7), app.RepoID)
	assert.Equal(t, "v1.1.0", app.LatestVersion)
	assert.Equal(t, int64(11), app.LatestVersionCode)
	assert.Equal(t, model.InstallSourceSession, app.InstallSource)
	assert.True(t, app.IsPendingInstall, "the row stays pending until the host reports the result")
	assert.True(t, app.UpdateCheckEnabled)
	assert.Equal(t, 1, installer.installs)
	require.Contains(t, store.apps, "com.example.app")

	assert.Contains(t, stages, StageResolving)
	assert.Contains(t, stages, StageDownloading)
	assert.Contains(t, stages, StageInspecting)
	assert.Contains(t, stages, StageInstalling)
}

func TestInstallFromRelease_ReinstallKeepsSettings(t *testing.T) {
	orch, store, source, downloads, _, _ := newHarness(t)

	require.NoError(t, store.Upsert(context.Background(), &model.TrackedApp{
		PackageName:          "com.example.app",
		InstallSource:        model.InstallSourceManual,
		AutoUpdateEnabled:    true,
		InstalledVersion:     "v1.0.0",
		InstalledVersionCode: 10,
		RepoDescription:      "demo app",
	}))

	assetPath := writeAssetZip(t, asset.Metadata{PackageName: "com.example.app", VersionName: "1.1.0", VersionCode: 11})
	source.release = &model.Release{
		Tag:    "v1.1.0",
		Assets: []model.Asset{{Name: "app.zip", URL: "https://example.com/app.zip"}},
	}
	downloads.EXPECT().
		Download(gomock.Any(), "https://example.com/app.zip", "app.zip").
		Return(progressStream(model.DownloadProgress{Done: true, Path: assetPath, Percent: 100}))

	app, err := orch.InstallFromRelease(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello"}, Hooks{})
	require.NoError(t, err)

	assert.True(t, app.AutoUpdateEnabled)
	assert.Equal(t, model.InstallSourceManual, app.InstallSource)
	assert.Equal(t, "v1.0.0", app.InstalledVersion)
	assert.Equal(t, int64(10), app.InstalledVersionCode)
	assert.Equal(t, "demo app", app.RepoDescription)
}

func TestInstallFromRelease_NoMatchingAsset(t *testing.T) {
	orch, store, source, _, _, _ := newHarness(t)
	source.release = &model.Release{
		Tag:    "v1.0.0",
		Assets: []model.Asset{{Name: "checksums.txt", URL: "https://example.com/checksums.txt"}},
	}

	_, err := orch.InstallFromRelease(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello"}, Hooks{})
	assert.ErrorIs(t, err, errors.ErrNoMatchingAsset)
	assert.Zero(t, store.upserts, "nothing is tracked when resolution fails")
}

func TestInstallFromRelease_DownloadFailure(t *testing.T) {
	orch, store, source, downloads, installer, _ := newHarness(t)
	source.release = &model.Release{
		Tag:    "v1.0.0",
		Assets: []model.Asset{{Name: "app.zip", URL: "https://example.com/app.zip"}},
	}
	downloads.EXPECT().
		Download(gomock.Any(), "https://example.com/app.zip", "app.zip").
		Return(progressStream(model.DownloadProgress{Err: "connection refused"}))

	_, err := orch.InstallFromRelease(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello"}, Hooks{})
	assert.ErrorIs(t, err, errors.ErrDownloadFailed)
	assert.Zero(t, store.upserts)
	assert.Zero(t, installer.installs)
}

func TestInstallFromRelease_InstallFailureSurfaces(t *testing.T) {
	orch, _, source, downloads, installer, _ := newHarness(t)

	assetPath := writeAssetZip(t, asset.Metadata{PackageName: "com.example.app", VersionName: "1.0.0", VersionCode: 10})
	source.release = &model.Release{
		Tag:    "v1.0.0",
		Assets: []model.Asset{{Name: "app.zip", URL: "https://example.com/app.zip"}},
	}
	downloads.EXPECT().
		Download(gomock.Any(), "https://example.com/app.zip", "app.zip").
		Return(progressStream(model.DownloadProgress{Done: true, Path: assetPath, Percent: 100}))
	installer.failWith = "host rejected the session"

	_, err := orch.InstallFromRelease(context.Background(), model.RepoRef{Owner: "octocat", Name: "hello"}, Hooks{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpdateFailed)
	assert.Contains(t, err.Error(), "host rejected the session")
}

func TestInstallFile(t *testing.T) {
	orch, store, _, _, installer, _ := newHarness(t)

	assetPath := writeAssetZip(t, asset.Metadata{PackageName: "com.example.app", AppName: "Example", VersionName: "1.0.0", VersionCode: 10})

	app, err := orch.InstallFile(context.Background(), assetPath, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, model.InstallSourceManual, app.InstallSource)
	assert.True(t, app.IsPendingInstall)
	assert.False(t, app.UpdateCheckEnabled, "a file install has no repository to check")
	assert.Equal(t, 1, installer.installs)
	require.Contains(t, store.apps, "com.example.app")
}

func TestInstallFile_ExistingRowKeepsProvenance(t *testing.T) {
	orch, store, _, _, _, _ := newHarness(t)

	require.NoError(t, store.Upsert(context.Background(), &model.TrackedApp{
		PackageName:        "com.example.app",
		RepoOwner:          "octocat",
		RepoName:           "hello",
		InstallSource:      model.InstallSourceSession,
		UpdateCheckEnabled: true,
	}))

	assetPath := writeAssetZip(t, asset.Metadata{PackageName: "com.example.app", VersionName: "1.1.0", VersionCode: 11})
	app, err := orch.InstallFile(context.Background(), assetPath, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, "octocat", app.RepoOwner)
	assert.Equal(t, model.InstallSourceSession, app.InstallSource)
	assert.True(t, app.UpdateCheckEnabled)
	assert.True(t, app.IsPendingInstall)
	assert.Equal(t, int64(11), app.LatestVersionCode)
}

func TestUninstallDelegatesToInstaller(t *testing.T) {
	orch, _, _, _, installer, _ := newHarness(t)

	res, err := orch.Uninstall(context.Background(), "com.example.app")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"com.example.app"}, installer.uninstalls)
}

func TestCheckNow(t *testing.T) {
	orch, _, _, _, _, checker := newHarness(t)
	checker.summary = model.UpdateRunSummary{Checked: 3, UpdatesAvailable: []string{"Example"}}

	summary, err := orch.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)

	checker.result = model.JobFailure
	_, err = orch.CheckNow(context.Background())
	assert.ErrorIs(t, err, errors.ErrUpdateFailed)

	// A retry that is not quota-driven (a whole-run error) also surfaces.
	checker.result = model.JobRetry
	checker.summary = model.UpdateRunSummary{}
	_, err = orch.CheckNow(context.Background())
	assert.ErrorIs(t, err, errors.ErrUpdateFailed)

	// A quota-limited pass reports through the summary, not the error.
	checker.summary = model.UpdateRunSummary{RateLimited: true}
	summary, err = orch.CheckNow(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.RateLimited)
}

func TestSetAutoUpdate(t *testing.T) {
	orch, store, _, _, _, _ := newHarness(t)
	require.NoError(t, store.Upsert(context.Background(), &model.TrackedApp{PackageName: "com.example.app"}))

	require.NoError(t, orch.SetAutoUpdate(context.Background(), "com.example.app", true))
	assert.True(t, store.apps["com.example.app"].AutoUpdateEnabled)

	err := orch.SetAutoUpdate(context.Background(), "com.example.ghost", true)
	assert.ErrorIs(t, err, errors.ErrAppNotFound)
}
