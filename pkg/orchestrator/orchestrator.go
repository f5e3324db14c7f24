//go:generate mockgen -destination=./mocks/orchestrator.go -package=mocks . AppStore,Installer,Checker

// Package orchestrator ties the release source, downloader, install
// service and tracker together for the manual flows the CLI exposes:
// install from a repository's latest release, install a local file,
// uninstall, and an on-demand update check.
package orchestrator

import (
	"context"
	"time"

	"github.com/rainxch/githubstore/pkg/asset"
	"github.com/rainxch/githubstore/pkg/config"
	"github.com/rainxch/githubstore/pkg/download"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/rainxch/githubstore/pkg/release"
	"github.com/sirupsen/logrus"
)

// Event stages reported through Hooks.
const (
	StageResolving   = "resolving"
	StageDownloading = "downloading"
	StageInspecting  = "inspecting"
	StageInstalling  = "installing"
)

// Event is one coarse progress notification from a manual flow.
type Event struct {
	Stage   string
	Percent int // -1 when the stage has no meaningful percentage
	Message string
}

// Hooks carries callbacks for progress events. A nil OnEvent is fine.
type Hooks struct {
	OnEvent func(Event)
}

func (h Hooks) emit(e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// AppStore is the tracker surface the manual flows use.
type AppStore interface {
	Get(ctx context.Context, packageName string) (*model.TrackedApp, error)
	Upsert(ctx context.Context, app *model.TrackedApp) error
	SetAutoUpdateEnabled(ctx context.Context, packageName string, enabled bool) error
}

// Installer is the session install surface.
type Installer interface {
	Install(ctx context.Context, filePath string) <-chan model.InstallProgress
	Uninstall(ctx context.Context, packageName string) (model.UninstallResult, error)
}

// Checker runs one update pass on demand.
type Checker interface {
	RunOnce(ctx context.Context) (model.UpdateRunSummary, model.JobResult)
}

// Orchestrator drives the manual flows.
type Orchestrator struct {
	store     AppStore
	source    release.Source
	downloads download.Manager
	installer Installer
	checker   Checker
	platform  config.PlatformConfig
	now       func() time.Time
}

// New wires an orchestrator.
func New(store AppStore, source release.Source, downloads download.Manager, installer Installer, checker Checker, platform config.PlatformConfig) *Orchestrator {
	return &Orchestrator{
		store:     store,
		source:    source,
		downloads: downloads,
		installer: installer,
		checker:   checker,
		platform:  platform,
		now:       time.Now,
	}
}

// InstallFromRelease fetches the latest release of ref, downloads the
// matching asset, and installs it through a host session. The tracked row
// is written pending before the commit; the event receiver finalizes it
// when the host reports the terminal result.
func (o *Orchestrator) InstallFromRelease(ctx context.Context, ref model.RepoRef, hooks Hooks) (*model.TrackedApp, error) {
	hooks.emit(Event{Stage: StageResolving, Percent: -1, Message: ref.Owner + "/" + ref.Name})
	rel, err := o.source.LatestRelease(ctx, ref)
	if err != nil {
		return nil, err
	}
	ast, err := release.SelectAsset(rel, o.platform.OS, o.platform.Arch, o.platform.FileExtension)
	if err != nil {
		return nil, err
	}

	path, err := o.fetchAsset(ctx, ast.URL, ast.Name, hooks)
	if err != nil {
		return nil, err
	}

	hooks.emit(Event{Stage: StageInspecting, Percent: -1, Message: ast.Name})
	meta, err := asset.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	now := o.now()
	app := &model.TrackedApp{
		PackageName:        meta.PackageName,
		RepoID:             ref.ID,
		RepoOwner:          ref.Owner,
		RepoName:           ref.Name,
		AppName:            meta.AppName,
		InstallSource:      model.InstallSourceSession,
		SystemArchitecture: o.platform.Arch,
		FileExtension:      o.platform.FileExtension,
		LatestVersion:      rel.Tag,
		LatestVersionName:  meta.VersionName,
		LatestVersionCode:  meta.VersionCode,
		LatestAssetName:    ast.Name,
		LatestAssetURL:     ast.URL,
		LatestAssetSize:    ast.Size,
		ReleaseNotes:       rel.Notes,
		IsPendingInstall:   true,
		UpdateCheckEnabled: true,
		InstalledAt:        now,
		LastCheckedAt:      now,
	}
	if prev, err := o.store.Get(ctx, meta.PackageName); err == nil {
		// Reinstall of a tracked app keeps its settings, provenance and
		// the host-observed installed version.
		app.AutoUpdateEnabled = prev.AutoUpdateEnabled
		app.UpdateCheckEnabled = prev.UpdateCheckEnabled
		app.InstallSource = prev.InstallSource
		app.InstalledAt = prev.InstalledAt
		app.InstalledVersion = prev.InstalledVersion
		app.InstalledVersionName = prev.InstalledVersionName
		app.InstalledVersionCode = prev.InstalledVersionCode
		app.RepoOwnerAvatarURL = prev.RepoOwnerAvatarURL
		app.RepoDescription = prev.RepoDescription
		app.PrimaryLanguage = prev.PrimaryLanguage
		app.RepoURL = prev.RepoURL
	}
	if err := o.store.Upsert(ctx, app); err != nil {
		return nil, err
	}

	if err := o.runInstall(ctx, path, hooks); err != nil {
		return nil, err
	}
	logger.Info("installed from release", logrus.Fields{
		"package": app.PackageName,
		"repo":    ref.Owner + "/" + ref.Name,
		"version": rel.Tag,
	})
	return app, nil
}

// InstallFile installs a local asset archive without repository
// provenance. The row is tracked with the manual install source; update
// checking stays off because there is no repository to check.
func (o *Orchestrator) InstallFile(ctx context.Context, path string, hooks Hooks) (*model.TrackedApp, error) {
	hooks.emit(Event{Stage: StageInspecting, Percent: -1, Message: path})
	meta, err := asset.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	app := &model.TrackedApp{
		PackageName:       meta.PackageName,
		AppName:           meta.AppName,
		InstallSource:     model.InstallSourceManual,
		LatestVersionName: meta.VersionName,
		LatestVersionCode: meta.VersionCode,
		IsPendingInstall:  true,
		InstalledAt:       o.now(),
	}
	if prev, err := o.store.Get(ctx, meta.PackageName); err == nil {
		app = prev
		app.LatestVersionName = meta.VersionName
		app.LatestVersionCode = meta.VersionCode
		app.IsPendingInstall = true
	}
	if err := o.store.Upsert(ctx, app); err != nil {
		return nil, err
	}

	if err := o.runInstall(ctx, path, hooks); err != nil {
		return nil, err
	}
	return app, nil
}

// Uninstall removes a package through the host and waits for the result.
// The tracked row is deleted by the event receiver once the host reports
// the removal.
func (o *Orchestrator) Uninstall(ctx context.Context, packageName string) (model.UninstallResult, error) {
	return o.installer.Uninstall(ctx, packageName)
}

// CheckNow runs one update pass immediately and returns its summary. A
// rate-limited pass is not an error here: the summary carries the flag
// and the caller reports it.
func (o *Orchestrator) CheckNow(ctx context.Context) (model.UpdateRunSummary, error) {
	summary, result := o.checker.RunOnce(ctx)
	if result != model.JobSuccess && !summary.RateLimited {
		return summary, errors.ErrUpdateFailed
	}
	return summary, nil
}

// SetAutoUpdate toggles unattended updates for one app.
func (o *Orchestrator) SetAutoUpdate(ctx context.Context, packageName string, enabled bool) error {
	return o.store.SetAutoUpdateEnabled(ctx, packageName, enabled)
}

func (o *Orchestrator) fetchAsset(ctx context.Context, url, name string, hooks Hooks) (string, error) {
	if url == "" {
		return "", errors.ErrNoAssetURL
	}
	var last model.DownloadProgress
	for p := range o.downloads.Download(ctx, url, name) {
		last = p
		if !p.Done && p.Err == "" {
			hooks.emit(Event{Stage: StageDownloading, Percent: p.Percent, Message: name})
		}
	}
	if last.Err != "" {
		return "", errors.Wrap(errors.ErrDownloadFailed, last.Err)
	}
	if !last.Done || last.Path == "" {
		return "", errors.Wrap(errors.ErrDownloadFailed, "download ended without a file")
	}
	return last.Path, nil
}

func (o *Orchestrator) runInstall(ctx context.Context, path string, hooks Hooks) error {
	var last model.InstallProgress
	for p := range o.installer.Install(ctx, path) {
		last = p
		hooks.emit(Event{Stage: StageInstalling, Percent: installPercent(p), Message: string(p.Phase)})
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

func installPercent(p model.InstallProgress) int {
	if p.Phase == model.InstallPhaseWriting {
		return p.Percent
	}
	return -1
}
