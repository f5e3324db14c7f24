package install

import (
	"context"
	"time"

	"github.com/rainxch/githubstore/pkg/hostpkg"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

// AppStore is the subset of the tracker store the receiver writes.
type AppStore interface {
	Get(ctx context.Context, packageName string) (*model.TrackedApp, error)
	Update(ctx context.Context, app *model.TrackedApp) error
	Delete(ctx context.Context, packageName string) error
}

// Receiver is the inbound half of the correlation protocol: it consumes
// the host's asynchronous package events, resolves pending correlator
// slots, and keeps the tracker in agreement with what the host reports.
// It is the store's equivalent of a package-broadcast receiver.
type Receiver struct {
	correlator *Correlator
	host       hostpkg.Manager
	store      AppStore
}

// NewReceiver wires the receiver to the shared correlator, the host event
// stream and the tracker store.
func NewReceiver(correlator *Correlator, host hostpkg.Manager, store AppStore) *Receiver {
	return &Receiver{correlator: correlator, host: host, store: store}
}

// Run pumps host events until ctx is cancelled or the stream closes. One
// receiver per host facility; events are handled sequentially so tracker
// writes for a package are ordered.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.host.Events():
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Receiver) handle(ctx context.Context, ev model.PackageEvent) {
	logger.Debug("host package event", logrus.Fields{
		"kind":    ev.Kind,
		"package": ev.PackageName,
		"session": ev.SessionID,
		"success": ev.Success,
	})

	switch ev.Kind {
	case model.PackageEventCommit:
		resolved := r.correlator.ResolveSession(ev.SessionID, CommitResult{
			Success:     ev.Success,
			PackageName: ev.PackageName,
			Message:     ev.Message,
			VersionName: ev.VersionName,
			VersionCode: ev.VersionCode,
		})
		if !resolved {
			// Caller cancelled or a duplicate delivery; nothing waits.
			logger.Debug("commit result had no waiter", logrus.Fields{"session": ev.SessionID})
		}

	case model.PackageEventUninstall:
		r.correlator.ResolveUninstall(ev.PackageName, model.UninstallResult{
			Success: ev.Success,
			Message: ev.Message,
		})

	case model.PackageEventAdded, model.PackageEventReplaced:
		r.onPackageInstalled(ctx, ev)

	case model.PackageEventRemoved:
		r.onPackageRemoved(ctx, ev.PackageName)
	}
}

// onPackageInstalled resolves the pending-install flag and refreshes the
// host-observed version fields for a tracked package. The pending flag is
// cleared only when the reported version code reaches the expected target;
// a "replaced" event for some older version must not be trusted as the
// update's completion.
func (r *Receiver) onPackageInstalled(ctx context.Context, ev model.PackageEvent) {
	app, err := r.store.Get(ctx, ev.PackageName)
	if err != nil {
		return // not tracked by the store
	}

	versionName, versionCode := ev.VersionName, ev.VersionCode
	if versionCode == 0 {
		if info, err := r.host.PackageInfo(ctx, ev.PackageName); err == nil {
			versionName, versionCode = info.VersionName, info.VersionCode
		}
	}

	if app.IsPendingInstall {
		if app.LatestVersionCode > 0 && versionCode < app.LatestVersionCode {
			// An install landed, but not the one we are waiting for.
			logger.Debug("pending install not yet satisfied", logrus.Fields{
				"package":  ev.PackageName,
				"got":      versionCode,
				"expected": app.LatestVersionCode,
			})
			return
		}
		app.IsPendingInstall = false
		app.IsUpdateAvailable = false
		if app.LatestVersion != "" {
			app.InstalledVersion = app.LatestVersion
			app.InstalledAssetName = app.LatestAssetName
			app.InstalledAssetURL = app.LatestAssetURL
		}
		app.InstalledVersionName = versionName
		app.InstalledVersionCode = versionCode
		app.LatestVersionName = versionName
		app.LatestVersionCode = versionCode
		app.LastUpdatedAt = time.Now()
		if err := r.store.Update(ctx, app); err != nil {
			logger.Error("failed to resolve pending install", logrus.Fields{"package": ev.PackageName, "error": err})
			return
		}
		logger.Info("resolved pending install", logrus.Fields{"package": ev.PackageName, "version": versionName})
		return
	}

	if versionCode != 0 && (app.InstalledVersionCode != versionCode || app.InstalledVersionName != versionName) {
		app.InstalledVersionName = versionName
		app.InstalledVersionCode = versionCode
		app.IsUpdateAvailable = model.UpdateAvailable(app.InstalledVersion, versionCode, app.LatestVersion, app.LatestVersionCode)
		if err := r.store.Update(ctx, app); err != nil {
			logger.Error("failed to record version change", logrus.Fields{"package": ev.PackageName, "error": err})
		}
	}
}

// onPackageRemoved drops the tracked record for a package the host no
// longer has.
func (r *Receiver) onPackageRemoved(ctx context.Context, packageName string) {
	if _, err := r.store.Get(ctx, packageName); err != nil {
		return
	}
	if err := r.store.Delete(ctx, packageName); err != nil {
		logger.Error("failed to delete removed app", logrus.Fields{"package": packageName, "error": err})
		return
	}
	logger.Info("removed uninstalled app", logrus.Fields{"package": packageName})
}
