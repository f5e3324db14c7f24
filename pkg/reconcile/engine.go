// Package reconcile repairs drift between the tracker and the host's
// actually-installed package set: apps removed outside the store, apps
// updated externally, legacy rows missing host version data, and pending
// flags left dangling by a host that never reported back.
package reconcile

import (
	"context"
	"time"

	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/hostpkg"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

// AppStore is the subset of the tracker store the engine uses.
type AppStore interface {
	List(ctx context.Context) ([]*model.TrackedApp, error)
	Update(ctx context.Context, app *model.TrackedApp) error
	Delete(ctx context.Context, packageName string) error
}

// Result summarizes one reconciliation pass. A second pass over an
// unchanged host performs zero writes.
type Result struct {
	Deleted        int
	Backfilled     int
	PendingCleared int
	Refreshed      int
	Errors         int
}

// Writes reports whether the pass mutated the tracker at all.
func (r Result) Writes() int {
	return r.Deleted + r.Backfilled + r.PendingCleared + r.Refreshed
}

// Engine compares tracked records against the host.
type Engine struct {
	store AppStore
	host  hostpkg.Manager
	now   func() time.Time
}

// New creates a reconciliation engine.
func New(store AppStore, host hostpkg.Manager) *Engine {
	return &Engine{store: store, host: host, now: time.Now}
}

// Reconcile runs one pass. Failures while handling one package are
// isolated: they are counted, logged and the pass continues. Only a
// failure to list either side aborts the pass.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	var res Result

	apps, err := e.store.List(ctx)
	if err != nil {
		return res, errors.Wrap(err, "failed to list tracked apps")
	}
	installed, err := e.host.InstalledPackages(ctx)
	if err != nil {
		return res, errors.Wrap(err, "failed to query installed packages")
	}

	for _, app := range apps {
		if err := e.reconcileApp(ctx, app, installed, &res); err != nil {
			res.Errors++
			logger.Warn("reconciliation failed for package", logrus.Fields{
				"package": app.PackageName,
				"error":   err,
			})
		}
	}

	if res.Writes() > 0 || res.Errors > 0 {
		logger.Info("reconciliation finished", logrus.Fields{
			"deleted":         res.Deleted,
			"backfilled":      res.Backfilled,
			"pending_cleared": res.PendingCleared,
			"refreshed":       res.Refreshed,
			"errors":          res.Errors,
		})
	}
	return res, nil
}

func (e *Engine) reconcileApp(ctx context.Context, app *model.TrackedApp, installed map[string]struct{}, res *Result) error {
	if _, ok := installed[app.PackageName]; !ok {
		// Removed outside the store.
		if err := e.store.Delete(ctx, app.PackageName); err != nil {
			return err
		}
		res.Deleted++
		logger.Info("dropped app removed outside the store", logrus.Fields{"package": app.PackageName})
		return nil
	}

	if !app.HasVersionCodes() {
		return e.backfillVersions(ctx, app, res)
	}

	info, err := e.host.PackageInfo(ctx, app.PackageName)
	if err != nil {
		return err
	}

	changed := false
	if info.VersionCode != app.InstalledVersionCode || info.VersionName != app.InstalledVersionName {
		app.InstalledVersionName = info.VersionName
		app.InstalledVersionCode = info.VersionCode
		app.IsUpdateAvailable = model.UpdateAvailable(
			app.InstalledVersion, app.InstalledVersionCode, app.LatestVersion, app.LatestVersionCode)
		changed = true
		res.Refreshed++
	}

	// A dangling pending flag is a bug state: a terminal host event was
	// missed. Once the host observably carries the expected version (or
	// any version when no target is known), clear it here.
	if app.IsPendingInstall && (app.LatestVersionCode == 0 || info.VersionCode >= app.LatestVersionCode) {
		app.IsPendingInstall = false
		changed = true
		res.PendingCleared++
		logger.Info("cleared dangling pending install", logrus.Fields{"package": app.PackageName})
	}

	if !changed {
		return nil
	}
	return e.store.Update(ctx, app)
}

// backfillVersions fills the host-observed version fields of a legacy row
// that predates version-code tracking. When the host has no info (desktop
// targets without a package registry), the store's own release tag is the
// display fallback with version code 0.
func (e *Engine) backfillVersions(ctx context.Context, app *model.TrackedApp, res *Result) error {
	name, code := "", int64(0)
	if info, err := e.host.PackageInfo(ctx, app.PackageName); err == nil && info.VersionCode > 0 {
		name, code = info.VersionName, info.VersionCode
	}
	if name == "" {
		name = app.InstalledVersion
	}
	if name == "" {
		// Nothing to backfill from; leave the row for the update pass.
		return nil
	}
	if app.InstalledVersionName == name && app.InstalledVersionCode == code {
		// The fallback was already applied on an earlier pass.
		return nil
	}
	app.InstalledVersionName = name
	app.InstalledVersionCode = code
	res.Backfilled++
	return e.store.Update(ctx, app)
}
