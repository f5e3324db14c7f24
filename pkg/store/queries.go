package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/model"
)

const appColumns = `package_name, repo_id, repo_owner, repo_name, repo_owner_avatar_url,
	repo_description, primary_language, repo_url, app_name, install_source,
	system_architecture, file_extension, installed_version, installed_asset_name,
	installed_asset_url, installed_version_name, installed_version_code,
	latest_version, latest_version_name, latest_version_code, latest_asset_name,
	latest_asset_url, latest_asset_size, release_notes, is_update_available,
	is_pending_install, update_check_enabled, auto_update_enabled, installed_at,
	last_checked_at, last_updated_at, last_auto_update_attempt,
	auto_update_fail_count, auto_update_fail_reason`

// Upsert inserts or replaces a tracked app row.
func (s *Store) Upsert(ctx context.Context, app *model.TrackedApp) error {
	query := `INSERT OR REPLACE INTO tracked_apps (` + appColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, appArgs(app)...)
	if err != nil {
		return fmt.Errorf("failed to upsert app %s: %w", app.PackageName, err)
	}
	return nil
}

// Update is an alias for Upsert; the package name is the immutable key.
func (s *Store) Update(ctx context.Context, app *model.TrackedApp) error {
	return s.Upsert(ctx, app)
}

// Get retrieves one tracked app by package name.
func (s *Store) Get(ctx context.Context, packageName string) (*model.TrackedApp, error) {
	query := `SELECT ` + appColumns + ` FROM tracked_apps WHERE package_name = ?`
	app, err := scanApp(s.db.QueryRowContext(ctx, query, packageName))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrAppNotFound, "package %s", packageName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app %s: %w", packageName, err)
	}
	return app, nil
}

// Delete removes a tracked app. Deleting an untracked package is a no-op.
func (s *Store) Delete(ctx context.Context, packageName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_apps WHERE package_name = ?`, packageName)
	if err != nil {
		return fmt.Errorf("failed to delete app %s: %w", packageName, err)
	}
	return nil
}

// List returns all tracked apps ordered by package name.
func (s *Store) List(ctx context.Context) ([]*model.TrackedApp, error) {
	return s.list(ctx, `SELECT `+appColumns+` FROM tracked_apps ORDER BY package_name`)
}

// ListWithUpdates returns the tracked apps with an available update.
func (s *Store) ListWithUpdates(ctx context.Context) ([]*model.TrackedApp, error) {
	return s.list(ctx, `SELECT `+appColumns+` FROM tracked_apps WHERE is_update_available = 1 ORDER BY package_name`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*model.TrackedApp, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*model.TrackedApp
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// ReplaceAll swaps the whole tracked-app table for the given set in one
// transaction, so readers never observe a transiently empty table.
func (s *Store) ReplaceAll(ctx context.Context, apps []*model.TrackedApp) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tracked_apps`); err != nil {
		return fmt.Errorf("failed to clear tracked apps: %w", err)
	}
	query := `INSERT INTO tracked_apps (` + appColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, app := range apps {
		if _, err = tx.ExecContext(ctx, query, appArgs(app)...); err != nil {
			return fmt.Errorf("failed to insert app %s: %w", app.PackageName, err)
		}
	}
	return tx.Commit()
}

// SetAutoUpdateEnabled toggles the per-app auto-update flag.
func (s *Store) SetAutoUpdateEnabled(ctx context.Context, packageName string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_apps SET auto_update_enabled = ? WHERE package_name = ?`, enabled, packageName)
	if err != nil {
		return fmt.Errorf("failed to set auto-update for %s: %w", packageName, err)
	}
	return requireRow(res, packageName)
}

// SetPendingInstall flips the pending-install flag for a package.
func (s *Store) SetPendingInstall(ctx context.Context, packageName string, pending bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_apps SET is_pending_install = ? WHERE package_name = ?`, pending, packageName)
	if err != nil {
		return fmt.Errorf("failed to set pending install for %s: %w", packageName, err)
	}
	return requireRow(res, packageName)
}

// RecordAutoUpdateFailure increments the consecutive failure counter and
// stores the reason.
func (s *Store) RecordAutoUpdateFailure(ctx context.Context, packageName, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_apps SET auto_update_fail_count = auto_update_fail_count + 1,
			auto_update_fail_reason = ?, last_auto_update_attempt = ?
		 WHERE package_name = ?`, reason, at.Unix(), packageName)
	if err != nil {
		return fmt.Errorf("failed to record auto-update failure for %s: %w", packageName, err)
	}
	return requireRow(res, packageName)
}

// ClearAutoUpdateFailures resets the failure bookkeeping after a
// successful attempt.
func (s *Store) ClearAutoUpdateFailures(ctx context.Context, packageName string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_apps SET auto_update_fail_count = 0, auto_update_fail_reason = '',
			last_auto_update_attempt = ?
		 WHERE package_name = ?`, at.Unix(), packageName)
	if err != nil {
		return fmt.Errorf("failed to clear auto-update failures for %s: %w", packageName, err)
	}
	return requireRow(res, packageName)
}

func requireRow(res sql.Result, packageName string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrAppNotFound, "package %s", packageName)
	}
	return nil
}

func appArgs(app *model.TrackedApp) []any {
	return []any{
		app.PackageName, app.RepoID, app.RepoOwner, app.RepoName, app.RepoOwnerAvatarURL,
		app.RepoDescription, app.PrimaryLanguage, app.RepoURL, app.AppName, string(app.InstallSource),
		app.SystemArchitecture, app.FileExtension, app.InstalledVersion, app.InstalledAssetName,
		app.InstalledAssetURL, app.InstalledVersionName, app.InstalledVersionCode,
		app.LatestVersion, app.LatestVersionName, app.LatestVersionCode, app.LatestAssetName,
		app.LatestAssetURL, app.LatestAssetSize, app.ReleaseNotes, app.IsUpdateAvailable,
		app.IsPendingInstall, app.UpdateCheckEnabled, app.AutoUpdateEnabled, unix(app.InstalledAt),
		unix(app.LastCheckedAt), unix(app.LastUpdatedAt), unix(app.LastAutoUpdateAttempt),
		app.AutoUpdateFailCount, app.AutoUpdateFailReason,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(row rowScanner) (*model.TrackedApp, error) {
	var app model.TrackedApp
	var source string
	var installedAt, lastCheckedAt, lastUpdatedAt, lastAttempt int64

	err := row.Scan(
		&app.PackageName, &app.RepoID, &app.RepoOwner, &app.RepoName, &app.RepoOwnerAvatarURL,
		&app.RepoDescription, &app.PrimaryLanguage, &app.RepoURL, &app.AppName, &source,
		&app.SystemArchitecture, &app.FileExtension, &app.InstalledVersion, &app.InstalledAssetName,
		&app.InstalledAssetURL, &app.InstalledVersionName, &app.InstalledVersionCode,
		&app.LatestVersion, &app.LatestVersionName, &app.LatestVersionCode, &app.LatestAssetName,
		&app.LatestAssetURL, &app.LatestAssetSize, &app.ReleaseNotes, &app.IsUpdateAvailable,
		&app.IsPendingInstall, &app.UpdateCheckEnabled, &app.AutoUpdateEnabled, &installedAt,
		&lastCheckedAt, &lastUpdatedAt, &lastAttempt,
		&app.AutoUpdateFailCount, &app.AutoUpdateFailReason,
	)
	if err != nil {
		return nil, err
	}
	app.InstallSource = model.InstallSource(source)
	app.InstalledAt = fromUnix(installedAt)
	app.LastCheckedAt = fromUnix(lastCheckedAt)
	app.LastUpdatedAt = fromUnix(lastUpdatedAt)
	app.LastAutoUpdateAttempt = fromUnix(lastAttempt)
	return &app, nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
