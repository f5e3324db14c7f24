// Package model provides the data structures shared between the install
// service, the tracker store, the reconciliation engine and the scheduler.
package model

import (
	"time"

	"github.com/hashicorp/go-version"
)

// InstallSource records which install path created a tracked app.
type InstallSource string

const (
	// InstallSourceSession is the privileged session-based install path.
	InstallSourceSession InstallSource = "session"
	// InstallSourceManual is the standard user-confirmed install flow.
	InstallSourceManual InstallSource = "manual"
)

// TrackedApp is the durable record of one application the store installed
// or tracks. The package name is the immutable unique key; the host's
// version code is authoritative over the store's own release tag.
type TrackedApp struct {
	PackageName string

	// Provenance.
	RepoID             int64
	RepoOwner          string
	RepoName           string
	RepoOwnerAvatarURL string
	RepoDescription    string
	PrimaryLanguage    string
	RepoURL            string
	AppName            string
	InstallSource      InstallSource
	SystemArchitecture string
	FileExtension      string

	// Installed release as the store last wrote it.
	InstalledVersion   string // release tag
	InstalledAssetName string
	InstalledAssetURL  string

	// Host-observed truth.
	InstalledVersionName string
	InstalledVersionCode int64

	// Latest known release.
	LatestVersion     string
	LatestVersionName string
	LatestVersionCode int64
	LatestAssetName   string
	LatestAssetURL    string
	LatestAssetSize   int64
	ReleaseNotes      string

	// Derived flags.
	IsUpdateAvailable  bool
	IsPendingInstall   bool
	UpdateCheckEnabled bool
	AutoUpdateEnabled  bool

	// Timestamps.
	InstalledAt   time.Time
	LastCheckedAt time.Time
	LastUpdatedAt time.Time

	// Auto-update bookkeeping.
	LastAutoUpdateAttempt time.Time
	AutoUpdateFailCount   int
	AutoUpdateFailReason  string
}

// UpdateEligible reports whether the scheduled auto-update pass should
// attempt this app. Availability of the privileged path is checked by the
// caller, not here.
func (a *TrackedApp) UpdateEligible() bool {
	return a.IsUpdateAvailable && a.UpdateCheckEnabled && a.AutoUpdateEnabled
}

// HasVersionCodes reports whether host-observed version codes were ever
// recorded for this app. Legacy rows migrated from tag-only tracking have
// neither code set.
func (a *TrackedApp) HasVersionCodes() bool {
	return a.InstalledVersionCode > 0 || a.LatestVersionCode > 0
}

// SystemPackageInfo is the host package manager's view of one installed
// package.
type SystemPackageInfo struct {
	PackageName string
	VersionName string
	VersionCode int64
}

// UpdateAvailable decides whether latest is newer than installed.
// Version codes are authoritative when both sides carry one; otherwise the
// release tags are compared as semantic versions, falling back to plain
// inequality for tags go-version cannot parse.
func UpdateAvailable(installedTag string, installedCode int64, latestTag string, latestCode int64) bool {
	if installedCode > 0 && latestCode > 0 {
		return latestCode > installedCode
	}
	iv, ierr := version.NewVersion(normalizeTag(installedTag))
	lv, lerr := version.NewVersion(normalizeTag(latestTag))
	if ierr == nil && lerr == nil {
		return lv.GreaterThan(iv)
	}
	return installedTag != latestTag && latestTag != ""
}

func normalizeTag(tag string) string {
	if len(tag) > 0 && (tag[0] == 'v' || tag[0] == 'V') {
		return tag[1:]
	}
	return tag
}
