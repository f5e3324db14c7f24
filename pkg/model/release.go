package model

import "time"

// Release is one published release of a tracked repository, reduced to the
// fields the update path reads.
type Release struct {
	Tag         string
	Name        string
	Notes       string
	PublishedAt time.Time
	Assets      []Asset
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string
	URL         string
	Size        int64
	ContentType string
}

// RepoRef identifies the repository a tracked app came from.
type RepoRef struct {
	ID    int64
	Owner string
	Name  string
}

// PackageEventKind enumerates the host's terminal package events.
type PackageEventKind string

const (
	// PackageEventCommit reports the outcome of a committed install session.
	PackageEventCommit PackageEventKind = "commit"
	// PackageEventAdded reports a package appearing on the host.
	PackageEventAdded PackageEventKind = "added"
	// PackageEventReplaced reports a package being updated in place.
	PackageEventReplaced PackageEventKind = "replaced"
	// PackageEventRemoved reports a package disappearing from the host.
	PackageEventRemoved PackageEventKind = "removed"
	// PackageEventUninstall reports the outcome of an uninstall request.
	PackageEventUninstall PackageEventKind = "uninstall"
)

// PackageEvent is one asynchronous event delivered by the host package
// facility, potentially on a different goroutine long after the request
// that caused it returned.
type PackageEvent struct {
	Kind        PackageEventKind
	SessionID   int // commit events only; -1 otherwise
	PackageName string
	Success     bool
	Message     string
	VersionName string
	VersionCode int64
}
