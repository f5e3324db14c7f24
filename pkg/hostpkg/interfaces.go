//go:generate mockgen -destination=./mocks/hostpkg.go -package=mocks . Manager

// Package hostpkg abstracts the host's package-management facility: the
// privileged session-based install path, uninstall by package name, and
// queries over the installed-package set. Terminal results for commits and
// uninstalls are fundamentally asynchronous and arrive on the event
// stream, not as return values.
package hostpkg

import (
	"context"
	"io"

	"github.com/rainxch/githubstore/pkg/model"
)

// Manager is the host package-management facility.
type Manager interface {
	// Available reports whether the privileged install path can be used.
	Available() bool

	// CreateSession opens a new install session and returns its id.
	// Valid ids are >= 0.
	CreateSession(ctx context.Context) (int, error)

	// OpenWrite returns a writer for streaming the package payload into
	// the session. size may be zero when unknown.
	OpenWrite(sessionID int, name string, size int64) (io.WriteCloser, error)

	// Commit submits the session for installation. The call returns once
	// the submission is accepted; the terminal outcome is delivered later
	// as a PackageEvent with the same session id.
	Commit(ctx context.Context, sessionID int) error

	// Abandon discards a session and its staged data.
	Abandon(sessionID int) error

	// Uninstall asks the host to remove a package. The terminal outcome
	// is delivered as a PackageEvent keyed by package name.
	Uninstall(ctx context.Context, packageName string) error

	// InstalledPackages returns the full set of installed package names.
	InstalledPackages(ctx context.Context) (map[string]struct{}, error)

	// PackageInfo returns the host's metadata for one installed package,
	// or ErrPackageNotFound.
	PackageInfo(ctx context.Context, packageName string) (*model.SystemPackageInfo, error)

	// Events is the asynchronous delivery path for commit results,
	// uninstall results and out-of-band package changes.
	Events() <-chan model.PackageEvent
}
