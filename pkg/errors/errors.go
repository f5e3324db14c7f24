package errors

import (
	stderrors "errors"
	"fmt"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")

	// Download errors.
	ErrDownloadFailed   = fmt.Errorf("download failed")
	ErrFileHashMismatch = fmt.Errorf("file hash mismatch")
	ErrInvalidPath      = fmt.Errorf("invalid path")

	// Asset errors.
	ErrFileNotFound    = fmt.Errorf("file not found")
	ErrAssetInvalid    = fmt.Errorf("asset is invalid")
	ErrNoManifest      = fmt.Errorf("asset has no package manifest")
	ErrNoMatchingAsset = fmt.Errorf("release has no matching asset")

	// Install session errors.
	ErrInstallerUnavailable = fmt.Errorf("privileged installer is not available")
	ErrSessionCreate        = fmt.Errorf("failed to create install session")
	ErrSessionWrite         = fmt.Errorf("failed to write install session")
	ErrSessionCommit        = fmt.Errorf("failed to commit install session")
	ErrSessionNotFound      = fmt.Errorf("install session not found")
	ErrInstallCancelled     = fmt.Errorf("install cancelled")

	// Tracker errors.
	ErrAppNotFound     = fmt.Errorf("app is not tracked")
	ErrPackageNotFound = fmt.Errorf("package is not installed")

	// Update errors.
	ErrRateLimited     = fmt.Errorf("api rate limit exhausted")
	ErrNoAssetURL      = fmt.Errorf("tracked app has no latest asset url")
	ErrUpdateFailed    = fmt.Errorf("update failed")
	ErrSchedulerActive = fmt.Errorf("scheduler job already running")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
