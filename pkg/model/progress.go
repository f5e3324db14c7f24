package model

// InstallPhase enumerates the states of the install progress stream.
type InstallPhase string

const (
	InstallPhasePreparing       InstallPhase = "preparing"
	InstallPhaseCreatingSession InstallPhase = "creating_session"
	InstallPhaseWriting         InstallPhase = "writing"
	InstallPhaseCommitting      InstallPhase = "committing"
	InstallPhaseSuccess         InstallPhase = "success"
	InstallPhaseError           InstallPhase = "error"
)

// InstallProgress is one emission on the install stream. Percent is only
// meaningful in the writing phase, PackageName only on success and Message
// only on error.
type InstallProgress struct {
	Phase       InstallPhase
	Percent     int
	PackageName string
	Message     string
}

// Terminal reports whether no further emissions follow this one.
func (p InstallProgress) Terminal() bool {
	return p.Phase == InstallPhaseSuccess || p.Phase == InstallPhaseError
}

// InstallWriting builds a writing-phase emission.
func InstallWriting(percent int) InstallProgress {
	return InstallProgress{Phase: InstallPhaseWriting, Percent: percent}
}

// InstallSuccess builds the terminal success emission.
func InstallSuccess(packageName string) InstallProgress {
	return InstallProgress{Phase: InstallPhaseSuccess, PackageName: packageName, Percent: 100}
}

// InstallError builds the terminal error emission.
func InstallError(message string) InstallProgress {
	return InstallProgress{Phase: InstallPhaseError, Message: message}
}

// DownloadProgress is one emission on the download stream. A terminal
// emission has either Done set with the final path or Err non-empty.
type DownloadProgress struct {
	Percent    int
	BytesTotal int64
	BytesDone  int64
	Done       bool
	Path       string
	Err        string
}

// UninstallResult is the terminal outcome of an uninstall request.
type UninstallResult struct {
	Success bool
	Message string
}
