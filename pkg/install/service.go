package install

import (
	"context"
	"io"
	"os"

	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/hostpkg"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultChunkSize is the write granularity for streaming a package
	// into the host session.
	DefaultChunkSize = 64 * 1024

	// DefaultProgressStep is the minimum percent advance between two
	// writing-phase emissions.
	DefaultProgressStep = 5
)

// Options tune the install stream. Zero values take the defaults above.
type Options struct {
	ChunkSize    int
	ProgressStep int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = DefaultProgressStep
	}
	return o
}

// Service drives the privileged session install path: validate the file,
// open a session, stream the payload in chunks, commit, and wait for the
// host's asynchronous terminal result via the correlator.
type Service struct {
	host       hostpkg.Manager
	correlator *Correlator
	opts       Options
}

// NewService creates an install service on top of the host facility and a
// shared correlator.
func NewService(host hostpkg.Manager, correlator *Correlator, opts Options) *Service {
	return &Service{host: host, correlator: correlator, opts: opts.withDefaults()}
}

// Install streams the package at filePath into a host install session and
// reports progress. The returned channel is closed after the terminal
// Success or Error emission. Cancelling ctx abandons the session.
//
// The channel buffer is sized for the worst-case emission count, so the
// blocking writer never stalls on a slow observer and no state is lost.
func (s *Service) Install(ctx context.Context, filePath string) <-chan model.InstallProgress {
	out := make(chan model.InstallProgress, 100/s.opts.ProgressStep+8)

	go func() {
		defer close(out)
		s.run(ctx, filePath, out)
	}()

	return out
}

func (s *Service) run(ctx context.Context, filePath string, out chan<- model.InstallProgress) {
	emit(out, model.InstallProgress{Phase: model.InstallPhasePreparing})

	if !s.host.Available() {
		emitTerminal(out, model.InstallError(errors.ErrInstallerUnavailable.Error()))
		return
	}

	st, err := os.Stat(filePath)
	if err != nil {
		emitTerminal(out, model.InstallError("file not found: "+filePath))
		return
	}

	emit(out, model.InstallProgress{Phase: model.InstallPhaseCreatingSession})
	sessionID, err := s.host.CreateSession(ctx)
	if err != nil || sessionID < 0 {
		emitTerminal(out, model.InstallError(errors.Wrap(errors.ErrSessionCreate, errMessage(err)).Error()))
		return
	}
	logger.Debug("install session created", logrus.Fields{"session": sessionID, "file": filePath})

	if err := s.writePayload(ctx, sessionID, filePath, st.Size(), out); err != nil {
		s.abandon(sessionID)
		emitTerminal(out, model.InstallError(err.Error()))
		return
	}

	emit(out, model.InstallWriting(100))
	emit(out, model.InstallProgress{Phase: model.InstallPhaseCommitting})

	result, err := s.commitAndWait(ctx, sessionID)
	if err != nil {
		emitTerminal(out, model.InstallError(err.Error()))
		return
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "installation failed"
		}
		emitTerminal(out, model.InstallError(msg))
		return
	}
	logger.Info("installation successful", logrus.Fields{"package": result.PackageName})
	emitTerminal(out, model.InstallSuccess(result.PackageName))
}

// writePayload streams the file into the session in fixed-size chunks,
// emitting a writing tick whenever cumulative percent advances by at least
// the configured step.
func (s *Service) writePayload(ctx context.Context, sessionID int, filePath string, fileSize int64, out chan<- model.InstallProgress) error {
	in, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(errors.ErrSessionWrite, err.Error())
	}
	defer func() { _ = in.Close() }()

	w, err := s.host.OpenWrite(sessionID, "base.pkg", fileSize)
	if err != nil {
		return errors.Wrap(errors.ErrSessionWrite, err.Error())
	}

	var written int64
	lastEmitted := 0
	buf := make([]byte, s.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return errors.Wrap(errors.ErrInstallCancelled, err.Error())
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				_ = w.Close()
				return errors.Wrap(errors.ErrSessionWrite, err.Error())
			}
			written += int64(n)
			if fileSize > 0 {
				percent := int(written * 100 / fileSize)
				if percent >= lastEmitted+s.opts.ProgressStep {
					emit(out, model.InstallWriting(percent))
					lastEmitted = percent
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = w.Close()
			return errors.Wrap(errors.ErrSessionWrite, readErr.Error())
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(errors.ErrSessionWrite, err.Error())
	}
	return nil
}

// commitAndWait registers the completion slot, submits the commit carrying
// the same session id, and suspends until the host's asynchronous result
// is correlated back, or the context is cancelled, in which case the slot
// is removed and the host session abandoned so no late event dereferences
// a gone slot.
func (s *Service) commitAndWait(ctx context.Context, sessionID int) (CommitResult, error) {
	resultCh := s.correlator.RegisterSession(sessionID)

	if err := s.host.Commit(ctx, sessionID); err != nil {
		// Synchronous failure: no asynchronous event will ever arrive, so
		// the slot must not be left orphaned.
		s.correlator.CancelSession(sessionID)
		s.abandon(sessionID)
		return CommitResult{}, errors.Wrap(errors.ErrSessionCommit, err.Error())
	}
	logger.Debug("session committed", logrus.Fields{"session": sessionID})

	select {
	case <-ctx.Done():
		s.correlator.CancelSession(sessionID)
		s.abandon(sessionID)
		return CommitResult{}, errors.Wrap(errors.ErrInstallCancelled, ctx.Err().Error())
	case result := <-resultCh:
		return result, nil
	}
}

// Uninstall asks the host to remove packageName and waits for the
// asynchronous result correlated by package name. A synchronous host
// failure resolves immediately.
func (s *Service) Uninstall(ctx context.Context, packageName string) (model.UninstallResult, error) {
	if !s.host.Available() {
		return model.UninstallResult{}, errors.ErrInstallerUnavailable
	}

	resultCh := s.correlator.RegisterUninstall(packageName)

	if err := s.host.Uninstall(ctx, packageName); err != nil {
		s.correlator.CancelUninstall(packageName)
		return model.UninstallResult{Success: false, Message: err.Error()}, nil
	}

	select {
	case <-ctx.Done():
		s.correlator.CancelUninstall(packageName)
		return model.UninstallResult{}, errors.Wrap(errors.ErrInstallCancelled, ctx.Err().Error())
	case result := <-resultCh:
		return result, nil
	}
}

func (s *Service) abandon(sessionID int) {
	if err := s.host.Abandon(sessionID); err != nil {
		logger.Warn("failed to abandon session", logrus.Fields{"session": sessionID, "error": err})
	}
}

// emit delivers a tick into the bounded buffer without ever blocking the
// writer. The buffer is sized so a correct stream never overflows.
func emit(out chan<- model.InstallProgress, p model.InstallProgress) {
	select {
	case out <- p:
	default:
	}
}

func emitTerminal(out chan<- model.InstallProgress, p model.InstallProgress) {
	emit(out, p)
}

func errMessage(err error) string {
	if err == nil {
		return "host returned an invalid session id"
	}
	return err.Error()
}
