package hostpkg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rainxch/githubstore/pkg/asset"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/fsutil"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	manifestSuffix = ".json"
	payloadSuffix  = ".pkg"
	sessionDirName = ".sessions"

	// eventBuffer bounds the event queue between the host and the
	// receiver. Sends block once it fills; the receiver always drains.
	eventBuffer = 32
)

// manifest is the on-disk record of one installed package in the registry.
type manifest struct {
	PackageName string    `json:"package_name"`
	AppName     string    `json:"app_name,omitempty"`
	VersionName string    `json:"version_name"`
	VersionCode int64     `json:"version_code"`
	InstalledAt time.Time `json:"installed_at"`
}

type session struct {
	id         int
	stagedPath string
	file       *os.File
}

// DirManager implements Manager against a registry directory: each
// installed package is a manifest file plus its payload. Commits apply
// asynchronously and report back on the event stream, mirroring the
// session/commit/broadcast shape of a real host installer. Desktop targets
// use this as their package manager; tests use it as a faithful host.
type DirManager struct {
	registryDir string

	mu       sync.Mutex
	nextID   int
	sessions map[int]*session

	events  chan model.PackageEvent
	watcher *registryWatcher
}

var _ Manager = (*DirManager)(nil)

// NewDirManager creates a directory-registry package manager rooted at
// registryDir.
func NewDirManager(registryDir string) (*DirManager, error) {
	if registryDir == "" || !filepath.IsAbs(registryDir) {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "registry dir must be absolute: %s", registryDir)
	}
	if err := fsutil.EnsureDir(registryDir); err != nil {
		return nil, errors.Wrap(err, "could not create registry dir")
	}
	if err := fsutil.EnsureDir(filepath.Join(registryDir, sessionDirName)); err != nil {
		return nil, errors.Wrap(err, "could not create session dir")
	}
	return &DirManager{
		registryDir: registryDir,
		sessions:    make(map[int]*session),
		events:      make(chan model.PackageEvent, eventBuffer),
	}, nil
}

// Available reports whether the registry is usable. The directory variant
// is privileged by construction: no interactive prompt guards it.
func (m *DirManager) Available() bool {
	st, err := os.Stat(m.registryDir)
	return err == nil && st.IsDir()
}

// CreateSession opens a new staged install session.
func (m *DirManager) CreateSession(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	stagedPath := filepath.Join(m.registryDir, sessionDirName, strconv.Itoa(id)+".staged")
	m.sessions[id] = &session{id: id, stagedPath: stagedPath}
	logger.Debug("created install session", logrus.Fields{"session": id})
	return id, nil
}

// OpenWrite returns a writer onto the session's staging file.
func (m *DirManager) OpenWrite(sessionID int, _ string, _ int64) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %d", sessionID)
	}
	f, err := os.OpenFile(s.stagedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSessionWrite, err.Error())
	}
	s.file = f
	return f, nil
}

// Commit submits the staged session. The apply step runs on its own
// goroutine and reports the terminal outcome as a commit event carrying
// the same session id.
func (m *DirManager) Commit(ctx context.Context, sessionID int) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return errors.Wrapf(errors.ErrSessionNotFound, "session %d", sessionID)
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	if !fsutil.Exists(s.stagedPath) {
		return errors.Wrapf(errors.ErrSessionCommit, "session %d has no staged data", sessionID)
	}

	go m.apply(ctx, s)
	return nil
}

func (m *DirManager) apply(ctx context.Context, s *session) {
	meta, err := asset.ReadMetadata(ctx, s.stagedPath)
	if err != nil {
		_ = os.Remove(s.stagedPath)
		m.events <- model.PackageEvent{
			Kind:      model.PackageEventCommit,
			SessionID: s.id,
			Success:   false,
			Message:   err.Error(),
		}
		return
	}

	replaced := fsutil.Exists(m.manifestPath(meta.PackageName))

	if err := m.installStaged(s.stagedPath, meta); err != nil {
		m.events <- model.PackageEvent{
			Kind:        model.PackageEventCommit,
			SessionID:   s.id,
			PackageName: meta.PackageName,
			Success:     false,
			Message:     err.Error(),
		}
		return
	}

	logger.Debug("session applied", logrus.Fields{"session": s.id, "package": meta.PackageName})
	m.events <- model.PackageEvent{
		Kind:        model.PackageEventCommit,
		SessionID:   s.id,
		PackageName: meta.PackageName,
		Success:     true,
		VersionName: meta.VersionName,
		VersionCode: meta.VersionCode,
	}

	kind := model.PackageEventAdded
	if replaced {
		kind = model.PackageEventReplaced
	}
	m.events <- model.PackageEvent{
		Kind:        kind,
		SessionID:   -1,
		PackageName: meta.PackageName,
		Success:     true,
		VersionName: meta.VersionName,
		VersionCode: meta.VersionCode,
	}
}

func (m *DirManager) installStaged(stagedPath string, meta *asset.Metadata) error {
	if err := fsutil.Move(stagedPath, m.payloadPath(meta.PackageName)); err != nil {
		return errors.Wrap(errors.ErrSessionCommit, err.Error())
	}
	man := manifest{
		PackageName: meta.PackageName,
		AppName:     meta.AppName,
		VersionName: meta.VersionName,
		VersionCode: meta.VersionCode,
		InstalledAt: time.Now(),
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrSessionCommit, err.Error())
	}
	tmpPath := m.manifestPath(meta.PackageName) + ".tmp"
	if err := os.WriteFile(tmpPath, data, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrSessionCommit, err.Error())
	}
	if err := os.Rename(tmpPath, m.manifestPath(meta.PackageName)); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrSessionCommit, err.Error())
	}
	return nil
}

// Abandon discards a session and its staged data. Abandoning an unknown
// session is a no-op so cancellation paths can call it unconditionally.
func (m *DirManager) Abandon(sessionID int) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	if err := os.Remove(s.stagedPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove staged data")
	}
	logger.Debug("abandoned install session", logrus.Fields{"session": sessionID})
	return nil
}

// Uninstall removes a package asynchronously and reports the outcome as an
// uninstall event keyed by package name.
func (m *DirManager) Uninstall(_ context.Context, packageName string) error {
	if packageName == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if !fsutil.Exists(m.manifestPath(packageName)) {
		return errors.Wrapf(errors.ErrPackageNotFound, "package %s", packageName)
	}

	go func() {
		err := os.Remove(m.manifestPath(packageName))
		if err == nil {
			_ = os.Remove(m.payloadPath(packageName))
		}
		if err != nil {
			m.events <- model.PackageEvent{
				Kind:        model.PackageEventUninstall,
				SessionID:   -1,
				PackageName: packageName,
				Success:     false,
				Message:     err.Error(),
			}
			return
		}
		m.events <- model.PackageEvent{
			Kind:        model.PackageEventUninstall,
			SessionID:   -1,
			PackageName: packageName,
			Success:     true,
			Message:     "uninstalled successfully",
		}
		m.events <- model.PackageEvent{
			Kind:        model.PackageEventRemoved,
			SessionID:   -1,
			PackageName: packageName,
			Success:     true,
		}
	}()
	return nil
}

// InstalledPackages returns the names of every package in the registry.
func (m *DirManager) InstalledPackages(_ context.Context) (map[string]struct{}, error) {
	entries, err := os.ReadDir(m.registryDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registry")
	}
	installed := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != manifestSuffix {
			continue
		}
		installed[e.Name()[:len(e.Name())-len(manifestSuffix)]] = struct{}{}
	}
	return installed, nil
}

// PackageInfo reads the registry manifest for one package.
func (m *DirManager) PackageInfo(_ context.Context, packageName string) (*model.SystemPackageInfo, error) {
	data, err := os.ReadFile(m.manifestPath(packageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrPackageNotFound, "package %s", packageName)
		}
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest")
	}
	return &model.SystemPackageInfo{
		PackageName: man.PackageName,
		VersionName: man.VersionName,
		VersionCode: man.VersionCode,
	}, nil
}

// Events returns the asynchronous delivery stream.
func (m *DirManager) Events() <-chan model.PackageEvent {
	return m.events
}

func (m *DirManager) manifestPath(packageName string) string {
	return filepath.Join(m.registryDir, packageName+manifestSuffix)
}

func (m *DirManager) payloadPath(packageName string) string {
	return filepath.Join(m.registryDir, packageName+payloadSuffix)
}
