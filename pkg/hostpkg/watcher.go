package hostpkg

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

// registryWatcher surfaces out-of-band registry changes (packages added,
// replaced or removed outside the store) as package events, the role the
// host's package broadcasts play on mobile targets.
type registryWatcher struct {
	fsw    *fsnotify.Watcher
	events chan<- model.PackageEvent

	mu    sync.Mutex
	known map[string]struct{}

	done chan struct{}
}

// StartWatcher begins watching the registry for external changes. Events
// are delivered on the same stream as commit results.
func (m *DirManager) StartWatcher(ctx context.Context) error {
	if m.watcher != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create registry watcher")
	}
	if err := fsw.Add(m.registryDir); err != nil {
		_ = fsw.Close()
		return errors.Wrap(err, "failed to watch registry dir")
	}

	known, err := m.InstalledPackages(ctx)
	if err != nil {
		_ = fsw.Close()
		return err
	}

	w := &registryWatcher{
		fsw:    fsw,
		events: m.events,
		known:  known,
		done:   make(chan struct{}),
	}
	m.watcher = w
	go w.run(m)
	return nil
}

// StopWatcher stops the registry watcher.
func (m *DirManager) StopWatcher() {
	if m.watcher == nil {
		return
	}
	close(m.watcher.done)
	_ = m.watcher.fsw.Close()
	m.watcher = nil
}

func (w *registryWatcher) run(m *DirManager) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(m, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("registry watcher error", logrus.Fields{"error": err})
		}
	}
}

func (w *registryWatcher) handle(m *DirManager, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if filepath.Ext(name) != manifestSuffix || strings.HasSuffix(name, ".tmp") {
		return
	}
	pkg := name[:len(name)-len(manifestSuffix)]

	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := m.PackageInfo(context.Background(), pkg)
		if err != nil {
			// Manifest mid-write; the follow-up event will pick it up.
			return
		}
		kind := model.PackageEventAdded
		w.mu.Lock()
		if _, seen := w.known[pkg]; seen {
			kind = model.PackageEventReplaced
		}
		w.known[pkg] = struct{}{}
		w.mu.Unlock()

		w.events <- model.PackageEvent{
			Kind:        kind,
			SessionID:   -1,
			PackageName: pkg,
			Success:     true,
			VersionName: info.VersionName,
			VersionCode: info.VersionCode,
		}

	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		_, seen := w.known[pkg]
		delete(w.known, pkg)
		w.mu.Unlock()
		if !seen {
			return
		}
		w.events <- model.PackageEvent{
			Kind:        model.PackageEventRemoved,
			SessionID:   -1,
			PackageName: pkg,
			Success:     true,
		}
	}
}
