// Package install implements the session-based silent install path: a
// service that streams a package into a privileged host session, and a
// correlator that matches the host's asynchronous commit results back to
// the waiting caller exactly once.
package install

import (
	"sync"

	"github.com/rainxch/githubstore/pkg/model"
)

// CommitResult is the terminal outcome of one committed install session.
type CommitResult struct {
	Success     bool
	PackageName string
	Message     string
	VersionName string
	VersionCode int64
}

// Correlator is the process-wide registry pairing a pending install or
// uninstall with exactly one waiting caller. Entries are removed the
// instant they are resolved or cancelled; a late second delivery for the
// same key is a no-op. Session ids and package names are independent key
// spaces, so an uninstall can never collide with an install.
//
// The registry is an injected, explicitly owned instance shared by the
// submitting call and the event-delivery path; there is no package-global
// state.
type Correlator struct {
	mu         sync.Mutex
	sessions   map[int]chan CommitResult
	uninstalls map[string]chan model.UninstallResult
}

// NewCorrelator creates an empty registry.
func NewCorrelator() *Correlator {
	return &Correlator{
		sessions:   make(map[int]chan CommitResult),
		uninstalls: make(map[string]chan model.UninstallResult),
	}
}

// RegisterSession creates the completion slot for a session id. It must be
// called before the commit is submitted so the asynchronous delivery path
// can always find the slot.
func (c *Correlator) RegisterSession(sessionID int) <-chan CommitResult {
	ch := make(chan CommitResult, 1)
	c.mu.Lock()
	c.sessions[sessionID] = ch
	c.mu.Unlock()
	return ch
}

// ResolveSession delivers a terminal result to the waiter for sessionID,
// removing the slot in the same atomic step. It reports whether a waiter
// was resolved; duplicate or late deliveries return false and do nothing.
func (c *Correlator) ResolveSession(sessionID int, result CommitResult) bool {
	c.mu.Lock()
	ch, ok := c.sessions[sessionID]
	if ok {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	return true
}

// CancelSession removes the slot for sessionID without resolving it. The
// caller is responsible for abandoning the host-side session so no late
// event arrives for a gone slot.
func (c *Correlator) CancelSession(sessionID int) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// RegisterUninstall creates the completion slot for a package-name-keyed
// uninstall request.
func (c *Correlator) RegisterUninstall(packageName string) <-chan model.UninstallResult {
	ch := make(chan model.UninstallResult, 1)
	c.mu.Lock()
	c.uninstalls[packageName] = ch
	c.mu.Unlock()
	return ch
}

// ResolveUninstall delivers the uninstall outcome for packageName,
// removing the slot atomically. Duplicate deliveries are no-ops.
func (c *Correlator) ResolveUninstall(packageName string, result model.UninstallResult) bool {
	c.mu.Lock()
	ch, ok := c.uninstalls[packageName]
	if ok {
		delete(c.uninstalls, packageName)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	return true
}

// CancelUninstall removes the slot for packageName without resolving it.
func (c *Correlator) CancelUninstall(packageName string) {
	c.mu.Lock()
	delete(c.uninstalls, packageName)
	c.mu.Unlock()
}

// Pending returns how many slots are currently registered, for
// diagnostics.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions) + len(c.uninstalls)
}
