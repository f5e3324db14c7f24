// Package ratelimit tracks remote API quota state observed on responses
// and gates the scheduler and UI while the quota is exhausted.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Quota headers as sent by the GitHub API.
const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
	headerResource  = "X-RateLimit-Resource"
)

// Info is the last-known quota state for one resource class.
type Info struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Resource  string
}

// Exhausted reports whether the quota has no calls left.
func (i Info) Exhausted() bool { return i.Remaining == 0 }

// TimeUntilReset returns the remaining wait, clamped to zero once the
// reset instant has passed.
func (i Info) TimeUntilReset(now time.Time) time.Duration {
	d := i.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// InfoFromHeaders parses the quota headers from a response. It returns
// false when any required header is absent, which callers treat as "no
// update", not an error.
func InfoFromHeaders(h http.Header) (Info, bool) {
	limit, err := strconv.Atoi(h.Get(headerLimit))
	if err != nil {
		return Info{}, false
	}
	remaining, err := strconv.Atoi(h.Get(headerRemaining))
	if err != nil {
		return Info{}, false
	}
	resetEpoch, err := strconv.ParseInt(h.Get(headerReset), 10, 64)
	if err != nil {
		return Info{}, false
	}
	resource := h.Get(headerResource)
	if resource == "" {
		resource = "core"
	}
	return Info{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(resetEpoch, 0),
		Resource:  resource,
	}, true
}

// Guard holds shared, read-mostly rate limit state. The state is replaced
// wholesale on every observed response; readers never see a partial
// update.
type Guard struct {
	mu   sync.RWMutex
	last *Info
	now  func() time.Time
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// ObserveHeaders records the quota state carried by a response, if any.
func (g *Guard) ObserveHeaders(h http.Header) {
	info, ok := InfoFromHeaders(h)
	if !ok {
		return
	}
	g.mu.Lock()
	g.last = &info
	g.mu.Unlock()

	if info.Exhausted() {
		logger.Warn("api quota exhausted", logrus.Fields{
			"resource": info.Resource,
			"reset":    info.Reset,
		})
	}
}

// OnAuthenticated clears any recorded exhaustion. A fresh credential may
// have a separate quota, so the guard turns optimistic until the next
// observed response says otherwise.
func (g *Guard) OnAuthenticated() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}

// Current returns the last observed quota state.
func (g *Guard) Current() (Info, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.last == nil {
		return Info{}, false
	}
	return *g.last, true
}

// IsCurrentlyLimited reports whether the quota is exhausted and the reset
// instant has not yet passed. It flips back to false by the passage of
// time alone, without a new header observation.
func (g *Guard) IsCurrentlyLimited() bool {
	info, ok := g.Current()
	if !ok || !info.Exhausted() {
		return false
	}
	return info.TimeUntilReset(g.now()) > 0
}

// TimeUntilReset returns how long the caller should wait before retrying.
func (g *Guard) TimeUntilReset() time.Duration {
	info, ok := g.Current()
	if !ok {
		return 0
	}
	return info.TimeUntilReset(g.now())
}
