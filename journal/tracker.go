package journal

import (
	"sync"
	"time"

	"github.com/fjordsim/fjord/registry"
)

// Tracker observes the handle registry and remembers when each live
// simulation was created, so run entries carry accurate start times.
type Tracker struct {
	mu      sync.Mutex
	started map[registry.Handle]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{started: make(map[registry.Handle]time.Time)}
}

// OnHandleEvent implements registry.Observer.
func (t *Tracker) OnHandleEvent(e registry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case registry.EventCreated:
		t.started[e.Handle] = time.Now()
	case registry.EventReleased:
		delete(t.started, e.Handle)
	}
}

// StartedAt returns the creation time of a live handle.
func (t *Tracker) StartedAt(h registry.Handle) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.started[h]
	return ts, ok
}
