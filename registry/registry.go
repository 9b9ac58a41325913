package registry

import (
	"sync"

	"github.com/fjordsim/fjord/errors"
)

// Table is the handle arena. Slots are reused through a free list and
// carry a generation counter that invalidates handles from earlier
// occupancies.
type Table struct {
	entries   []entry
	freeList  []int
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

type entry struct {
	ref   Ref
	gen   uint16
	valid bool
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 16),
		freeList: make([]int, 0, 8),
	}
}

// Insert stores an engine state reference and mints a fresh handle.
// Returns 0 if the arena is exhausted.
func (t *Table) Insert(ref Ref) Handle {
	t.mu.Lock()

	var idx int
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[idx]
		e.ref = ref
		e.valid = true
	} else {
		if len(t.entries) >= maxSlots {
			t.mu.Unlock()
			return 0
		}
		idx = len(t.entries)
		t.entries = append(t.entries, entry{ref: ref, valid: true})
	}

	h := makeHandle(idx, t.entries[idx].gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Ref: ref})
	return h
}

// Resolve returns the engine state reference for a live handle. A handle
// that was never issued yields an unknown-handle error; a handle whose
// slot has been released (and possibly reused) yields a stale-handle
// error.
func (t *Table) Resolve(h Handle) (Ref, error) {
	idx, gen, ok := splitHandle(h)
	if !ok {
		return 0, errors.UnknownHandle(int32(h))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx >= len(t.entries) {
		return 0, errors.UnknownHandle(int32(h))
	}
	e := t.entries[idx]
	if e.gen&genMask != gen&genMask {
		return 0, errors.StaleHandle(int32(h))
	}
	if !e.valid {
		return 0, errors.StaleHandle(int32(h))
	}
	return e.ref, nil
}

// Remove releases a handle and returns the engine state reference that
// was stored under it. The slot's generation advances so the released
// handle can never resolve again.
func (t *Table) Remove(h Handle) (Ref, bool) {
	idx, gen, ok := splitHandle(h)
	if !ok {
		return 0, false
	}

	t.mu.Lock()
	if idx >= len(t.entries) {
		t.mu.Unlock()
		return 0, false
	}
	e := &t.entries[idx]
	if !e.valid || e.gen&genMask != gen&genMask {
		t.mu.Unlock()
		return 0, false
	}

	ref := e.ref
	e.valid = false
	e.ref = 0
	e.gen = (e.gen + 1) & genMask
	t.freeList = append(t.freeList, idx)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Ref: ref})
	return ref, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live handles.
func (t *Table) Each(fn func(Handle, Ref) bool) {
	t.mu.Lock()
	type pair struct {
		h Handle
		r Ref
	}
	live := make([]pair, 0, len(t.entries))
	for i, e := range t.entries {
		if e.valid {
			live = append(live, pair{makeHandle(i, e.gen), e.ref})
		}
	}
	t.mu.Unlock()

	for _, p := range live {
		if !fn(p.h, p.r) {
			return
		}
	}
}

// Clear releases every live handle.
func (t *Table) Clear() {
	var handles []Handle
	t.Each(func(h Handle, _ Ref) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Subscribe adds an observer for handle lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
