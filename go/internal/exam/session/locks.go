package session

import (
	"sync"

	"github.com/google/uuid"
)

// keyedLocks serializes all mutations of one session: start, submit,
// violation recording, and the expiry sweep all pass through here, so a
// threshold check-and-increment or a submit/sweep race resolves to a
// total order per session. Entries are refcounted and removed when idle
// to keep the map from growing with every session ever touched.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		entries: make(map[uuid.UUID]*lockEntry),
	}
}

// acquire blocks until the per-session lock is held and returns the
// release func.
func (l *keyedLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
