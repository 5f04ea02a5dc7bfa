package presence

import (
	"slices"
	"strings"
	"sync"
)

// Tracker is the ordered set of online reader ids.
//
// All methods are safe for concurrent use.
type Tracker struct {
	mu  sync.RWMutex
	ids []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnOnline marks id as online. It reports whether the set changed;
// an id already online is not added twice.
func (t *Tracker) OnOnline(id string) bool {
	id = normalise(id)
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if slices.Contains(t.ids, id) {
		return false
	}
	t.ids = append(t.ids, id)
	return true
}

// OnOffline removes id from the set. It reports whether the set changed;
// removing an unknown id is a no-op.
func (t *Tracker) OnOffline(id string) bool {
	id = normalise(id)
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.Index(t.ids, id)
	if i < 0 {
		return false
	}
	t.ids = slices.Delete(t.ids, i, i+1)
	return true
}

// Query returns a copy of the online ids in the order they came online.
func (t *Tracker) Query() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string{}, t.ids...)
}

// IsOnline reports whether id is in the set.
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.ids, normalise(id))
}

// Count returns the number of online readers.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// normalise trims whitespace that firmware sometimes appends to payloads.
func normalise(id string) string {
	return strings.TrimSpace(id)
}
