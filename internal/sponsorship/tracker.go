package sponsorship

import (
	"sync"

	"github.com/studx-dev/studx/internal/item"
)

// UsedTracker records which sponsored listings have already been surfaced
// within one ranking session, so sequential calls (category rail, then a
// related-items widget) never show the same sponsored listing twice.
//
// Lifetime is per-request: handlers call Reset at the start of each request
// lifecycle. The tracker is safe for concurrent use, but a single instance
// must not be shared across unrelated requests without resetting.
type UsedTracker struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewUsedTracker creates an empty tracker.
func NewUsedTracker() *UsedTracker {
	return &UsedTracker{
		used: make(map[string]struct{}),
	}
}

// Mark records a listing as surfaced.
func (t *UsedTracker) Mark(itemType item.Type, itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.used[usedKey(itemType, itemID)] = struct{}{}
}

// Used reports whether a listing has been surfaced this session.
func (t *UsedTracker) Used(itemType item.Type, itemID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.used[usedKey(itemType, itemID)]
	return ok
}

// Reset clears the tracker. Call at the start of each request lifecycle.
func (t *UsedTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.used = make(map[string]struct{})
}

// Len returns the number of tracked listings.
func (t *UsedTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.used)
}
