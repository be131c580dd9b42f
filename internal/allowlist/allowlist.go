// Package allowlist holds fingerprints exempted from repost detection.
package allowlist

import (
	"sync"

	"repost_bot/internal/fingerprint"
)

// List is an unbounded, append-only set of fingerprints. It lives for the
// lifetime of the process and is safe for concurrent use.
type List struct {
	mu  sync.RWMutex
	fps map[fingerprint.Fingerprint]struct{}
}

// New creates an empty List.
func New() *List {
	return &List{fps: make(map[fingerprint.Fingerprint]struct{})}
}

// Allow adds fp to the list. It reports whether fp was newly added; adding
// a fingerprint twice is a no-op.
func (l *List) Allow(fp fingerprint.Fingerprint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.fps[fp]; ok {
		return false
	}
	l.fps[fp] = struct{}{}
	return true
}

// Contains reports whether fp is allow-listed.
func (l *List) Contains(fp fingerprint.Fingerprint) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.fps[fp]
	return ok
}

// Len returns the number of allow-listed fingerprints.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fps)
}
