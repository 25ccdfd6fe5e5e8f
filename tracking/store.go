package tracking

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current snapshot plus a bounded history window.
//
// Current is wait-free for readers: the current pointer is swapped
// atomically on publish, so a reader always sees a complete snapshot and
// never blocks a writer (or vice versa). Only the reconciliation loop calls
// Publish.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	history []*Snapshot // oldest first, excludes current
	depth   int
}

// NewStore creates a store seeded with an empty version-0 snapshot so
// Current never returns nil. depth is the number of superseded snapshots
// retained for diagnostics.
func NewStore(depth int) *Store {
	s := &Store{depth: depth}
	s.current.Store(NewEmptySnapshot(time.Now()))
	return s
}

// Current returns the latest published snapshot. Never nil, never blocks.
func (s *Store) Current() *Snapshot { return s.current.Load() }

// Publish atomically makes snap the current snapshot and retires the oldest
// history entry beyond the retention depth. Versions must advance; a
// publish that would move backwards is refused.
func (s *Store) Publish(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if snap.Version() <= prev.Version() {
		return fmt.Errorf("publish snapshot version %d: current is %d", snap.Version(), prev.Version())
	}
	s.current.Store(snap)

	if s.depth > 0 {
		s.history = append(s.history, prev)
		if len(s.history) > s.depth {
			s.history = s.history[len(s.history)-s.depth:]
		}
	}
	return nil
}

// History returns the retained superseded snapshots, oldest first.
func (s *Store) History() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Snapshot, len(s.history))
	copy(out, s.history)
	return out
}
