package bridge

import (
	"sort"
	"sync"
)

// Subscriptions is the set of pawn IDs that should emit periodic snapshots.
// It has its own lock, separate from the mailbox.
type Subscriptions struct {
	mu      sync.Mutex
	ids     map[int]struct{}
	metrics MetricsRecorder
}

// NewSubscriptions constructs an empty subscription set.
func NewSubscriptions(metrics MetricsRecorder) *Subscriptions {
	return &Subscriptions{
		ids:     make(map[int]struct{}),
		metrics: metricsOrNoop(metrics),
	}
}

// Add subscribes id and reports whether it was newly added.
func (s *Subscriptions) Add(id int) bool {
	s.mu.Lock()
	_, exists := s.ids[id]
	s.ids[id] = struct{}{}
	n := len(s.ids)
	s.mu.Unlock()

	s.metrics.SetSubscriptions(n)
	return !exists
}

// Contains reports whether id is subscribed.
func (s *Subscriptions) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Remove unsubscribes id and reports whether it was present.
func (s *Subscriptions) Remove(id int) bool {
	s.mu.Lock()
	_, ok := s.ids[id]
	delete(s.ids, id)
	n := len(s.ids)
	s.mu.Unlock()

	if ok {
		s.metrics.SetSubscriptions(n)
	}
	return ok
}

// Len reports the number of subscribed pawns.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the subscribed pawn IDs in ascending order.
func (s *Subscriptions) IDs() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Ints(ids)
	return ids
}
