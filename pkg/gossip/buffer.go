package gossip

import "sync"

// Buffer is a FIFO that is only ever consumed whole.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends v to the buffer.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, v)
}

// Drain returns everything buffered so far, in arrival order, and empties
// the buffer. It never returns nil.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []T{}
	}
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Set collects distinct identities, e.g. peers that asked us to stop
// gossiping, with the same drain semantics as Buffer.
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (s *Set) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Drain returns the collected identities and resets the set.
func (s *Set) Drain() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ids
	s.ids = nil
	if out == nil {
		out = map[string]struct{}{}
	}
	return out
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
