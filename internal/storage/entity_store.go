package storage

import "slices"

// EntityStore is a keyed container that remembers insertion order.
// Values() and Find() walk entities in the order they were first stored,
// which gives callers a stable tiebreak when sorting.
//
// EntityStore is not safe for concurrent use. Registries guard it with
// their own lock.
type EntityStore[T any] struct {
	items map[string]T
	order []string
}

// NewEntityStore creates an empty store.
func NewEntityStore[T any]() *EntityStore[T] {
	return &EntityStore[T]{items: make(map[string]T)}
}

// Get returns the entity stored under id.
func (s *EntityStore[T]) Get(id string) (T, bool) {
	v, ok := s.items[id]
	return v, ok
}

// Has reports whether id is present.
func (s *EntityStore[T]) Has(id string) bool {
	_, ok := s.items[id]
	return ok
}

// Put inserts or replaces the entity under id. Replacing keeps the
// original insertion position.
func (s *EntityStore[T]) Put(id string, v T) {
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = v
}

// Delete removes id and reports whether it was present.
func (s *EntityStore[T]) Delete(id string) bool {
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// DeleteFunc removes every entity for which match returns true and returns
// how many were removed.
func (s *EntityStore[T]) DeleteFunc(match func(T) bool) int {
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		if match(s.items[id]) {
			delete(s.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	clear(s.order[len(kept):])
	s.order = kept
	return removed
}

// Len returns the number of stored entities.
func (s *EntityStore[T]) Len() int {
	return len(s.items)
}

// Keys returns ids in insertion order.
func (s *EntityStore[T]) Keys() []string {
	return slices.Clone(s.order)
}

// Values returns entities in insertion order.
func (s *EntityStore[T]) Values() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Filter returns, in insertion order, the entities for which match returns true.
func (s *EntityStore[T]) Filter(match func(T) bool) []T {
	var out []T
	for _, id := range s.order {
		if v := s.items[id]; match(v) {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the first entity, in insertion order, for which match returns true.
func (s *EntityStore[T]) Find(match func(T) bool) (T, bool) {
	for _, id := range s.order {
		if v := s.items[id]; match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
