package ordered

// Set is an ordered set. Iteration follows the order in which the
// elements have been added; re-adding an element keeps its position.
type Set[K comparable] struct {
	keys []K
	in   map[K]bool
}

// NewSet returns a new ordered set holding the given elements.
func NewSet[K comparable](ks ...K) *Set[K] {
	s := &Set[K]{in: make(map[K]bool)}
	for _, k := range ks {
		s.Insert(k)
	}
	return s
}

// Insert adds an element to the set.
// It returns false if the element was already present.
func (s *Set[K]) Insert(k K) bool {
	if s.in[k] {
		return false
	}
	s.in[k] = true
	s.keys = append(s.keys, k)
	return true
}

// Has returns true if the element is in the set.
func (s *Set[K]) Has(k K) bool {
	return s.in[k]
}

// PopLast removes and returns the most recently added element.
// It returns false if the set is empty.
func (s *Set[K]) PopLast() (K, bool) {
	if len(s.keys) == 0 {
		var zero K
		return zero, false
	}
	last := s.keys[len(s.keys)-1]
	s.keys = s.keys[:len(s.keys)-1]
	delete(s.in, last)
	return last, true
}

// Iter returns an iterator to range over the elements of the set.
func (s *Set[K]) Iter() func(func(K) bool) {
	return func(yield func(K) bool) {
		for _, k := range s.keys {
			if !yield(k) {
				break
			}
		}
	}
}

// Size returns the number of elements in the set.
func (s *Set[K]) Size() int {
	return len(s.keys)
}
