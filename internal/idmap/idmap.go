// Package idmap provides a growable, generic ID-to-pointer map backed by
// a single slice, with an intrusive free list threaded through unused
// slots. It gives O(1) insert/remove/lookup with no per-item heap
// allocation beyond the stored value itself, and stable IDs for the
// lifetime of the mapped object.
package idmap

// Invalid is the reserved ID meaning "no object".
const Invalid uint32 = 0xFFFF_FFFF

// slot is either a live value, or (if free is set) the index of the
// next free slot. The zero value of T is never observed by the
// caller for a free slot — Lookup reports ok=false instead.
type slot[T any] struct {
	val  T
	next uint32 // valid only when free
	free bool
}

// Map is an ID -> T map with O(1) insert, remove and lookup.
// The zero Map is ready to use. Not safe for concurrent use; callers
// needing concurrency must serialize access themselves (this mirrors
// the single-owner discipline the graph and registry packages apply to
// their id maps).
type Map[T any] struct {
	slots    []slot[T]
	freeHead uint32 // Invalid if the free list is empty
	count    int
}

// New returns an empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{freeHead: Invalid}
}

// Len returns the number of live entries.
func (m *Map[T]) Len() int {
	return m.count
}

// Insert stores val under a fresh ID, reusing a released slot if one is
// available, and returns that ID.
func (m *Map[T]) Insert(val T) uint32 {
	if len(m.slots) == 0 {
		m.freeHead = Invalid // a zero Map starts with freeHead 0
	}
	m.count++

	if m.freeHead != Invalid {
		id := m.freeHead
		s := &m.slots[id]
		m.freeHead = s.next
		s.val = val
		s.free = false
		return id
	}

	id := uint32(len(m.slots))
	m.slots = append(m.slots, slot[T]{val: val})
	return id
}

// Lookup returns the value stored under id, and whether it is present.
func (m *Map[T]) Lookup(id uint32) (val T, ok bool) {
	if id == Invalid || int(id) >= len(m.slots) {
		return val, false
	}
	s := &m.slots[id]
	if s.free {
		return val, false
	}
	return s.val, true
}

// Has returns true iff id is currently a live entry.
func (m *Map[T]) Has(id uint32) bool {
	_, ok := m.Lookup(id)
	return ok
}

// Remove releases id, pushing it onto the free list for reuse by a
// later Insert. Removing an already-free or out-of-range id is a no-op.
func (m *Map[T]) Remove(id uint32) {
	if id == Invalid || int(id) >= len(m.slots) {
		return
	}
	s := &m.slots[id]
	if s.free {
		return
	}

	var zero T
	s.val = zero
	s.free = true
	s.next = m.freeHead
	m.freeHead = id
	m.count--
}

// Each calls fn for every live entry, in ascending ID order.
// fn must not Insert or Remove while iterating.
func (m *Map[T]) Each(fn func(id uint32, val T)) {
	for i := range m.slots {
		if !m.slots[i].free {
			fn(uint32(i), m.slots[i].val)
		}
	}
}
