// Package typemap provides a process-wide, interned string<->u32 id
// table used to name interfaces, properties and formats on the wire
// instead of repeating full type strings (spec.md §4.11). Lookups are
// lock-free in the common case; inserts of a new name are the only
// point of contention, serialised by xsync's internal striping the same
// way pipe.Pipe.KV uses an xsync.MapOf for its thread-safe KV store.
package typemap

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ID is a stable, process-lifetime-unique identifier for an interned
// type name.
type ID uint32

// Invalid is returned for names that have never been interned.
const Invalid ID = 0

// Mapper interns type names such as "PipeWire:Interface:Node" to IDs.
// The zero Mapper is not usable; use New.
type Mapper struct {
	byName *xsync.MapOf[string, ID]
	byID   *xsync.MapOf[ID, string]
	next   atomic.Uint32
}

// New returns an empty, ready-to-use Mapper.
func New() *Mapper {
	return &Mapper{
		byName: xsync.NewMapOf[string, ID](),
		byID:   xsync.NewMapOf[ID, string](),
		next:   atomic.Uint32{},
	}
}

// GetID interns name if not already known, and returns its ID. Calling
// GetID with the same name always returns the same ID within the
// process lifetime.
func (m *Mapper) GetID(name string) ID {
	if id, ok := m.byName.Load(name); ok {
		return id
	}

	id := ID(m.next.Add(1))
	actual, loaded := m.byName.LoadOrStore(name, id)
	if loaded {
		// another goroutine won the race; our id is simply unused
		return actual
	}
	m.byID.Store(id, name)
	return id
}

// GetType returns the name interned under id, and whether it was found.
func (m *Mapper) GetType(id ID) (string, bool) {
	return m.byID.Load(id)
}

// Len returns the number of interned names.
func (m *Mapper) Len() int {
	return m.byName.Size()
}
