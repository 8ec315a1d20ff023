package idmap

import "testing"

func TestInsertLookupRemove(t *testing.T) {
	m := New[string]()

	a := m.Insert("A")
	b := m.Insert("B")
	c := m.Insert("C")

	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("got ids %d %d %d, want 0 1 2", a, b, c)
	}

	m.Remove(b)
	if m.Has(b) {
		t.Fatalf("id %d should not be live after Remove", b)
	}

	d := m.Insert("D")
	if d != b {
		t.Fatalf("insert after remove: got id %d, want reused id %d", d, b)
	}

	if v, ok := m.Lookup(d); !ok || v != "D" {
		t.Fatalf("lookup(%d) = %q, %v; want D, true", d, v, ok)
	}
	if v, ok := m.Lookup(a); !ok || v != "A" {
		t.Fatalf("lookup(%d) = %q, %v; want A, true", a, v, ok)
	}
	if v, ok := m.Lookup(c); !ok || v != "C" {
		t.Fatalf("lookup(%d) = %q, %v; want C, true", c, v, ok)
	}
}

func TestLookupInvalidAndOutOfRange(t *testing.T) {
	m := New[int]()
	m.Insert(1)

	if _, ok := m.Lookup(Invalid); ok {
		t.Fatal("Lookup(Invalid) should never be ok")
	}
	if _, ok := m.Lookup(99); ok {
		t.Fatal("Lookup of an out-of-range id should not be ok")
	}
}

func TestEachSkipsFree(t *testing.T) {
	m := New[int]()
	ids := make([]uint32, 5)
	for i := range ids {
		ids[i] = m.Insert(i)
	}
	m.Remove(ids[1])
	m.Remove(ids[3])

	seen := map[uint32]int{}
	m.Each(func(id uint32, val int) {
		seen[id] = val
	})

	if len(seen) != 3 {
		t.Fatalf("Each visited %d entries, want 3", len(seen))
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestRemoveIdempotent(t *testing.T) {
	m := New[int]()
	id := m.Insert(42)
	m.Remove(id)
	m.Remove(id) // no panic, no double-decrement
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}
