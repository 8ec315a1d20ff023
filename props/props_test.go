package props

import (
	"testing"
	"time"
)

func TestSetGetOrderPreserved(t *testing.T) {
	p := New("a", "1", "b", "2")
	p.Set("c", "3")
	p.Set("a", "10") // update in place, must not move

	var keys []string
	p.Each(func(k, v string) { keys = append(keys, k) })
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("iteration order = %v, want [a b c]", keys)
	}

	if v, ok := p.Get("a"); !ok || v != "10" {
		t.Fatalf("Get(a) = %q, %v; want 10, true", v, ok)
	}
}

func TestRemove(t *testing.T) {
	p := New(KeyNodeName, "sink", KeyMediaType, "Audio")
	if !p.Remove(KeyNodeName) {
		t.Fatal("Remove should report true for an existing key")
	}
	if _, ok := p.Get(KeyNodeName); ok {
		t.Fatal("removed key should not be present")
	}
	if p.Remove(KeyNodeName) {
		t.Fatal("Remove should report false for an absent key")
	}
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
}

func TestTypedGetters(t *testing.T) {
	p := New("node.latency.offset", "42", "node.driver", "true", "node.suspend.timeout", "3s")

	if got := p.GetInt("node.latency.offset", -1); got != 42 {
		t.Fatalf("GetInt = %d, want 42", got)
	}
	if got := p.GetInt("missing", -1); got != -1 {
		t.Fatalf("GetInt default = %d, want -1", got)
	}
	if got := p.GetBool("node.driver", false); !got {
		t.Fatal("GetBool = false, want true")
	}
	if got := p.GetDuration("node.suspend.timeout", 0); got != 3*time.Second {
		t.Fatalf("GetDuration = %v, want 3s", got)
	}
}

// properties_from_variant(properties_to_variant(p)) == p
func TestVariantRoundTrip(t *testing.T) {
	p := New(KeyMediaType, "Audio", KeyNodeName, "my-sink", "tricky", `has "quotes" and \slashes\`)

	variant := p.ToVariant(nil)
	back, err := FromVariant(variant)
	if err != nil {
		t.Fatalf("FromVariant: %v", err)
	}

	if back.Len() != p.Len() {
		t.Fatalf("Len mismatch: got %d, want %d", back.Len(), p.Len())
	}

	p.Each(func(k, v string) {
		got, ok := back.Get(k)
		if !ok || got != v {
			t.Fatalf("round-trip mismatch for %q: got %q, %v; want %q", k, got, ok, v)
		}
	})
}

func TestCopyIsIndependent(t *testing.T) {
	p := New("a", "1")
	cp := p.Copy()
	cp.Set("a", "2")
	cp.Set("b", "3")

	if v, _ := p.Get("a"); v != "1" {
		t.Fatalf("original mutated: Get(a) = %q, want 1", v)
	}
	if _, ok := p.Get("b"); ok {
		t.Fatal("original should not see keys added to the copy")
	}
}
