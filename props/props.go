// Package props implements the ordered string->string property
// dictionary from spec.md §4.12, with variant (JSON) round-trip
// serialisation built on the internal/json helpers.
package props

import (
	"time"

	"github.com/buger/jsonparser"

	"github.com/rtgraph/rtgraph/internal/json"
	"github.com/spf13/cast"
)

// Properties is an ordered key-value string dictionary. Iteration order
// matches insertion order; Set on an existing key updates its value in
// place without moving it. The zero value is ready to use.
type Properties struct {
	keys   []string
	values map[string]string
}

// New returns Properties pre-populated from alternating key, value
// pairs, terminated implicitly by running out of arguments (an odd
// trailing key is ignored).
func New(kv ...string) *Properties {
	p := &Properties{}
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// Copy returns a deep copy of p.
func (p *Properties) Copy() *Properties {
	cp := &Properties{keys: append([]string(nil), p.keys...)}
	if p.values != nil {
		cp.values = make(map[string]string, len(p.values))
		for k, v := range p.values {
			cp.values[k] = v
		}
	}
	return cp
}

// Set stores value under key, appending key to the iteration order if
// it is new.
func (p *Properties) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key, and whether it was present.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// GetDefault returns the value under key, or def if not present.
func (p *Properties) GetDefault(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

// GetInt coerces the value under key to an int using best-effort
// string parsing (spf13/cast), returning def on any failure.
func (p *Properties) GetInt(key string, def int) int {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// GetBool coerces the value under key to a bool, returning def on any
// failure.
func (p *Properties) GetBool(key string, def bool) bool {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// GetDuration coerces the value under key to a time.Duration, returning
// def on any failure.
func (p *Properties) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// Remove deletes key, returning true iff it was present.
func (p *Properties) Remove(key string) bool {
	if _, ok := p.values[key]; !ok {
		return false
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	return len(p.keys)
}

// Each calls fn for every key in insertion order.
func (p *Properties) Each(fn func(key, value string)) {
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

// ToVariant marshals p to a tagged JSON object, appending to dst.
func (p *Properties) ToVariant(dst []byte) []byte {
	dst = append(dst, '{')
	for i, k := range p.keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = json.Str(dst, k)
		dst = append(dst, ':')
		dst = json.Str(dst, p.values[k])
	}
	return append(dst, '}')
}

// FromVariant unmarshals a tagged JSON object produced by ToVariant into
// a fresh Properties, satisfying the round-trip law
// FromVariant(ToVariant(p)) == p.
func FromVariant(src []byte) (*Properties, error) {
	p := &Properties{}
	err := json.ObjectEach(src, func(key, val []byte) error {
		v, err := jsonparser.ParseString(val)
		if err != nil {
			return err
		}
		p.Set(string(key), v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
