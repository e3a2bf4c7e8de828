// Package cfgresolve implements the conditional-configuration flattening
// and merge engine described in spec.md §4.2.
package cfgresolve

// Value is the dynamic type stored in a Map: a scalar (string, bool, int,
// float64), a []Value sequence, or a nested *Map.
type Value interface{}

// Map is an order-preserving string-keyed tree, used for both raw (with
// conditional keys) and resolved (flattened) target configuration. Key
// order is preserved from the source YAML document so that flattening and
// merging have a deterministic, document-order-derived iteration sequence.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set stores value under key, appending key to the order if new.
func (m *Map) Set(key string, value Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key from the map.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in document order.
func (m *Map) Keys() []string {
	return m.keys
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// Clone deep-copies the map, including nested Maps and slices.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.values[k]))
	}
	return out
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case *Map:
		return t.Clone()
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// GetString returns key's value as a string, if it is a string.
func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns key's value as a bool, defaulting to def if absent or
// not a bool.
func (m *Map) GetBool(key string, def bool) bool {
	v, ok := m.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// GetMap returns key's value as a *Map, if it is one.
func (m *Map) GetMap(key string) (*Map, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Map)
	return sub, ok
}

// GetSequence returns key's value as a []Value, if it is one.
func (m *Map) GetSequence(key string) ([]Value, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	seq, ok := v.([]Value)
	return seq, ok
}

// singleKeyMap builds a one-entry Map, used internally when folding a
// scalar or sequence key back through Merge.
func singleKeyMap(key string, value Value) *Map {
	m := NewMap()
	m.Set(key, value)
	return m
}
