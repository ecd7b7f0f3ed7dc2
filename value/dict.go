// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

// Dict is an ordered key to Value mapping; insertion order is preserved
// across Set and Keys/Range.
type Dict struct {
	keys []string
	vals map[string]Value
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{vals: map[string]Value{}}
}

// Set inserts or replaces key's value, preserving first-seen order.
func (d *Dict) Set(key string, v Value) *Dict {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
	return d
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.vals[key]
	return v, ok
}

// GetOr returns the value for key, or def if absent.
func (d *Dict) GetOr(key string, def Value) Value {
	if v, ok := d.vals[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.vals[key]
	return ok
}

// Delete removes key, if present.
func (d *Dict) Delete(key string) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	cp := make([]string, len(d.keys))
	copy(cp, d.keys)
	return cp
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Range calls fn for each entry in insertion order, stopping early if fn
// returns false.
func (d *Dict) Range(fn func(key string, v Value) bool) {
	for _, k := range d.keys {
		if !fn(k, d.vals[k]) {
			return
		}
	}
}

// Clone returns a copy of d whose entries can be set and deleted without
// affecting d. Nested Dict and Array values are shared, not copied.
func (d *Dict) Clone() *Dict {
	cp := NewDict()
	d.Range(func(k string, v Value) bool {
		cp.Set(k, v)
		return true
	})
	return cp
}

// Equal reports deep equality between d and other, independent of key
// insertion order.
func (d *Dict) Equal(other *Dict) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.Len() != other.Len() {
		return false
	}
	equal := true
	d.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			equal = false
			return false
		}
		return true
	})
	return equal
}
