// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

// FromGeneric converts a Go interface{} tree, as produced by
// encoding/json, yaml.v3 or xml2map unmarshaling, into a Value. Maps
// become Dict with their string keys inserted in sorted order, since a Go
// map carries no order of its own; slices become Array; scalars map
// directly.
func FromGeneric(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return Str(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		if float64(int64(t)) == t {
			return Int(int64(t))
		}
		return Float(t)
	case float32:
		return Float(float64(t))
	case map[string]interface{}:
		d := NewDict()
		for _, k := range sortedKeys(t) {
			d.Set(k, FromGeneric(t[k]))
		}
		return FromDict(d)
	case map[interface{}]interface{}:
		d := NewDict()
		m := map[string]interface{}{}
		for k, v := range t {
			if ks, ok := k.(string); ok {
				m[ks] = v
			}
		}
		for _, k := range sortedKeys(m) {
			d.Set(k, FromGeneric(m[k]))
		}
		return FromDict(d)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromGeneric(item)
		}
		return FromArray(items...)
	default:
		return Str(jsonFallback(t))
	}
}

// ToGeneric converts a Value back into a plain Go interface{} tree
// suitable for encoding/json or yaml.v3 marshaling.
func ToGeneric(v Value) interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		b, _ := v.Bool()
		return b
	case KindInt:
		i, _ := v.Int()
		return i
	case KindFloat:
		f, _ := v.Float()
		return f
	case KindStr:
		s, _ := v.Str()
		return s
	case KindArray:
		arr, _ := v.Array()
		out := make([]interface{}, len(arr))
		for i, item := range arr {
			out[i] = ToGeneric(item)
		}
		return out
	case KindDict:
		d, _ := v.Dict()
		out := map[string]interface{}{}
		d.Range(func(k string, val Value) bool {
			out[k] = ToGeneric(val)
			return true
		})
		return out
	case KindObject:
		obj, _ := v.Object()
		return ToGeneric(obj.Store())
	case KindBinary:
		bin, _ := v.Binary()
		return bin.SHA256
	default:
		return nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// simple insertion sort: map counts here are small (config/document
	// sized), and avoids importing sort for a one-line helper used only
	// during generic conversion.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func jsonFallback(x interface{}) string {
	type stringer interface{ String() string }
	if s, ok := x.(stringer); ok {
		return s.String()
	}
	return ""
}
