// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package value implements the tagged-variant document model stored and
// retrieved through the substrate: Null, Bool, Int, Float, Str, Binary,
// Array, Dict and StorableObject.
package value

import "fmt"

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBinary
	KindArray
	KindDict
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// StorableObject is a Go value that knows how to serialize itself into
// the Value model for storage.
type StorableObject interface {
	Store() Value
}

// Value is a tagged union over the variants the substrate understands.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bin  *Binary
	arr  []Value
	dict *Dict
	obj  StorableObject
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Str returns a string Value.
func Str(s string) Value { return Value{kind: KindStr, s: s} }

// FromBinary returns a Value wrapping a Binary blob.
func FromBinary(b *Binary) Value { return Value{kind: KindBinary, bin: b} }

// FromArray returns a Value wrapping an ordered sequence of Values.
func FromArray(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// FromDict returns a Value wrapping a Dict.
func FromDict(d *Dict) Value { return Value{kind: KindDict, dict: d} }

// FromObject returns a Value wrapping a StorableObject.
func FromObject(o StorableObject) Value { return Value{kind: KindObject, obj: o} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns v's boolean payload and whether v held KindBool.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Int returns v's integer payload and whether v held KindInt.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns v's float payload and whether v held KindFloat.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// Str returns v's string payload and whether v held KindStr.
func (v Value) Str() (string, bool) {
	if v.kind != KindStr {
		return "", false
	}
	return v.s, true
}

// Binary returns v's Binary payload and whether v held KindBinary.
func (v Value) Binary() (*Binary, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	return v.bin, true
}

// Array returns v's Array payload and whether v held KindArray.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Dict returns v's Dict payload and whether v held KindDict.
func (v Value) Dict() (*Dict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Object returns v's StorableObject payload and whether v held KindObject.
func (v Value) Object() (StorableObject, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Equal reports deep equality between v and other.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindStr:
		return v.s == other.s
	case KindBinary:
		return v.bin.Equal(other.bin)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dict.Equal(other.dict)
	case KindObject:
		return v.obj.Store().Equal(other.obj.Store())
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindStr:
		return v.s
	case KindBinary:
		return fmt.Sprintf("binary(%s, %d bytes)", v.bin.MimeType, v.bin.Size)
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindDict:
		return fmt.Sprintf("dict(%d)", v.dict.Len())
	case KindObject:
		return fmt.Sprintf("object(%T)", v.obj)
	default:
		return "?"
	}
}
