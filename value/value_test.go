// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

import (
	"testing"
	"time"
)

func TestValueAccessors(t *testing.T) {
	if k, ok := Int(42).Int(); !ok || k != 42 {
		t.Errorf("Int accessor = %d, %v", k, ok)
	}
	if _, ok := Int(42).Str(); ok {
		t.Error("Str accessor should fail on an Int value")
	}
	if b, ok := Bool(true).Bool(); !ok || !b {
		t.Errorf("Bool accessor = %v, %v", b, ok)
	}
	if !Null().IsNull() {
		t.Error("Null().IsNull() should be true")
	}
}

func TestValueEqual(t *testing.T) {
	a := FromArray(Str("x"), Int(1))
	b := FromArray(Str("x"), Int(1))
	c := FromArray(Str("x"), Int(2))
	if !a.Equal(b) {
		t.Error("expected equal arrays to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected differing arrays to compare unequal")
	}
}

func TestBinaryValue(t *testing.T) {
	bin := NewBinaryFromBytes("text/plain", []byte("hello"), time.Unix(0, 0))
	v := FromBinary(bin)
	got, ok := v.Binary()
	if !ok || got.Size != 5 {
		t.Fatalf("Binary accessor = %+v, %v", got, ok)
	}
	rc, err := got.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	buf := make([]byte, 5)
	if _, err := rc.Read(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Errorf("content = %q", buf)
	}
}

func TestDictValueEqual(t *testing.T) {
	d1 := NewDict().Set("a", Int(1)).Set("b", Str("x"))
	d2 := NewDict().Set("b", Str("x")).Set("a", Int(1))
	if !FromDict(d1).Equal(FromDict(d2)) {
		t.Error("dicts with same entries in different order should be equal")
	}
}
