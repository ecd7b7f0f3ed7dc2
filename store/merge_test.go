// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/rapidcontext/substrate/value"
)

func dictOf(t *testing.T, v value.Value) *value.Dict {
	t.Helper()
	d, ok := v.Dict()
	if !ok {
		t.Fatalf("expected dict value, got %v", v.Kind())
	}
	return d
}

func TestMergeIndexesUnionsPreservingPriorityOrder(t *testing.T) {
	high := dictOf(t, NewIndex(nil, []string{"guest"}))
	low := dictOf(t, NewIndex(nil, []string{"admin", "guest"}))

	merged := MergeIndexes([]*value.Dict{high, low})
	objs := IndexNames(merged, ObjectsKey)
	want := []string{"guest", "admin"}
	if len(objs) != len(want) {
		t.Fatalf("objects = %v, want %v", objs, want)
	}
	for i := range want {
		if objs[i] != want[i] {
			t.Errorf("objects[%d] = %q, want %q", i, objs[i], want[i])
		}
	}
}

func TestMergeIndexesNoDuplicates(t *testing.T) {
	a := dictOf(t, NewIndex([]string{"sub"}, nil))
	b := dictOf(t, NewIndex([]string{"sub"}, nil))
	merged := MergeIndexes([]*value.Dict{a, b})
	if got := IndexNames(merged, DirectoriesKey); len(got) != 1 {
		t.Fatalf("directories = %v, want 1 entry", got)
	}
}
