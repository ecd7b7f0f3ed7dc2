// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package memory

import (
	"context"
	"testing"

	"github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New("mem")
	p := path.Parse("/role/admin")
	v := value.FromDict(value.NewDict().Set("id", value.Str("admin")))

	if err := s.Store(ctx, p, v); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Load(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected value to be found")
	}
	if !got.Equal(v) {
		t.Errorf("Load() = %v, want %v", got, v)
	}
}

func TestLookupMissingReturnsNilNil(t *testing.T) {
	s := New("mem")
	md, err := s.Lookup(context.Background(), path.Parse("/nope"))
	if err != nil {
		t.Fatal(err)
	}
	if md != nil {
		t.Errorf("Lookup() = %+v, want nil", md)
	}
}

func TestIndexListing(t *testing.T) {
	ctx := context.Background()
	s := New("mem")
	must(t, s.Store(ctx, path.Parse("/role/admin"), value.Int(1)))
	must(t, s.Store(ctx, path.Parse("/role/guest"), value.Int(2)))

	v, ok, err := s.Load(ctx, path.Parse("/role/"))
	if err != nil || !ok {
		t.Fatalf("Load(/role/) ok=%v err=%v", ok, err)
	}
	d, _ := v.Dict()
	objs := store.IndexNames(d, store.ObjectsKey)
	if len(objs) != 2 || objs[0] != "admin" || objs[1] != "guest" {
		t.Errorf("objects = %v, want [admin guest]", objs)
	}
}

func TestRemoveRecursive(t *testing.T) {
	ctx := context.Background()
	s := New("mem")
	must(t, s.Store(ctx, path.Parse("/a/b"), value.Int(1)))
	must(t, s.Remove(ctx, path.Parse("/a/")))
	_, ok, _ := s.Load(ctx, path.Parse("/a/b"))
	if ok {
		t.Error("expected /a/b to be removed along with /a/")
	}
}

func TestLoadAllDepthFirstSorted(t *testing.T) {
	ctx := context.Background()
	s := New("mem")
	must(t, s.Store(ctx, path.Parse("/b"), value.Int(2)))
	must(t, s.Store(ctx, path.Parse("/a"), value.Int(1)))

	var seen []string
	for p, v := range s.LoadAll(ctx, path.Root()) {
		if p.IsIndex() {
			continue
		}
		i, _ := v.Int()
		seen = append(seen, p.Name())
		_ = i
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("LoadAll order = %v, want [a b]", seen)
	}
}

func TestBasicMountPriorityScenario(t *testing.T) {
	// Mirrors spec §8 scenario 1, exercised directly against two
	// MemoryStores without RootStorage to pin down write/overwrite
	// semantics the overlay layer builds on.
	ctx := context.Background()
	a := New("a")
	bStore := New("b")

	must(t, a.Store(ctx, path.Parse("/x"), value.Int(1)))
	must(t, bStore.Store(ctx, path.Parse("/x"), value.Int(2)))

	v, _, _ := bStore.Load(ctx, path.Parse("/x"))
	if i, _ := v.Int(); i != 2 {
		t.Fatalf("b./x = %v, want 2", v)
	}
	must(t, bStore.Remove(ctx, path.Parse("/x")))
	v, ok, _ := a.Load(ctx, path.Parse("/x"))
	if !ok {
		t.Fatal("a./x should remain after b./x is removed")
	}
	if i, _ := v.Int(); i != 1 {
		t.Fatalf("a./x = %v, want 1", v)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
