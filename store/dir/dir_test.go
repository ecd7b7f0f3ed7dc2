// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package dir

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New("test", root, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, root
}

func TestStoreAndLoadJSON(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	d := value.NewDict().Set("id", value.Str("demo"))

	if err := s.Store(ctx, fspath.Parse("/config"), value.FromDict(d)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Load(ctx, fspath.Parse("/config"))
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	loaded, _ := v.Dict()
	id, _ := loaded.GetOr("id", value.Null()).Str()
	if id != "demo" {
		t.Errorf("id = %q, want demo", id)
	}
}

func TestLoadPicksExistingExtension(t *testing.T) {
	s, root := newTestStore(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte("id: fromyaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.Load(ctx, fspath.Parse("/config"))
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	d, _ := v.Dict()
	id, _ := d.GetOr("id", value.Null()).Str()
	if id != "fromyaml" {
		t.Errorf("id = %q, want fromyaml", id)
	}

	// Store should reuse the discovered extension rather than defaulting
	// to .json.
	if err := s.Store(ctx, fspath.Parse("/config"), value.FromDict(value.NewDict().Set("id", value.Str("updated")))); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "config.yaml")); err != nil {
		t.Errorf("expected config.yaml to still exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "config.json")); err == nil {
		t.Errorf("did not expect a config.json to be created")
	}
}

func TestBinaryStoreAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	payload := []byte("binary-content")
	bin := value.NewBinaryFromBytes("application/octet-stream", payload, time.Now())

	if err := s.Store(ctx, fspath.Parse("/icon.png"), value.FromBinary(bin)); err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.Load(ctx, fspath.Parse("/icon.png"))
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	loadedBin, ok := v.Binary()
	if !ok {
		t.Fatalf("expected binary value, got %v", v.Kind())
	}
	rc, err := loadedBin.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "binary-content" {
		t.Errorf("content = %q", data)
	}
}

func TestIndexListing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.Store(ctx, fspath.Parse("/a"), value.Str("x"))
	s.Store(ctx, fspath.Parse("/b"), value.Str("y"))
	s.Store(ctx, fspath.Parse("/sub/"), value.Null())

	v, ok, err := s.Load(ctx, fspath.Parse("/"))
	if err != nil || !ok {
		t.Fatalf("load root: ok=%v err=%v", ok, err)
	}
	d, _ := v.Dict()
	objs := store.IndexNames(d, store.ObjectsKey)
	dirs := store.IndexNames(d, store.DirectoriesKey)
	if len(objs) != 2 || objs[0] != "a" || objs[1] != "b" {
		t.Errorf("objects = %v", objs)
	}
	if len(dirs) != 1 || dirs[0] != "sub" {
		t.Errorf("directories = %v", dirs)
	}
}

func TestRemoveLeafAndMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.Store(ctx, fspath.Parse("/a"), value.Str("x"))

	if err := s.Remove(ctx, fspath.Parse("/a")); err != nil {
		t.Fatal(err)
	}
	_, ok, _ := s.Load(ctx, fspath.Parse("/a"))
	if ok {
		t.Error("expected /a to be gone")
	}

	if err := s.Remove(ctx, fspath.Parse("/missing")); !store.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	s, _ := newTestStore(t, ReadOnly())
	ctx := context.Background()
	err := s.Store(ctx, fspath.Parse("/a"), value.Str("x"))
	if !store.IsNotWritable(err) {
		t.Errorf("expected not-writable error, got %v", err)
	}
}

func TestMountInfo(t *testing.T) {
	s, _ := newTestStore(t)
	mi := s.MountInfo()
	if mi.Type != store.TypeDirPlug || mi.ID != "test" {
		t.Errorf("unexpected mount info: %+v", mi)
	}
}
