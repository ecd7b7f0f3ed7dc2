// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package zip

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/value"
)

func writeTestArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return archivePath
}

func TestStoreLoadLeaf(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{
		"procedure/hello.yaml": "name: hello\n",
		"lib/demo.artifact":    "binary-payload",
	})
	s, err := New("demo", archivePath, "")
	if err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.Load(context.Background(), fspath.Parse("/procedure/hello"))
	if err != nil || !ok {
		t.Fatalf("Load(/procedure/hello) = %v, %v, %v", v, ok, err)
	}
	d, ok := v.Dict()
	if !ok {
		t.Fatalf("expected Dict, got %v", v.Kind())
	}
	name, _ := d.GetOr("name", v).Str()
	if name != "hello" {
		t.Fatalf("name = %q, want hello", name)
	}

	bv, ok, err := s.Load(context.Background(), fspath.Parse("/lib/demo.artifact"))
	if err != nil || !ok {
		t.Fatalf("Load(/lib/demo.artifact) = %v, %v, %v", bv, ok, err)
	}
	bin, ok := bv.Binary()
	if !ok {
		t.Fatalf("expected Binary, got %v", bv.Kind())
	}
	rc, err := bin.Open()
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(data) != "binary-payload" {
		t.Fatalf("binary content = %q, %v", data, err)
	}
}

func TestStoreLookupIndex(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{
		"role/admin.yaml": "access: []\n",
		"role/guest.yaml": "access: []\n",
	})
	s, err := New("demo", archivePath, "")
	if err != nil {
		t.Fatal(err)
	}
	md, err := s.Lookup(context.Background(), fspath.Parse("/role/"))
	if err != nil || md == nil {
		t.Fatalf("Lookup(/role/) = %v, %v", md, err)
	}
	v, ok, err := s.Load(context.Background(), fspath.Parse("/role/"))
	if err != nil || !ok {
		t.Fatalf("Load(/role/) = %v, %v, %v", v, ok, err)
	}
	d, _ := v.Dict()
	objs, _ := d.Get("objects")
	arr, _ := objs.Array()
	if len(arr) != 2 {
		t.Fatalf("objects = %v, want 2 entries", arr)
	}
}

func TestLegacyPluginShim(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{
		"plugin.properties": "id=demo\nclassName=Demo\n",
	})
	s, err := New("demo", archivePath, "demo")
	if err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Load(context.Background(), fspath.Parse("/plugin/demo"))
	if err != nil || !ok {
		t.Fatalf("Load(/plugin/demo) = %v, %v, %v", v, ok, err)
	}
	d, _ := v.Dict()
	id, _ := d.GetOr("id", v).Str()
	if id != "demo" {
		t.Fatalf("id = %q, want demo", id)
	}

	if _, ok, _ := s.Load(context.Background(), fspath.Parse("/plugin.properties")); ok {
		t.Fatal("legacy root entry should have been relocated, not left in place")
	}
}

func TestStoreIsReadOnly(t *testing.T) {
	archivePath := writeTestArchive(t, map[string]string{"role/admin.yaml": "access: []\n"})
	s, err := New("demo", archivePath, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(context.Background(), fspath.Parse("/role/new"), value.Null()); err == nil {
		t.Fatal("expected ErrNotWritable")
	}
	if err := s.Remove(context.Background(), fspath.Parse("/role/admin")); err == nil {
		t.Fatal("expected ErrNotWritable")
	}
}
