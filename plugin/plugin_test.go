// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package plugin_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/plugin"
	"github.com/rapidcontext/substrate/store"
)

func writeTestBundle(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T) *plugin.Manager {
	t.Helper()
	builtinDir := t.TempDir()
	pluginDir := t.TempDir()
	mgr, err := plugin.New(builtinDir, pluginDir, "v1")
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() {
		mgr.UnloadAll()
		_ = mgr.Close()
	})
	return mgr
}

// TestPluginLifecycle implements spec §8 scenario 5: install, load,
// observe the plug-in's content and instance record, unload and observe
// both disappear.
func TestPluginLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	archive := filepath.Join(t.TempDir(), "demo.zip")
	writeTestBundle(t, archive, map[string]string{
		"plugin.json":          `{"id":"demo"}`,
		"procedure/hello.json": `{"msg":"hi"}`,
	})

	id, err := mgr.Install(archive)
	if err != nil {
		t.Fatalf("Install() = %v", err)
	}
	if id != "demo" {
		t.Fatalf("Install() id = %q, want %q", id, "demo")
	}
	if !mgr.IsAvailable(id) {
		t.Fatalf("IsAvailable(%q) = false after install", id)
	}

	if err := mgr.Load(id); err != nil {
		t.Fatalf("Load(%q) = %v", id, err)
	}
	if !mgr.IsLoaded(id) {
		t.Fatalf("IsLoaded(%q) = false after Load", id)
	}

	root := mgr.Root()
	if _, ok, err := root.Load(ctx, fspath.Parse("/procedure/hello")); err != nil || !ok {
		t.Fatalf("Load(/procedure/hello) = %v, %v, want found", ok, err)
	}
	if _, ok, err := root.Load(ctx, fspath.Parse("/storage/memory/plugin/"+id)); err != nil || !ok {
		t.Fatalf("Load(/storage/memory/plugin/%s) = %v, %v, want found", id, ok, err)
	}

	if err := mgr.Unload(id); err != nil {
		t.Fatalf("Unload(%q) = %v", id, err)
	}
	if mgr.IsLoaded(id) {
		t.Fatalf("IsLoaded(%q) = true after Unload", id)
	}
	if _, ok, err := root.Load(ctx, fspath.Parse("/procedure/hello")); err != nil || ok {
		t.Fatalf("Load(/procedure/hello) after unload = %v, %v, want not found", ok, err)
	}
	if _, ok, err := root.Load(ctx, fspath.Parse("/storage/memory/plugin/"+id)); err != nil || ok {
		t.Fatalf("Load(/storage/memory/plugin/%s) after unload = %v, %v, want not found", id, ok, err)
	}
}

// TestReservedPluginGuards implements spec §8 scenario 6: unload on
// either reserved plug-in id, and load of system, is rejected with
// ErrValidation; installing a missing archive fails.
func TestReservedPluginGuards(t *testing.T) {
	mgr := newTestManager(t)

	if err := mgr.Unload(plugin.SystemID); !store.IsValidation(err) {
		t.Fatalf("Unload(system) = %v, want ErrValidation", err)
	}
	if err := mgr.Unload(plugin.LocalID); !store.IsValidation(err) {
		t.Fatalf("Unload(local) = %v, want ErrValidation", err)
	}
	if err := mgr.Load(plugin.SystemID); !store.IsValidation(err) {
		t.Fatalf("Load(system) = %v, want ErrValidation", err)
	}

	if _, err := mgr.Install("/nonexistent/bundle.zip"); err == nil {
		t.Fatal("Install(nonexistent) = nil error, want failure")
	}
}

// TestInstallRejectsReservedID implements spec §4.5's install-time
// reserved-id guard (supplemented feature).
func TestInstallRejectsReservedID(t *testing.T) {
	mgr := newTestManager(t)
	archive := filepath.Join(t.TempDir(), "local.zip")
	writeTestBundle(t, archive, map[string]string{
		"plugin.json": `{"id":"local"}`,
	})
	if _, err := mgr.Install(archive); !store.IsValidation(err) {
		t.Fatalf("Install(reserved id) = %v, want ErrValidation", err)
	}
}
