// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package normalize

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store/memory"
	"github.com/rapidcontext/substrate/value"
)

func dictValue(t *testing.T, raw map[string]any) value.Value {
	t.Helper()
	return value.FromGeneric(raw)
}

func TestNormalizeRoleLegacyAccess(t *testing.T) {
	mem := memory.New("mem")
	ctx := context.Background()
	raw := dictValue(t, map[string]any{
		"access": []any{
			map[string]any{"type": "procedure", "name": "x.y"},
		},
	})
	if err := mem.Store(ctx, fspath.Parse("/role/admin"), raw); err != nil {
		t.Fatal(err)
	}

	ns := New(mem, "")
	v, ok, err := ns.Load(ctx, fspath.Parse("/role/admin"))
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v, %v", v, ok, err)
	}

	want := dictValue(t, map[string]any{
		"type": "role",
		"id":   "admin",
		"access": []any{
			map[string]any{"path": "procedure/x.y", "permission": "read"},
		},
	})
	if diff := cmp.Diff(toGeneric(want), toGeneric(v)); diff != "" {
		t.Fatalf("normalized role mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeUserLegacy(t *testing.T) {
	mem := memory.New("mem")
	ctx := context.Background()
	raw := dictValue(t, map[string]any{
		"description": "Alice A.",
		"role":        []any{"Admin", "User"},
	})
	if err := mem.Store(ctx, fspath.Parse("/user/alice"), raw); err != nil {
		t.Fatal(err)
	}

	ns := New(mem, "")
	v, ok, err := ns.Load(ctx, fspath.Parse("/user/alice"))
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v, %v", v, ok, err)
	}

	want := dictValue(t, map[string]any{
		"type":        "user",
		"id":          "alice",
		"name":        "Alice A.",
		"description": "",
		"role":        []any{"admin", "user"},
	})
	if diff := cmp.Diff(toGeneric(want), toGeneric(v)); diff != "" {
		t.Fatalf("normalized user mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	mem := memory.New("mem")
	ctx := context.Background()
	raw := dictValue(t, map[string]any{
		"description": "Alice A.",
		"role":        []any{"Admin"},
	})
	if err := mem.Store(ctx, fspath.Parse("/user/alice"), raw); err != nil {
		t.Fatal(err)
	}
	ns := New(mem, "")
	first, _, _ := ns.Load(ctx, fspath.Parse("/user/alice"))
	// Store the normalized result back and normalize again: it must not
	// be rewritten a second time since it now carries a type.
	if err := mem.Store(ctx, fspath.Parse("/user/alice"), first); err != nil {
		t.Fatal(err)
	}
	second, _, _ := ns.Load(ctx, fspath.Parse("/user/alice"))
	if diff := cmp.Diff(toGeneric(first), toGeneric(second)); diff != "" {
		t.Fatalf("normalization not idempotent (-first +second):\n%s", diff)
	}
}

func TestNormalizePluginAlwaysEnforced(t *testing.T) {
	mem := memory.New("mem")
	ctx := context.Background()
	raw := dictValue(t, map[string]any{"className": "Demo"})
	if err := mem.Store(ctx, fspath.Parse("/plugin/demo"), raw); err != nil {
		t.Fatal(err)
	}
	ns := New(mem, "demo")
	v, ok, err := ns.Load(ctx, fspath.Parse("/plugin/demo"))
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v, %v", v, ok, err)
	}
	d, _ := v.Dict()
	typ, _ := d.GetOr("type", value.Null()).Str()
	id, _ := d.GetOr("id", value.Null()).Str()
	if typ != "plugin" || id != "demo" {
		t.Fatalf("type=%q id=%q, want plugin/demo", typ, id)
	}
}

func toGeneric(v value.Value) any { return value.ToGeneric(v) }
