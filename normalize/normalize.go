// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package normalize implements the legacy-upgrade read wrapper (spec
// §4.4): a NormalizingStore composes around any store.Store and rewrites
// certain Dict values on Load so that content published by older plug-in
// bundles matches the shape current code expects. Writes pass through
// unchanged.
package normalize

import (
	"context"
	"iter"
	"strings"

	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// Store wraps an inner store.Store, normalizing Dict values loaded from
// under /role/, /user/ and /plugin/.
type Store struct {
	inner    store.Store
	pluginID string
}

// New wraps inner, normalizing /plugin/ dicts to carry pluginID as their
// id. pluginID is the identifier of the plug-in inner publishes content
// for; it is known to the caller (the plug-in manager) independently of
// whatever the plug-in's own config document says.
func New(inner store.Store, pluginID string) *Store {
	return &Store{inner: inner, pluginID: pluginID}
}

var _ store.Store = (*Store)(nil)

// Lookup implements store.Store; metadata is unaffected by normalization.
func (s *Store) Lookup(ctx context.Context, p fspath.Path) (*value.Metadata, error) {
	return s.inner.Lookup(ctx, p)
}

// Load implements store.Store, applying the legacy upgrade rules to any
// Dict value loaded from under /role/, /user/ or /plugin/.
func (s *Store) Load(ctx context.Context, p fspath.Path) (value.Value, bool, error) {
	v, ok, err := s.inner.Load(ctx, p)
	if err != nil || !ok {
		return v, ok, err
	}
	return s.apply(p, v), true, nil
}

// LoadAll implements store.Store, applying the same normalization to
// every yielded Dict value.
func (s *Store) LoadAll(ctx context.Context, prefix fspath.Path) iter.Seq2[fspath.Path, value.Value] {
	return func(yield func(fspath.Path, value.Value) bool) {
		for p, v := range s.inner.LoadAll(ctx, prefix) {
			if !yield(p, s.apply(p, v)) {
				return
			}
		}
	}
}

// Store implements store.Store, passing writes through unchanged.
func (s *Store) Store(ctx context.Context, p fspath.Path, v value.Value) error {
	return s.inner.Store(ctx, p, v)
}

// Remove implements store.Store, passing removals through unchanged.
func (s *Store) Remove(ctx context.Context, p fspath.Path) error {
	return s.inner.Remove(ctx, p)
}

// MountInfo implements store.Store.
func (s *Store) MountInfo() store.MountInfo {
	return s.inner.MountInfo()
}

func (s *Store) apply(p fspath.Path, v value.Value) value.Value {
	if p.IsIndex() {
		return v
	}
	d, ok := v.Dict()
	if !ok {
		return v
	}
	switch {
	case under(p, "role") && p.Len() >= 2:
		normalizeRole(d, p.Name())
	case under(p, "user") && p.Len() >= 2:
		normalizeUser(d, p.Name())
	case under(p, "plugin"):
		normalizePlugin(d, s.pluginID)
	}
	return value.FromDict(d)
}

func under(p fspath.Path, root string) bool {
	return p.Len() >= 1 && p.NameAt(0) == root
}

// normalizeRole implements the /role/ legacy upgrade (spec §4.4, scenario
// 3): when the dict lacks a type, it is a pre-normalization role
// descriptor whose access[] entries use the old type/name or
// type/regexp shorthand.
func normalizeRole(d *value.Dict, id string) {
	if d.Has("type") {
		return
	}
	d.Set("type", value.Str("role"))
	d.Set("id", value.Str(id))

	access, ok := d.Get("access")
	if !ok {
		return
	}
	arr, ok := access.Array()
	if !ok {
		return
	}
	normalized := make([]value.Value, len(arr))
	for i, item := range arr {
		e, ok := item.Dict()
		if !ok {
			normalized[i] = item
			continue
		}
		normalized[i] = value.FromDict(normalizeAccessEntry(e))
	}
	d.Set("access", value.FromArray(normalized...))
}

func normalizeAccessEntry(e *value.Dict) *value.Dict {
	e = e.Clone()
	t, hasType := e.Get("type")
	if hasType {
		if name, hasName := e.Get("name"); hasName {
			typeStr, _ := t.Str()
			nameStr, _ := name.Str()
			e.Delete("type")
			e.Delete("name")
			e.Set("path", value.Str(typeStr+"/"+nameStr))
			e.Set("permission", value.Str("read"))
		} else if regexp, hasRegexp := e.Get("regexp"); hasRegexp {
			typeStr, _ := t.Str()
			regexpStr, _ := regexp.Str()
			e.Delete("type")
			e.Delete("regexp")
			e.Set("regex", value.Str(typeStr+"/"+regexpStr))
			e.Set("permission", value.Str("read"))
		}
	}
	if e.Has("caller") {
		e.Delete("caller")
		e.Set("permission", value.Str("internal"))
	}
	return e
}

// normalizeUser implements the /user/ legacy upgrade (spec §4.4, scenario
// 4): when the dict lacks a type, description becomes name and every
// role[] entry is lowercased.
func normalizeUser(d *value.Dict, id string) {
	if d.Has("type") {
		return
	}
	d.Set("type", value.Str("user"))
	d.Set("id", value.Str(id))

	desc, _ := d.GetOr("description", value.Str("")).Str()
	d.Set("name", value.Str(desc))
	d.Set("description", value.Str(""))

	roles, ok := d.Get("role")
	if !ok {
		return
	}
	arr, ok := roles.Array()
	if !ok {
		return
	}
	lowered := make([]value.Value, len(arr))
	for i, r := range arr {
		if s, ok := r.Str(); ok {
			lowered[i] = value.Str(strings.ToLower(s))
		} else {
			lowered[i] = r
		}
	}
	d.Set("role", value.FromArray(lowered...))
}

// normalizePlugin implements the /plugin/ legacy upgrade (spec §4.4):
// unconditionally sets type, and sets id to pluginID whenever pluginID is
// non-empty, since a plug-in's published identity must always match the
// mount it was loaded under. With an empty pluginID the id is left as is.
func normalizePlugin(d *value.Dict, pluginID string) {
	d.Set("type", value.Str("plugin"))
	if pluginID != "" {
		d.Set("id", value.Str(pluginID))
	}
}
