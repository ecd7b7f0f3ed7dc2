// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package store defines the backing-store contract every leaf store
// (MemoryStore, DirStore, ZipStore) and the NormalizingStore wrapper
// implement. RootStorage offers the same Lookup/Load/LoadAll/Store/Remove
// methods but has no MountInfo, so it does not implement Store.
package store

import (
	"context"
	"iter"

	"github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/value"
)

// Type identifies the concrete kind of a mount for reporting purposes
// (spec §6 mount metadata).
type Type string

const (
	TypeMemory  Type = "storage/memory"
	TypeDirPlug Type = "storage/dir/plugin"
	TypeZipPlug Type = "storage/zip/plugin"
	TypeOverlay Type = "storage/overlay"
)

// MountInfo is returned by Store.MountInfo to describe a backing store
// without going through the mount table.
type MountInfo struct {
	ID       string
	Type     Type
	ReadOnly bool
}

// Entry is one (path, value) pair yielded by LoadAll.
type Entry struct {
	Path  path.Path
	Value value.Value
}

// Store is the interface every backing store implements. Implementations
// must be safe for concurrent reads; writers serialize internally.
type Store interface {
	// Lookup returns metadata for p without loading its payload, or
	// (nil, nil) if p does not exist.
	Lookup(ctx context.Context, p path.Path) (*value.Metadata, error)

	// Load returns p's value. For an index path the value is a Dict with
	// "directories" and "objects" Array entries. The bool return is false
	// if p does not exist; absence is never reported as an error.
	Load(ctx context.Context, p path.Path) (value.Value, bool, error)

	// LoadAll lazily walks every path under prefix (prefix-inclusive),
	// depth-first, lexicographically ordered. Dropping the returned
	// iterator before exhausting it is always safe.
	LoadAll(ctx context.Context, prefix path.Path) iter.Seq2[path.Path, value.Value]

	// Store writes v at p. Implementations that do not support writes
	// return an ErrNotWritable error.
	Store(ctx context.Context, p path.Path, v value.Value) error

	// Remove deletes p, recursively if p is an index. Implementations
	// that do not support writes return an ErrNotWritable error.
	Remove(ctx context.Context, p path.Path) error

	// MountInfo describes this store for mount-table reporting.
	MountInfo() MountInfo
}

// DirectoriesKey and ObjectsKey name the two Array entries of an index
// Dict returned by Load/LoadAll for an index path.
const (
	DirectoriesKey = "directories"
	ObjectsKey     = "objects"
)

// NewIndex builds the Dict value an index path's Load should return from
// ordered directory and object name lists.
func NewIndex(directories, objects []string) value.Value {
	d := value.NewDict()
	dirVals := make([]value.Value, len(directories))
	for i, n := range directories {
		dirVals[i] = value.Str(n)
	}
	objVals := make([]value.Value, len(objects))
	for i, n := range objects {
		objVals[i] = value.Str(n)
	}
	d.Set(DirectoriesKey, value.FromArray(dirVals...))
	d.Set(ObjectsKey, value.FromArray(objVals...))
	return value.FromDict(d)
}

// IndexNames extracts the ordered string names from an index Dict's
// directories or objects Array entry.
func IndexNames(d *value.Dict, key string) []string {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}
