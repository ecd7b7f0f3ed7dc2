// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package memory implements store.Store as a concurrent in-memory tree,
// the substrate's writable overlay (spec §4.1.1).
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// node is one tree node. An index node holds children; a leaf node holds
// a value. A node is never both.
type node struct {
	children map[string]*node
	value    value.Value
	isIndex  bool
	modified time.Time
	etag     string
}

// Store is an in-memory, concurrency-safe store.Store implementation.
// Reads take a shared lock; writes are serialized by an exclusive lock.
// It never returns ErrNotWritable.
type Store struct {
	mu    sync.RWMutex
	id    string
	clock uint64
	root  *node
}

// New returns an empty Store identified by id.
func New(id string) *Store {
	return &Store{
		id:   id,
		root: &node{isIndex: true, children: map[string]*node{}},
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) nextETag() string {
	n := atomic.AddUint64(&s.clock, 1)
	return fmt.Sprintf("%s-%d", s.id, n)
}

// walk returns the node at p, or nil if it does not exist.
func (s *Store) walk(p path.Path) *node {
	cur := s.root
	for i := 0; i < p.Len(); i++ {
		if !cur.isIndex || cur.children == nil {
			return nil
		}
		next, ok := cur.children[p.NameAt(i)]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func metadataFor(p path.Path, n *node, originMountID string) *value.Metadata {
	md := &value.Metadata{
		Path:          p,
		LastModified:  n.modified,
		ETag:          n.etag,
		OriginMountID: originMountID,
	}
	if n.isIndex {
		md.Type = value.TypeIndex
		return md
	}
	if bin, ok := n.value.Binary(); ok {
		md.Type = value.TypeBinary
		md.MimeType = bin.MimeType
		md.Size = bin.Size
	} else {
		md.Type = value.TypeObject
	}
	return md
}

// Lookup implements store.Store.
func (s *Store) Lookup(_ context.Context, p path.Path) (*value.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.walk(p)
	if n == nil {
		return nil, nil
	}
	return metadataFor(p, n, s.id), nil
}

func indexValue(n *node) value.Value {
	var dirs, objs []string
	for name, child := range n.children {
		if child.isIndex {
			dirs = append(dirs, name)
		} else {
			objs = append(objs, name)
		}
	}
	sort.Strings(dirs)
	sort.Strings(objs)
	return store.NewIndex(dirs, objs)
}

// Load implements store.Store.
func (s *Store) Load(_ context.Context, p path.Path) (value.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.walk(p)
	if n == nil {
		return value.Null(), false, nil
	}
	if n.isIndex {
		return indexValue(n), true, nil
	}
	return n.value, true, nil
}

// LoadAll implements store.Store: a depth-first, lexicographically
// ordered walk starting at prefix (inclusive).
func (s *Store) LoadAll(_ context.Context, prefix path.Path) iter.Seq2[path.Path, value.Value] {
	return func(yield func(path.Path, value.Value) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		start := s.walk(prefix)
		if start == nil {
			return
		}
		var visit func(p path.Path, n *node) bool
		visit = func(p path.Path, n *node) bool {
			if n.isIndex {
				if !yield(p, indexValue(n)) {
					return false
				}
				names := make([]string, 0, len(n.children))
				for name := range n.children {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					child := n.children[name]
					if !visit(p.Child(name, child.isIndex), child) {
						return false
					}
				}
				return true
			}
			return yield(p, n.value)
		}
		visit(prefix, start)
	}
}

// Store implements store.Store, creating intermediate index nodes as
// needed.
func (s *Store) Store(_ context.Context, p path.Path, v value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.root
	for i := 0; i < p.Len()-1; i++ {
		name := p.NameAt(i)
		next, ok := cur.children[name]
		if !ok {
			next = &node{isIndex: true, children: map[string]*node{}}
			cur.children[name] = next
		} else if !next.isIndex {
			return store.Conflictf("path %q: %q is not an index", p, name)
		}
		cur = next
	}

	if p.Len() == 0 {
		return store.Conflictf("cannot overwrite the root index directly")
	}

	name := p.Name()
	now := time.Now()
	existing, ok := cur.children[name]
	if ok && existing.isIndex != p.IsIndex() {
		return store.Conflictf("path %q: kind mismatch with existing entry", p)
	}
	cur.children[name] = &node{
		isIndex:  p.IsIndex(),
		children: childrenFor(p.IsIndex(), existing),
		value:    v,
		modified: now,
		etag:     s.nextETag(),
	}
	return nil
}

func childrenFor(isIndex bool, existing *node) map[string]*node {
	if !isIndex {
		return nil
	}
	if existing != nil && existing.children != nil {
		return existing.children
	}
	return map[string]*node{}
}

// Remove implements store.Store, recursively for index paths.
func (s *Store) Remove(_ context.Context, p path.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Len() == 0 {
		return store.Conflictf("cannot remove the root index")
	}
	cur := s.root
	for i := 0; i < p.Len()-1; i++ {
		next, ok := cur.children[p.NameAt(i)]
		if !ok {
			return store.NotFoundf("path %q does not exist", p)
		}
		cur = next
	}
	name := p.Name()
	if _, ok := cur.children[name]; !ok {
		return store.NotFoundf("path %q does not exist", p)
	}
	delete(cur.children, name)
	return nil
}

// MountInfo implements store.Store.
func (s *Store) MountInfo() store.MountInfo {
	return store.MountInfo{ID: s.id, Type: store.TypeMemory, ReadOnly: false}
}
