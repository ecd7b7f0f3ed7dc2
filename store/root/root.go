// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package root implements RootStorage: the mount table that presents the
// substrate's unified namespace over a set of backing stores (spec
// §4.2-4.3). Mounts are either addressed directly (by a path rooted under
// their own mount path) or overlaid onto the root tree at a priority,
// where reads resolve by priority order and index listings merge across
// every visible overlay.
package root

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidcontext/substrate/log"
	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// Mount describes one entry in the mount table (spec §3 "Mount entry").
type Mount struct {
	ID          string
	Store       store.Store
	MountPath   fspath.Path
	ReadWrite   bool
	OverlayRoot *fspath.Path
	Priority    int32

	insertOrder int64
}

// IsOverlay reports whether m is visible on the root tree.
func (m Mount) IsOverlay() bool { return m.OverlayRoot != nil }

// RootStorage is the mount table and unified-namespace resolver (spec
// §4.2). The zero value is not usable; construct with New.
type RootStorage struct {
	mu     sync.RWMutex
	mounts []Mount
	seq    int64

	logger  log.Logger
	cache   *metadataCache
	metrics *metrics
}

// Option configures a RootStorage at construction time.
type Option func(*RootStorage) error

// WithLogger overrides the default global logger.
func WithLogger(l log.Logger) Option {
	return func(rs *RootStorage) error { rs.logger = l; return nil }
}

// WithCacheDir opens the metadata cache at a persistent directory instead
// of the in-memory default.
func WithCacheDir(dir string) Option {
	return func(rs *RootStorage) error {
		c, err := newMetadataCache(dir)
		if err != nil {
			return err
		}
		rs.cache = c
		return nil
	}
}

// New returns an empty RootStorage.
func New(opts ...Option) (*RootStorage, error) {
	rs := &RootStorage{logger: log.Global()}
	for _, opt := range opts {
		if err := opt(rs); err != nil {
			return nil, err
		}
	}
	if rs.cache == nil {
		c, err := newMetadataCache("")
		if err != nil {
			return nil, err
		}
		rs.cache = c
	}
	if rs.metrics == nil {
		rs.metrics = newMetrics(nil)
	}
	return rs, nil
}

// Close releases the metadata cache.
func (rs *RootStorage) Close() error {
	return rs.cache.close()
}

func overlapsLocked(mounts []Mount, p fspath.Path) bool {
	for _, m := range mounts {
		if p.StartsWith(m.MountPath) || m.MountPath.StartsWith(p) {
			return true
		}
	}
	return false
}

// Mount attaches store at mountPath (spec §4.2 "mount"). If id is empty a
// uuid is generated. overlayRoot, when non-nil, makes the mount visible
// on the root tree at priority, in addition to its direct address under
// mountPath.
func (rs *RootStorage) Mount(st store.Store, mountPath fspath.Path, readWrite bool, overlayRoot *fspath.Path, priority int32, id string) (string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if overlapsLocked(rs.mounts, mountPath) {
		return "", store.Conflictf("mount path %q overlaps an existing mount", mountPath)
	}
	if readWrite && overlayRoot != nil {
		for _, m := range rs.mounts {
			if m.ReadWrite && m.IsOverlay() {
				return "", store.Conflictf("a writable overlay is already mounted at %q", m.MountPath)
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	rs.seq++
	rs.mounts = append(rs.mounts, Mount{
		ID:          id,
		Store:       st,
		MountPath:   mountPath,
		ReadWrite:   readWrite,
		OverlayRoot: overlayRoot,
		Priority:    priority,
		insertOrder: rs.seq,
	})
	rs.cache.dropAll()
	return id, nil
}

// Unmount detaches the mount at mountPath.
func (rs *RootStorage) Unmount(mountPath fspath.Path) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, m := range rs.mounts {
		if m.MountPath.Equal(mountPath) {
			rs.mounts = append(rs.mounts[:i], rs.mounts[i+1:]...)
			rs.cache.dropAll()
			return nil
		}
	}
	return store.Conflictf("no mount at %q", mountPath)
}

// Remount atomically updates the overlay attributes of the mount at
// mountPath (spec §4.2 "remount").
func (rs *RootStorage) Remount(mountPath fspath.Path, readWrite bool, overlayRoot *fspath.Path, priority int32) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	idx := -1
	for i, m := range rs.mounts {
		if m.MountPath.Equal(mountPath) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Conflictf("no mount at %q", mountPath)
	}
	if readWrite && overlayRoot != nil {
		for i, m := range rs.mounts {
			if i != idx && m.ReadWrite && m.IsOverlay() {
				return store.Conflictf("a writable overlay is already mounted at %q", m.MountPath)
			}
		}
	}
	rs.mounts[idx].ReadWrite = readWrite
	rs.mounts[idx].OverlayRoot = overlayRoot
	rs.mounts[idx].Priority = priority
	rs.cache.dropAll()
	return nil
}

// snapshot copies the mount table under a read lock so resolution logic
// can run lock-free against a consistent view.
func (rs *RootStorage) snapshot() []Mount {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	cp := make([]Mount, len(rs.mounts))
	copy(cp, rs.mounts)
	return cp
}

// Mounts returns a snapshot of the current mount table, ordered as
// inserted.
func (rs *RootStorage) Mounts() []Mount {
	return rs.snapshot()
}

// directMount returns the mount whose MountPath is the longest matching
// prefix of p, per the mount-path-uniqueness invariant (spec §3: no mount
// path is a prefix of another), so at most one candidate can match.
func directMount(mounts []Mount, p fspath.Path) (Mount, bool) {
	for _, m := range mounts {
		if m.MountPath.IsRoot() {
			continue
		}
		if p.StartsWith(m.MountPath) {
			return m, true
		}
	}
	return Mount{}, false
}

// overlaysSorted returns the overlay-visible mounts ordered by priority
// descending, then insertion order ascending (spec §4.3.2).
func overlaysSorted(mounts []Mount) []Mount {
	var out []Mount
	for _, m := range mounts {
		if m.IsOverlay() {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].insertOrder < out[j].insertOrder
	})
	return out
}

// overlayLocal computes m's store-local path for an overlay-relative
// address p, or false if p falls outside m's overlay coverage.
func overlayLocal(m Mount, p fspath.Path) (fspath.Path, bool) {
	root := *m.OverlayRoot
	if !p.StartsWith(root) {
		return fspath.Path{}, false
	}
	return p.Relative(root), true
}

// Lookup resolves metadata for p (spec §4.3), consulting the metadata
// cache first.
func (rs *RootStorage) Lookup(ctx context.Context, p fspath.Path) (*value.Metadata, error) {
	start := time.Now()
	key := p.String()
	if md, ok := rs.cache.get(key); ok {
		rs.metrics.lookups.WithLabelValues("hit").Inc()
		rs.metrics.lookupDuration.Observe(time.Since(start).Seconds())
		md.Path = p
		return md, nil
	}

	md, err := rs.lookupUncached(ctx, p)
	rs.metrics.lookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		rs.metrics.lookups.WithLabelValues("error").Inc()
		return nil, err
	}
	if md == nil {
		rs.metrics.lookups.WithLabelValues("not_found").Inc()
		return nil, nil
	}
	rs.metrics.lookups.WithLabelValues("miss").Inc()
	rs.cache.set(key, md)
	return md, nil
}

func (rs *RootStorage) lookupUncached(ctx context.Context, p fspath.Path) (*value.Metadata, error) {
	mounts := rs.snapshot()

	if m, ok := directMount(mounts, p); ok {
		local := p.Relative(m.MountPath)
		md, err := m.Store.Lookup(ctx, local)
		if err != nil || md == nil {
			return nil, err
		}
		md.Path = p
		md.OriginMountID = m.ID
		return md, nil
	}

	for _, m := range overlaysSorted(mounts) {
		local, ok := overlayLocal(m, p)
		if !ok {
			continue
		}
		md, err := m.Store.Lookup(ctx, local)
		if err != nil {
			return nil, err
		}
		if md != nil {
			md.Path = p
			md.OriginMountID = m.ID
			return md, nil
		}
	}
	return nil, nil
}

// Load resolves p's value (spec §4.3): a leaf returns the highest
// priority overlay's value; an index merges partial listings from every
// overlay that has one.
func (rs *RootStorage) Load(ctx context.Context, p fspath.Path) (value.Value, bool, error) {
	mounts := rs.snapshot()

	if m, ok := directMount(mounts, p); ok {
		local := p.Relative(m.MountPath)
		return m.Store.Load(ctx, local)
	}

	if !p.IsIndex() {
		for _, m := range overlaysSorted(mounts) {
			local, ok := overlayLocal(m, p)
			if !ok {
				continue
			}
			v, found, err := m.Store.Load(ctx, local)
			if err != nil {
				return value.Null(), false, err
			}
			if found {
				return v, true, nil
			}
		}
		return value.Null(), false, nil
	}

	var partials []*value.Dict
	for _, m := range overlaysSorted(mounts) {
		local, ok := overlayLocal(m, p)
		if !ok {
			continue
		}
		v, found, err := m.Store.Load(ctx, local)
		if err != nil {
			return value.Null(), false, err
		}
		if !found {
			continue
		}
		if d, ok := v.Dict(); ok {
			partials = append(partials, d)
		}
	}
	if len(partials) == 0 {
		return value.Null(), false, nil
	}
	return value.FromDict(store.MergeIndexes(partials)), true, nil
}

// LoadAll walks every path under prefix by repeatedly resolving Load,
// which already applies the overlay-merge rule at every index it
// descends into (spec §4.2 "load_all").
func (rs *RootStorage) LoadAll(ctx context.Context, prefix fspath.Path) iter.Seq2[fspath.Path, value.Value] {
	return func(yield func(fspath.Path, value.Value) bool) {
		var walk func(p fspath.Path) bool
		walk = func(p fspath.Path) bool {
			v, ok, err := rs.Load(ctx, p)
			if err != nil || !ok {
				return true
			}
			if !yield(p, v) {
				return false
			}
			if !p.IsIndex() {
				return true
			}
			d, _ := v.Dict()
			for _, name := range store.IndexNames(d, store.DirectoriesKey) {
				if !walk(p.Child(name, true)) {
					return false
				}
			}
			for _, name := range store.IndexNames(d, store.ObjectsKey) {
				if !walk(p.Child(name, false)) {
					return false
				}
			}
			return true
		}
		walk(prefix)
	}
}

// writableOverlay returns the sole overlay mount marked ReadWrite, if
// any (spec §3 invariant: at most one).
func writableOverlay(mounts []Mount) (Mount, bool) {
	for _, m := range mounts {
		if m.IsOverlay() && m.ReadWrite {
			return m, true
		}
	}
	return Mount{}, false
}

// Store writes v at p (spec §4.2 "store", §9 write-routing resolution):
// a direct mount address writes to that mount iff it is writable;
// otherwise the write always routes to the single writable overlay.
func (rs *RootStorage) Store(ctx context.Context, p fspath.Path, v value.Value) error {
	mounts := rs.snapshot()

	if m, ok := directMount(mounts, p); ok {
		if !m.ReadWrite {
			return store.NotWritablef("mount %q is not writable", m.MountPath)
		}
		local := p.Relative(m.MountPath)
		if err := m.Store.Store(ctx, local, v); err != nil {
			return err
		}
		rs.cache.invalidate(p.String())
		return nil
	}

	m, ok := writableOverlay(mounts)
	if !ok {
		return store.NotWritablef("no writable overlay is mounted")
	}
	local, ok := overlayLocal(m, p)
	if !ok {
		return store.NotWritablef("path %q falls outside the writable overlay", p)
	}
	if err := m.Store.Store(ctx, local, v); err != nil {
		return err
	}
	rs.cache.invalidate(p.String())
	return nil
}

// Remove deletes p, symmetric with Store's write routing.
func (rs *RootStorage) Remove(ctx context.Context, p fspath.Path) error {
	mounts := rs.snapshot()

	if m, ok := directMount(mounts, p); ok {
		if !m.ReadWrite {
			return store.NotWritablef("mount %q is not writable", m.MountPath)
		}
		local := p.Relative(m.MountPath)
		if err := m.Store.Remove(ctx, local); err != nil {
			return err
		}
		rs.cache.invalidate(p.String())
		return nil
	}

	m, ok := writableOverlay(mounts)
	if !ok {
		return store.NotWritablef("no writable overlay is mounted")
	}
	local, ok := overlayLocal(m, p)
	if !ok {
		return store.NotWritablef("path %q falls outside the writable overlay", p)
	}
	if err := m.Store.Remove(ctx, local); err != nil {
		return err
	}
	rs.cache.invalidate(p.String())
	return nil
}

// cacheCleaner is implemented by leaf stores (e.g. store/dir) that keep
// their own internal listing cache beyond RootStorage's metadata cache.
type cacheCleaner interface {
	CacheClean(deep bool)
}

// CacheClean drops RootStorage's own cached metadata, and, when deep,
// asks every mounted store to drop its internal caches too (spec §4.2
// "cache_clean").
func (rs *RootStorage) CacheClean(deep bool) {
	if err := rs.cache.dropAll(); err != nil {
		rs.logger.WithField("error", err).Warn("root storage: cache_clean failed to drop metadata cache")
	}
	if !deep {
		return
	}
	for _, m := range rs.snapshot() {
		if cc, ok := m.Store.(cacheCleaner); ok {
			cc.CacheClean(deep)
		}
	}
}
