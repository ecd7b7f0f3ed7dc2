// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package dir implements store.Store over a directory on disk
// (spec §4.1.2). Leaf paths map to files; the file extension selects
// the structured-document format (JSON/YAML/Properties/XML) or, for any
// other extension, the file is served as an opaque binary. Index paths
// map to subdirectories; listings are read from the filesystem, sorted,
// and cached with invalidation on directory mtime change.
package dir

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fsnotify/fsnotify"

	"github.com/rapidcontext/substrate/format"
	"github.com/rapidcontext/substrate/log"
	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// structuredExts is the extension search order used when resolving a
// leaf Path component to an on-disk file: the first structured
// extension with a matching file wins.
var structuredExts = []string{"json", "yaml", "yml", "properties", "xml"}

// Store is a filesystem-backed store.Store.
type Store struct {
	id       string
	root     string
	readOnly bool
	logger   log.Logger

	listings *lru.Cache[string, listing]

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]bool
}

type listing struct {
	mtime time.Time
	dirs  []string
	objs  []string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default global logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// ReadOnly marks the store as not supporting Store/Remove, matching a
// plug-in's published (non-writable) content mount.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// New returns a Store rooted at dir, which must already exist.
func New(id, dir string, opts ...Option) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, store.IOErrorf(err, "directory %q", dir)
	}
	if !info.IsDir() {
		return nil, store.ValidationErrorf("%q is not a directory", dir)
	}
	cache, err := lru.New[string, listing](512)
	if err != nil {
		return nil, store.IOErrorf(err, "allocating listing cache")
	}
	s := &Store{
		id:       id,
		root:     dir,
		logger:   log.Global(),
		listings: cache,
		watched:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startWatching()
	return s, nil
}

var _ store.Store = (*Store)(nil)

// Close releases the filesystem watcher, if one was started.
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func (s *Store) fsPath(p fspath.Path) string {
	return filepath.Join(append([]string{s.root}, p.Names()...)...)
}

// resolveLeaf finds the on-disk file backing leaf path p, returning its
// absolute path, the selected extension ("" for a raw binary whose name
// carries its own suffix), and whether it was found.
func (s *Store) resolveLeaf(p fspath.Path) (fullpath, ext string, found bool) {
	dir := s.fsPath(p.Parent())
	name := p.Name()

	if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
		return filepath.Join(dir, name), "", true
	}
	for _, e := range structuredExts {
		candidate := filepath.Join(dir, name+"."+e)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, e, true
		}
	}
	return "", "", false
}

func mimeTypeFor(fullpath string) string {
	t := mime.TypeByExtension(filepath.Ext(fullpath))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}

// Lookup implements store.Store.
func (s *Store) Lookup(ctx context.Context, p fspath.Path) (*value.Metadata, error) {
	if p.IsIndex() {
		dirPath := s.fsPath(p)
		info, err := os.Stat(dirPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, store.IOErrorf(err, "stat %q", dirPath)
		}
		if !info.IsDir() {
			return nil, nil
		}
		return &value.Metadata{
			Path:          p,
			Type:          value.TypeIndex,
			LastModified:  info.ModTime(),
			OriginMountID: s.id,
		}, nil
	}

	fullpath, ext, found := s.resolveLeaf(p)
	if !found {
		return nil, nil
	}
	info, err := os.Stat(fullpath)
	if err != nil {
		return nil, store.IOErrorf(err, "stat %q", fullpath)
	}
	md := &value.Metadata{
		Path:          p,
		LastModified:  info.ModTime(),
		ETag:          fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()),
		OriginMountID: s.id,
	}
	if ext == "" || !format.IsStructured(ext) {
		md.Type = value.TypeBinary
		md.MimeType = mimeTypeFor(fullpath)
		md.Size = info.Size()
	} else {
		md.Type = value.TypeObject
	}
	return md, nil
}

func (s *Store) readListing(dirPath string) (listing, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return listing{}, err
	}
	if cached, ok := s.listings.Get(dirPath); ok && cached.mtime.Equal(info.ModTime()) {
		return cached, nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return listing{}, err
	}
	var dirs, objs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
			continue
		}
		ext := format.Ext(filepath.Ext(e.Name()))
		if ext != "" && format.IsStructured(ext) {
			objs = append(objs, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		} else {
			objs = append(objs, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(objs)
	l := listing{mtime: info.ModTime(), dirs: dirs, objs: objs}
	s.listings.Add(dirPath, l)
	s.watchDir(dirPath)
	return l, nil
}

func (s *Store) loadBinary(fullpath string) (value.Value, error) {
	info, err := os.Stat(fullpath)
	if err != nil {
		return value.Null(), store.IOErrorf(err, "stat %q", fullpath)
	}
	bin := value.NewBinary(mimeTypeFor(fullpath), info.Size(), info.ModTime(), "", func() (io.ReadCloser, error) {
		return os.Open(fullpath)
	})
	return value.FromBinary(bin), nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context, p fspath.Path) (value.Value, bool, error) {
	if p.IsIndex() {
		dirPath := s.fsPath(p)
		l, err := s.readListing(dirPath)
		if err != nil {
			if os.IsNotExist(err) {
				return value.Null(), false, nil
			}
			return value.Null(), false, store.IOErrorf(err, "reading %q", dirPath)
		}
		return store.NewIndex(l.dirs, l.objs), true, nil
	}

	fullpath, ext, found := s.resolveLeaf(p)
	if !found {
		return value.Null(), false, nil
	}
	if ext == "" || !format.IsStructured(ext) {
		v, err := s.loadBinary(fullpath)
		return v, err == nil, err
	}
	data, err := os.ReadFile(fullpath)
	if err != nil {
		return value.Null(), false, store.IOErrorf(err, "reading %q", fullpath)
	}
	v, err := format.Decode(ext, data)
	if err != nil {
		return value.Null(), false, store.FormatErrorf(err, "decoding %q", fullpath)
	}
	return v, true, nil
}

// LoadAll implements store.Store: a depth-first, lexicographically
// ordered filesystem walk starting at prefix (inclusive).
func (s *Store) LoadAll(ctx context.Context, prefix fspath.Path) iter.Seq2[fspath.Path, value.Value] {
	return func(yield func(fspath.Path, value.Value) bool) {
		var walk func(p fspath.Path) bool
		walk = func(p fspath.Path) bool {
			v, ok, err := s.Load(ctx, p)
			if err != nil {
				s.logger.WithField("path", p.String()).Warnf("dir store: load_all skipping entry: %v", err)
				return true
			}
			if !ok {
				return true
			}
			if !yield(p, v) {
				return false
			}
			if !p.IsIndex() {
				return true
			}
			d, _ := v.Dict()
			type child struct {
				name    string
				isIndex bool
			}
			var children []child
			for _, name := range store.IndexNames(d, store.DirectoriesKey) {
				children = append(children, child{name, true})
			}
			for _, name := range store.IndexNames(d, store.ObjectsKey) {
				children = append(children, child{name, false})
			}
			sort.SliceStable(children, func(i, j int) bool { return children[i].name < children[j].name })
			for _, c := range children {
				if !walk(p.Child(c.name, c.isIndex)) {
					return false
				}
			}
			return true
		}
		walk(prefix)
	}
}

// Store implements store.Store with an atomic write-temp-then-rename.
func (s *Store) Store(ctx context.Context, p fspath.Path, v value.Value) error {
	if s.readOnly {
		return store.NotWritablef("dir store %q is read-only", s.id)
	}
	if p.IsIndex() {
		return os.MkdirAll(s.fsPath(p), 0o755)
	}

	dir := s.fsPath(p.Parent())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return store.IOErrorf(err, "creating %q", dir)
	}

	if bin, ok := v.Binary(); ok {
		rc, err := bin.Open()
		if err != nil {
			return store.IOErrorf(err, "opening binary payload for %q", p)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return store.IOErrorf(err, "reading binary payload for %q", p)
		}
		return s.atomicWrite(filepath.Join(dir, p.Name()), data)
	}

	_, ext, found := s.resolveLeaf(p)
	if !found || ext == "" {
		ext = "json"
	}
	data, err := format.Encode(ext, v)
	if err != nil {
		return store.FormatErrorf(err, "encoding %q", p)
	}
	return s.atomicWrite(filepath.Join(dir, p.Name()+"."+ext), data)
}

func (s *Store) atomicWrite(fullpath string, data []byte) error {
	dir := filepath.Dir(fullpath)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return store.IOErrorf(err, "creating temp file in %q", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return store.IOErrorf(err, "writing %q", fullpath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return store.IOErrorf(err, "closing %q", fullpath)
	}
	if err := os.Rename(tmpName, fullpath); err != nil {
		os.Remove(tmpName)
		return store.IOErrorf(err, "renaming into %q", fullpath)
	}
	s.invalidate(dir)
	return nil
}

// Remove implements store.Store, recursively for index paths.
func (s *Store) Remove(ctx context.Context, p fspath.Path) error {
	if s.readOnly {
		return store.NotWritablef("dir store %q is read-only", s.id)
	}
	if p.IsIndex() {
		dirPath := s.fsPath(p)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			return store.NotFoundf("path %q does not exist", p)
		}
		if err := os.RemoveAll(dirPath); err != nil {
			return store.IOErrorf(err, "removing %q", dirPath)
		}
		s.invalidate(filepath.Dir(dirPath))
		return nil
	}

	fullpath, _, found := s.resolveLeaf(p)
	if !found {
		return store.NotFoundf("path %q does not exist", p)
	}
	if err := os.Remove(fullpath); err != nil {
		return store.IOErrorf(err, "removing %q", fullpath)
	}
	s.invalidate(filepath.Dir(fullpath))
	return nil
}

func (s *Store) invalidate(dirPath string) {
	s.listings.Remove(dirPath)
}

// MountInfo implements store.Store.
func (s *Store) MountInfo() store.MountInfo {
	return store.MountInfo{ID: s.id, Type: store.TypeDirPlug, ReadOnly: s.readOnly}
}

// CacheClean drops the directory-listing cache. deep is accepted for
// symmetry with RootStorage.CacheClean; DirStore has no separate value
// cache to distinguish.
func (s *Store) CacheClean(deep bool) {
	s.listings.Purge()
}

// startWatching best-effort starts an fsnotify watcher over the root
// tree; failures are logged and the store falls back to mtime-only
// cache invalidation, which remains correct on its own.
func (s *Store) startWatching() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warnf("dir store %q: fsnotify unavailable, using mtime-only invalidation: %v", s.id, err)
		return
	}
	s.watchMu.Lock()
	s.watcher = w
	s.watchMu.Unlock()

	filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			s.watchDir(p)
		}
		return nil
	})

	go s.watchLoop(w)
}

func (s *Store) watchDir(dirPath string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil || s.watched[dirPath] {
		return
	}
	if err := s.watcher.Add(dirPath); err == nil {
		s.watched[dirPath] = true
	}
}

func (s *Store) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			dir := filepath.Dir(ev.Name)
			s.invalidate(dir)
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					s.watchDir(ev.Name)
				}
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
