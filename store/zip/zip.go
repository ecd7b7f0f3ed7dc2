// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package zip implements store.Store over a ZIP archive (spec §4.1.3).
// The central directory is indexed once at open time; byte streams are
// served by reopening the archive on every read. Always read-only.
package zip

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"iter"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rapidcontext/substrate/format"
	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

var structuredExts = []string{"json", "yaml", "yml", "properties", "xml"}

// legacyPluginNames are the root-level entry names the compatibility shim
// relocates to /plugin/<id><ext> (spec §4.1.3, §4.4).
var legacyPluginNames = []string{"plugin.properties", "plugin.yaml", "plugin.yml", "plugin.json", "plugin.xml"}

type entry struct {
	archiveName string // full path within the zip, "" for a directory node
	size        int64
	modTime     time.Time
}

type node struct {
	isIndex  bool
	children map[string]*node
	ext      string // resolved structured extension, "" for raw binary
	entry    entry
}

// Store is a read-only store.Store backed by a ZIP archive.
type Store struct {
	id          string
	archivePath string
	root        *node
}

// New opens archivePath, reads its central directory once, and returns a
// Store indexed by it. pluginID, if non-empty, enables the legacy
// plugin.<ext> root-entry relocation shim, rewriting it to
// /plugin/<pluginID><ext>.
func New(id, archivePath, pluginID string) (*Store, error) {
	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, store.IOErrorf(err, "opening zip %q", archivePath)
	}
	defer rc.Close()

	root := &node{isIndex: true, children: map[string]*node{}}
	for _, f := range rc.File {
		name := f.Name
		if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			continue
		}
		name = relocate(name, pluginID)
		insert(root, name, entry{archiveName: f.Name, size: int64(f.UncompressedSize64), modTime: f.Modified})
	}
	return &Store{id: id, archivePath: archivePath, root: root}, nil
}

var _ store.Store = (*Store)(nil)

func relocate(name, pluginID string) string {
	if pluginID == "" {
		return name
	}
	for _, legacy := range legacyPluginNames {
		if name == legacy {
			ext := strings.TrimPrefix(legacy, "plugin")
			return "plugin/" + pluginID + ext
		}
	}
	return name
}

func insert(root *node, fullName string, e entry) {
	parts := strings.Split(fullName, "/")
	cur := root
	for i, part := range parts {
		last := i == len(parts)-1
		if !last {
			next, ok := cur.children[part]
			if !ok || !next.isIndex {
				next = &node{isIndex: true, children: map[string]*node{}}
				cur.children[part] = next
			}
			cur = next
			continue
		}
		displayName, ext := splitStructured(part)
		cur.children[displayName] = &node{ext: ext, entry: e}
	}
}

func splitStructured(name string) (display, ext string) {
	for _, e := range structuredExts {
		if strings.HasSuffix(name, "."+e) {
			return strings.TrimSuffix(name, "."+e), e
		}
	}
	return name, ""
}

func (s *Store) walk(p fspath.Path) *node {
	cur := s.root
	for i := 0; i < p.Len(); i++ {
		if cur.children == nil {
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

func mimeTypeFor(name string) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		return "application/octet-stream"
	}
	return t
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

func (s *Store) metadataFor(p fspath.Path, n *node) *value.Metadata {
	md := &value.Metadata{Path: p, OriginMountID: s.id, LastModified: n.entry.modTime}
	if n.isIndex {
		md.Type = value.TypeIndex
		return md
	}
	md.ETag = fmt.Sprintf("%d-%d", n.entry.modTime.UnixNano(), n.entry.size)
	if n.ext == "" {
		md.Type = value.TypeBinary
		md.MimeType = mimeTypeFor(n.entry.archiveName)
		md.Size = n.entry.size
	} else {
		md.Type = value.TypeObject
	}
	return md
}

func (s *Store) readEntry(archiveName string) ([]byte, error) {
	rc, err := zip.OpenReader(s.archivePath)
	if err != nil {
		return nil, store.IOErrorf(err, "reopening zip %q", s.archivePath)
	}
	defer rc.Close()
	for _, f := range rc.File {
		if f.Name != archiveName {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil, store.IOErrorf(err, "opening entry %q", archiveName)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, store.IOErrorf(err, "reading entry %q", archiveName)
		}
		return data, nil
	}
	return nil, store.NotFoundf("entry %q not found in %q", archiveName, s.archivePath)
}

type archiveReader struct {
	entry   io.ReadCloser
	archive *zip.ReadCloser
}

func (r *archiveReader) Read(p []byte) (int, error) { return r.entry.Read(p) }

func (r *archiveReader) Close() error {
	err := r.entry.Close()
	if cerr := r.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Store) openEntry(archiveName string) (io.ReadCloser, error) {
	archive, err := zip.OpenReader(s.archivePath)
	if err != nil {
		return nil, store.IOErrorf(err, "reopening zip %q", s.archivePath)
	}
	for _, f := range archive.File {
		if f.Name != archiveName {
			continue
		}
		r, err := f.Open()
		if err != nil {
			archive.Close()
			return nil, store.IOErrorf(err, "opening entry %q", archiveName)
		}
		return &archiveReader{entry: r, archive: archive}, nil
	}
	archive.Close()
	return nil, store.NotFoundf("entry %q not found in %q", archiveName, s.archivePath)
}

// Lookup implements store.Store.
func (s *Store) Lookup(_ context.Context, p fspath.Path) (*value.Metadata, error) {
	n := s.walk(p)
	if n == nil || n.isIndex != p.IsIndex() {
		return nil, nil
	}
	return s.metadataFor(p, n), nil
}

// Load implements store.Store.
func (s *Store) Load(_ context.Context, p fspath.Path) (value.Value, bool, error) {
	n := s.walk(p)
	if n == nil || n.isIndex != p.IsIndex() {
		return value.Null(), false, nil
	}
	if n.isIndex {
		return indexValue(n), true, nil
	}
	if n.ext == "" {
		size, modTime := n.entry.size, n.entry.modTime
		archiveName := n.entry.archiveName
		bin := value.NewBinary(mimeTypeFor(archiveName), size, modTime, "", func() (io.ReadCloser, error) {
			return s.openEntry(archiveName)
		})
		return value.FromBinary(bin), true, nil
	}
	data, err := s.readEntry(n.entry.archiveName)
	if err != nil {
		return value.Null(), false, err
	}
	v, err := format.Decode(n.ext, data)
	if err != nil {
		return value.Null(), false, store.FormatErrorf(err, "decoding %q", n.entry.archiveName)
	}
	return v, true, nil
}

// LoadAll implements store.Store: a depth-first, lexicographically
// ordered walk starting at prefix (inclusive).
func (s *Store) LoadAll(ctx context.Context, prefix fspath.Path) iter.Seq2[fspath.Path, value.Value] {
	return func(yield func(fspath.Path, value.Value) bool) {
		var walk func(p fspath.Path, n *node) bool
		walk = func(p fspath.Path, n *node) bool {
			v, ok, err := s.Load(ctx, p)
			if err != nil || !ok {
				return true
			}
			if !yield(p, v) {
				return false
			}
			if !n.isIndex {
				return true
			}
			names := make([]string, 0, len(n.children))
			for name := range n.children {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				child := n.children[name]
				if !walk(p.Child(name, child.isIndex), child) {
					return false
				}
			}
			return true
		}
		start := s.walk(prefix)
		if start == nil {
			return
		}
		walk(prefix, start)
	}
}

// Store implements store.Store. ZipStore is always read-only.
func (s *Store) Store(_ context.Context, p fspath.Path, _ value.Value) error {
	return store.NotWritablef("zip store %q is read-only", s.id)
}

// Remove implements store.Store. ZipStore is always read-only.
func (s *Store) Remove(_ context.Context, p fspath.Path) error {
	return store.NotWritablef("zip store %q is read-only", s.id)
}

// MountInfo implements store.Store.
func (s *Store) MountInfo() store.MountInfo {
	return store.MountInfo{ID: s.id, Type: store.TypeZipPlug, ReadOnly: true}
}
