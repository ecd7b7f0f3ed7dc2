// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package path implements the addressing scheme for the storage substrate.
//
// A Path is an ordered sequence of non-empty name components plus a flag
// marking whether it denotes an index (directory-like container) or a leaf
// (object or binary). The root path is the empty index path.
package path

import (
	"fmt"
	"strings"
)

// Separator is the component delimiter used by String and Parse.
const Separator = "/"

// Path is an immutable ordered sequence of name components.
type Path struct {
	names   []string
	isIndex bool
}

// Root returns the empty index path.
func Root() Path {
	return Path{isIndex: true}
}

// Parse splits s on Separator into a Path. A trailing separator (or the
// empty string) marks the result as an index path. Leading separators are
// ignored. Parse panics if any component is empty or contains Separator;
// callers addressing user-supplied strings should use ParsePath instead.
func Parse(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath splits s into a Path, validating each component.
func ParsePath(s string) (Path, error) {
	isIndex := s == "" || strings.HasSuffix(s, Separator)
	trimmed := strings.Trim(s, Separator)
	if trimmed == "" {
		return Path{isIndex: true}, nil
	}
	parts := strings.Split(trimmed, Separator)
	for _, name := range parts {
		if name == "" {
			return Path{}, fmt.Errorf("path: empty component in %q", s)
		}
	}
	return Path{names: parts, isIndex: isIndex}, nil
}

// New builds a Path from explicit components.
func New(isIndex bool, names ...string) (Path, error) {
	for _, n := range names {
		if n == "" {
			return Path{}, fmt.Errorf("path: empty component")
		}
		if strings.Contains(n, Separator) {
			return Path{}, fmt.Errorf("path: component %q contains separator", n)
		}
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return Path{names: cp, isIndex: isIndex}, nil
}

// IsRoot reports whether p is the empty index path.
func (p Path) IsRoot() bool {
	return len(p.names) == 0 && p.isIndex
}

// IsIndex reports whether p denotes an index (directory-like) path.
func (p Path) IsIndex() bool {
	return p.isIndex
}

// Len returns the number of name components.
func (p Path) Len() int {
	return len(p.names)
}

// NameAt returns the component at position i.
func (p Path) NameAt(i int) string {
	return p.names[i]
}

// Name returns the last component, or "" for the root path.
func (p Path) Name() string {
	if len(p.names) == 0 {
		return ""
	}
	return p.names[len(p.names)-1]
}

// Names returns a copy of the ordered name components.
func (p Path) Names() []string {
	cp := make([]string, len(p.names))
	copy(cp, p.names)
	return cp
}

// Parent returns the index path containing p. Parent of the root is the
// root itself.
func (p Path) Parent() Path {
	if len(p.names) == 0 {
		return Path{isIndex: true}
	}
	return Path{names: p.names[:len(p.names)-1], isIndex: true}
}

// Child returns the path for name under p, which must be an index path.
func (p Path) Child(name string, isIndex bool) Path {
	names := make([]string, len(p.names)+1)
	copy(names, p.names)
	names[len(p.names)] = name
	return Path{names: names, isIndex: isIndex}
}

// Descendant returns p with rel appended; rel's IsIndex flag carries
// through to the result.
func (p Path) Descendant(rel Path) Path {
	names := make([]string, 0, len(p.names)+len(rel.names))
	names = append(names, p.names...)
	names = append(names, rel.names...)
	return Path{names: names, isIndex: rel.isIndex}
}

// StartsWith reports whether prefix is a prefix of p (component-wise).
// Only the name components are compared; the IsIndex flags of p and
// prefix are ignored. Every path starts with the root.
func (p Path) StartsWith(prefix Path) bool {
	if len(prefix.names) > len(p.names) {
		return false
	}
	for i, n := range prefix.names {
		if p.names[i] != n {
			return false
		}
	}
	return true
}

// Relative returns the portion of p after prefix. Relative panics if
// prefix is not a prefix of p; callers should check StartsWith first.
func (p Path) Relative(prefix Path) Path {
	if !p.StartsWith(prefix) {
		panic(fmt.Sprintf("path: %q is not a prefix of %q", prefix, p))
	}
	names := make([]string, len(p.names)-len(prefix.names))
	copy(names, p.names[len(prefix.names):])
	return Path{names: names, isIndex: p.isIndex}
}

// Equal reports whether p and other have identical components and kind.
func (p Path) Equal(other Path) bool {
	if p.isIndex != other.isIndex || len(p.names) != len(other.names) {
		return false
	}
	for i, n := range p.names {
		if other.names[i] != n {
			return false
		}
	}
	return true
}

// String renders p using Separator, with a trailing separator for index
// paths (matching Parse's convention).
func (p Path) String() string {
	s := Separator + strings.Join(p.names, Separator)
	if p.isIndex && !p.IsRoot() {
		s += Separator
	}
	return s
}
