// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package config parses a plug-in's plugin.<ext> configuration document
// (spec §6) into a value.Dict, dispatching on file extension the same
// way store/dir and store/zip select a structured leaf format.
package config

import (
	"path/filepath"

	"github.com/rapidcontext/substrate/format"
	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// Parse decodes data, a plugin.<ext> document named filename, into a
// Dict. The format is selected by filename's extension.
func Parse(filename string, data []byte) (*value.Dict, error) {
	ext := format.Ext(filepath.Ext(filename))
	if !format.IsStructured(ext) {
		return nil, store.FormatErrorf(nil, "%q: unrecognized plugin config extension", filename)
	}
	v, err := format.Decode(ext, data)
	if err != nil {
		return nil, store.FormatErrorf(err, "parsing %q", filename)
	}
	d, ok := v.Dict()
	if !ok {
		return nil, store.FormatErrorf(nil, "%q: config document is not an object", filename)
	}
	return d, nil
}

// ID extracts and validates the required id field (spec §6, §7
// ValidationError on missing/blank id).
func ID(d *value.Dict) (string, error) {
	v, ok := d.Get("id")
	if !ok {
		return "", store.ValidationErrorf("plugin config is missing required field %q", "id")
	}
	s, ok := v.Str()
	if !ok || s == "" {
		return "", store.ValidationErrorf("plugin config field %q must be a non-empty string", "id")
	}
	return s, nil
}

// IsLegacy reports whether a plugin config's platform field marks it as
// a legacy bundle: absent, blank, or differing from hostPlatform (spec
// §9 "version check semantics").
func IsLegacy(d *value.Dict, hostPlatform string) bool {
	v, ok := d.Get("platform")
	if !ok {
		return true
	}
	s, ok := v.Str()
	if !ok || s == "" {
		return true
	}
	return s != hostPlatform
}
