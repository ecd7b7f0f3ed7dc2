// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

import (
	"time"

	"github.com/rapidcontext/substrate/path"
)

// Type classifies what a Metadata's Path addresses.
type Type string

const (
	// TypeIndex marks a directory-like container.
	TypeIndex Type = "index"
	// TypeObject marks a structured leaf (Dict/Array/scalar).
	TypeObject Type = "object"
	// TypeBinary marks a leaf backed by a byte blob.
	TypeBinary Type = "binary"
)

// Metadata describes an existing path without loading its payload.
type Metadata struct {
	Path          path.Path
	Type          Type
	MimeType      string
	Size          int64
	LastModified  time.Time
	ETag          string
	OriginMountID string
}
