// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package value

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"
)

// Binary is an addressable byte blob. Open may be called more than once
// and each call must yield an independent reader over the same content.
type Binary struct {
	MimeType     string
	Size         int64
	LastModified time.Time
	SHA256       string

	open func() (io.ReadCloser, error)
}

// NewBinary builds a Binary around an opener function, typically backed
// by a file or an archive entry.
func NewBinary(mimeType string, size int64, lastModified time.Time, sha256sum string, open func() (io.ReadCloser, error)) *Binary {
	return &Binary{
		MimeType:     mimeType,
		Size:         size,
		LastModified: lastModified,
		SHA256:       sha256sum,
		open:         open,
	}
}

// NewBinaryFromBytes builds an in-memory Binary, computing its SHA-256
// digest eagerly.
func NewBinaryFromBytes(mimeType string, data []byte, lastModified time.Time) *Binary {
	sum := sha256.Sum256(data)
	return &Binary{
		MimeType:     mimeType,
		Size:         int64(len(data)),
		LastModified: lastModified,
		SHA256:       hex.EncodeToString(sum[:]),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Open returns a new reader over the blob's content. Callers must Close
// the returned reader.
func (b *Binary) Open() (io.ReadCloser, error) {
	return b.open()
}

// Equal reports whether two Binary values describe the same content by
// digest, size and MIME type; it does not read either blob's bytes.
func (b *Binary) Equal(other *Binary) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.SHA256 == other.SHA256 && b.Size == other.Size && b.MimeType == other.MimeType
}
