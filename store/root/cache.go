// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package root

import (
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rapidcontext/substrate/store"
	"github.com/rapidcontext/substrate/value"
)

// metadataCache is the "Metadata & caching" component named by spec §2:
// an embedded, persistent cache of Lookup results so repeated overlay
// resolution does not re-walk every mount. Keyed by the addressed path's
// string form. Path itself is not serialized (badger/json round-trips
// poorly through its unexported fields); it is restored from the lookup
// key on read.
type metadataCache struct {
	db *badger.DB
}

// cachedMetadata is the serializable projection of value.Metadata.
type cachedMetadata struct {
	Type          value.Type
	MimeType      string
	Size          int64
	LastModified  time.Time
	ETag          string
	OriginMountID string
}

// newMetadataCache opens a badger database at dir. An empty dir opens an
// in-memory instance, used by default and by tests.
func newMetadataCache(dir string) (*metadataCache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, store.IOErrorf(err, "opening metadata cache")
	}
	return &metadataCache{db: db}, nil
}

func (c *metadataCache) get(key string) (*value.Metadata, bool) {
	var cm cachedMetadata
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &cm) })
	})
	if err != nil {
		return nil, false
	}
	return &value.Metadata{
		Type:          cm.Type,
		MimeType:      cm.MimeType,
		Size:          cm.Size,
		LastModified:  cm.LastModified,
		ETag:          cm.ETag,
		OriginMountID: cm.OriginMountID,
	}, true
}

func (c *metadataCache) set(key string, md *value.Metadata) {
	cm := cachedMetadata{
		Type:          md.Type,
		MimeType:      md.MimeType,
		Size:          md.Size,
		LastModified:  md.LastModified,
		ETag:          md.ETag,
		OriginMountID: md.OriginMountID,
	}
	data, err := json.Marshal(cm)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error { return txn.Set([]byte(key), data) })
}

func (c *metadataCache) invalidate(key string) {
	_ = c.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) })
}

func (c *metadataCache) dropAll() error {
	return c.db.DropAll()
}

func (c *metadataCache) close() error {
	return c.db.Close()
}
