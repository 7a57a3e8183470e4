// Package kv wraps the embedded ordered key-value engine GraphLite
// persists everything over: bbolt, chosen because it gives
// byte-ordered buckets and atomic batch writes for free.
package kv

import (
	"fmt"
	"time"

	"graphlite/internal/gqlerr"

	bolt "go.etcd.io/bbolt"
)

// Tx and Bucket are re-exported so callers (internal/storage,
// internal/catalog) never import bbolt directly; the KV engine stays
// swappable in principle even though only one implementation exists.
type Tx = bolt.Tx
type Bucket = bolt.Bucket
type Cursor = bolt.Cursor

// ErrBucketNotFound is re-exported so callers can use errors.Is
// against DeleteBucket's sentinel without importing bbolt directly.
var ErrBucketNotFound = bolt.ErrBucketNotFound

// Engine owns the single on-disk database file for a GraphLite
// database directory ("On-disk layout").
type Engine struct {
	db   *bolt.DB
	path string
}

// Open opens (creating if absent) the KV engine's file under dir.
func Open(dir string) (*Engine, error) {
	path := dir + "/graphlite.db"
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, gqlerr.Wrap(gqlerr.StorageUnavailable, err, "open kv engine at %s", path)
	}
	return &Engine{db: db, path: path}, nil
}

// Close releases the engine's file handle.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "close kv engine")
	}
	return nil
}

// Update runs fn inside a writable batch; the batch commits atomically
// if fn returns nil, or is discarded entirely if fn returns an error
// ("writes are staged in a write batch; on commit the batch is
// applied atomically").
func (e *Engine) Update(fn func(tx *Tx) error) error {
	if err := e.db.Update(fn); err != nil {
		return classify(err)
	}
	return nil
}

// View runs fn inside a read-only snapshot.
func (e *Engine) View(fn func(tx *Tx) error) error {
	if err := e.db.View(fn); err != nil {
		return classify(err)
	}
	return nil
}

// EnsureBuckets creates any of the named top-level buckets that don't
// already exist. The storage and catalog packages call it for their
// top-level trees; per-(schema, graph) sub-buckets are created by the
// storage manager on first write.
func (e *Engine) EnsureBuckets(names ...[]byte) error {
	return e.Update(func(tx *Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// classify maps opaque bbolt/IO failures onto the stable taxonomy; a
// gqlerr.Error passed through already keeps its Kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*gqlerr.Error); ok {
		return ge
	}
	return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "kv engine I/O")
}

// Path returns the on-disk file path, for diagnostics.
func (e *Engine) Path() string { return e.path }
