// Package natskv provides the shared durable cache tier on a NATS
// JetStream key-value bucket. Records survive process restarts and age
// out via the bucket's TTL.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache stores records in a JetStream KV bucket. Keys must stay within
// the KV character set (letters, digits, `-`, `_`, `/`, `=`, `.`).
type Cache struct {
	bucket jetstream.KeyValue
}

// New wraps an existing KV bucket.
func New(bucket jetstream.KeyValue) *Cache {
	return &Cache{bucket: bucket}
}

// Get returns the record for key. A missing or aged-out key is a miss,
// not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set writes the record. The per-call TTL is ignored; expiry is the
// bucket's TTL, configured when the bucket is created.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.bucket.Put(ctx, key, value)
	return err
}

// Delete purges the key. Purge rather than Delete so churning task
// keys do not accumulate tombstone history in the bucket.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Purge(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
