// Package ristretto provides the in-process hot tier for task records.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// approxRecordBytes is the assumed size of a serialized task record,
// used to size the admission counters.
const approxRecordBytes = 1024

// Cache holds task records in process memory with per-record TTL.
// Admission and eviction are cost-based, with cost = serialized size.
type Cache struct {
	records *ristretto.Cache[string, []byte]
}

// New creates a cache bounded at maxBytes of stored record data.
func New(maxBytes int64) (*Cache, error) {
	counters := maxBytes / approxRecordBytes * 10
	if counters < 1024 {
		counters = 1024
	}
	records, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{records: records}, nil
}

// Get returns the record for key, if present and not expired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, found := c.records.Get(key)
	return data, found, nil
}

// Set stores a record with the given TTL. Admission is best-effort;
// the durable tier below remains authoritative.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.records.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a record.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.records.Del(key)
	return nil
}

// Close releases the cache's background resources.
func (c *Cache) Close() {
	c.records.Close()
}
