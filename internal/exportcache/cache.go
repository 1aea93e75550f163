// Package exportcache caches serialized FeatureCollection payloads so that
// repeated exports of the same analysis result skip re-encoding.
package exportcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
)

// Config controls the underlying bigcache instance.
type Config struct {
	SizeMB int
	TTL    time.Duration
}

// Cache stores serialized FeatureCollection payloads keyed by a content
// fingerprint of the collection they were produced from.
type Cache struct {
	store *bigcache.BigCache
}

// New creates an export cache.
func New(cfg Config) (*Cache, error) {
	bcConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.TTL,
		CleanWindow:        cfg.TTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       4 * 1024 * 1024,
		HardMaxCacheSize:   cfg.SizeMB,
		Verbose:            false,
	}

	store, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, fmt.Errorf("exportcache: create store: %w", err)
	}

	return &Cache{store: store}, nil
}

// Fingerprint derives a content-addressed key for a collection from its
// image dimensions, feature count, and each feature's id, bounding box and
// bitmask words — the same inputs that determine the bytes Serialize would
// produce, without having to serialize first.
func Fingerprint(c *featurecollection.Collection) string {
	h := sha256.New()
	var buf [8]byte

	putInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	putInt(c.ImageHeight)
	putInt(c.ImageWidth)
	putInt(len(c.Features))

	for _, f := range c.Features {
		putInt(int(f.ID))
		bb := f.BoundingBox
		putInt(bb.UpperLeftRow)
		putInt(bb.UpperLeftCol)
		putInt(bb.Height)
		putInt(bb.Width)
		putInt(len(f.BitMask))
		for _, word := range f.BitMask {
			putInt(int(word))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached serialized payload for key, if present.
func (c *Cache) Get(key string) ([]byte, bool) {
	data, err := c.store.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// GetOrSerialize returns the cached payload for collection's fingerprint,
// serializing and storing it on a miss.
func (c *Cache) GetOrSerialize(collection *featurecollection.Collection) ([]byte, error) {
	key := Fingerprint(collection)

	if data, ok := c.Get(key); ok {
		return data, nil
	}

	var buf bytes.Buffer
	if err := collection.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("exportcache: serialize: %w", err)
	}

	payload := buf.Bytes()
	if err := c.store.Set(key, payload); err != nil {
		return nil, fmt.Errorf("exportcache: store: %w", err)
	}

	return payload, nil
}

// Stats reports current cache occupancy.
func (c *Cache) Stats() (len, capacityBytes int) {
	return c.store.Len(), c.store.Capacity()
}

// Close releases resources held by the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}
