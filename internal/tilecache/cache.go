// Package tilecache bounds the number of resident tile buffers behind a
// coordinate-addressed LRU, guaranteeing that a tile is read from disk at
// most once per residency even when many workers request it concurrently.
package tilecache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

type coordKey struct {
	row, col int
}

// CachedTile is one slot in the cache. Its data buffer is fixed at
// tileHeight*tileWidth elements for the lifetime of the cache and is
// reused across residencies; only the coordinates and Fresh flag change
// on recycle.
type CachedTile[T any] struct {
	mu sync.Mutex

	row, col int
	fresh    bool
	data     []T
}

// Row and Col report which tile coordinate this entry currently holds.
// Callers must hold the lock obtained from GetLockedTile while reading
// them or the Data buffer.
func (t *CachedTile[T]) Row() int { return t.row }
func (t *CachedTile[T]) Col() int { return t.col }

// Fresh reports whether the entry's buffer has not yet been populated for
// its current coordinates. The caller is expected to read from disk and
// call ClearFresh before copying out, or simply copy out if not fresh.
func (t *CachedTile[T]) Fresh() bool { return t.fresh }

// ClearFresh marks the buffer as populated.
func (t *CachedTile[T]) ClearFresh() { t.fresh = false }

// Data returns the tile's pixel buffer, row-major, tileHeight*tileWidth
// elements.
func (t *CachedTile[T]) Data() []T { return t.data }

// Unlock releases the entry so other workers can observe and use it.
func (t *CachedTile[T]) Unlock() { t.mu.Unlock() }

// Cache is a fixed-capacity, coordinate-addressed store of tile buffers
// with LRU eviction, per-entry locking, and hit/miss/disk-time counters.
// The zero value is not usable; construct with New.
type Cache[T any] struct {
	mu sync.Mutex

	numTilesHeight, numTilesWidth int
	tileHeight, tileWidth         int
	capacity                      int

	lru      *lru.LRU[coordKey, *CachedTile[T]]
	freePool []*CachedTile[T]

	evicted *CachedTile[T]

	hits, misses int64

	// diskTimeNanos is charged by AddDiskTime, which callers may invoke
	// while still holding a CachedTile's lock (see TileLoader.Run); it
	// must never require c.mu, or it reverses GetLockedTile's c.mu ->
	// tile.mu acquisition order and deadlocks against a concurrent
	// GetLockedTile on the same coordinate.
	diskTimeNanos int64
}

// New allocates the coordinate→entry map sized for a grid of
// numTilesHeight x numTilesWidth tiles of tileHeight x tileWidth pixels,
// and pre-allocates capacity tile buffers into a free pool. If capacity is
// 0, it defaults to 2*numTilesWidth (matching the image's row stride);
// the result is clipped to the total tile count.
func New[T any](numTilesHeight, numTilesWidth, tileHeight, tileWidth, capacity int) (*Cache[T], error) {
	if numTilesHeight <= 0 || numTilesWidth <= 0 || tileHeight <= 0 || tileWidth <= 0 {
		return nil, fmt.Errorf("tilecache: invalid grid %dx%d of %dx%d tiles", numTilesHeight, numTilesWidth, tileHeight, tileWidth)
	}

	total := numTilesHeight * numTilesWidth
	if capacity == 0 {
		capacity = 2 * numTilesWidth
	}
	if capacity > total {
		capacity = total
	}
	if capacity < 1 {
		capacity = 1
	}

	c := &Cache[T]{
		numTilesHeight: numTilesHeight,
		numTilesWidth:  numTilesWidth,
		tileHeight:     tileHeight,
		tileWidth:      tileWidth,
		capacity:       capacity,
	}

	l, err := lru.NewLRU[coordKey, *CachedTile[T]](capacity, func(_ coordKey, value *CachedTile[T]) {
		c.evicted = value
	})
	if err != nil {
		return nil, fmt.Errorf("tilecache: %w", err)
	}
	c.lru = l

	c.freePool = make([]*CachedTile[T], capacity)
	for i := range c.freePool {
		c.freePool[i] = &CachedTile[T]{
			fresh: true,
			data:  make([]T, tileHeight*tileWidth),
		}
	}

	return c, nil
}

// GetLockedTile returns a locked tile entry for (row, col), blocking until
// it can acquire the entry's lock. If the tile is resident its recency is
// refreshed and a hit is recorded; otherwise a free buffer (or, failing
// that, the least-recently-used entry) is recycled for the new
// coordinates and a miss is recorded. The caller must call Unlock when
// done and must not retain the returned pointer past that call.
func (c *Cache[T]) GetLockedTile(row, col int) (*CachedTile[T], error) {
	if row < 0 || row >= c.numTilesHeight || col < 0 || col >= c.numTilesWidth {
		return nil, fmt.Errorf("tilecache: tile (%d,%d) out of bounds %dx%d", row, col, c.numTilesHeight, c.numTilesWidth)
	}

	key := coordKey{row, col}

	c.mu.Lock()
	if tile, ok := c.lru.Get(key); ok {
		c.hits++
		tile.mu.Lock()
		c.mu.Unlock()
		return tile, nil
	}
	c.misses++

	var tile *CachedTile[T]
	if n := len(c.freePool); n > 0 {
		tile = c.freePool[n-1]
		c.freePool = c.freePool[:n-1]
	} else {
		c.evicted = nil
		if _, _, ok := c.lru.RemoveOldest(); !ok || c.evicted == nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("tilecache: no entry available to recycle")
		}
		tile = c.evicted
		c.evicted = nil
	}

	// Take the entry's lock before rebinding it: a recycled LRU victim may
	// still be held by a worker copying out of it.
	tile.mu.Lock()
	tile.row, tile.col = row, col
	tile.fresh = true
	c.lru.Add(key, tile)
	c.mu.Unlock()

	return tile, nil
}

// AddDiskTime charges d to the cache's cumulative disk-read time counter.
// It does not take c.mu, so it is safe to call while holding a CachedTile's
// lock, matching the original C++ FigCache::addTimeDisk's unlocked counter.
func (c *Cache[T]) AddDiskTime(d time.Duration) {
	atomic.AddInt64(&c.diskTimeNanos, int64(d))
}

// HitMiss returns the cumulative hit and miss counts.
func (c *Cache[T]) HitMiss() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// DiskTime returns the cumulative time spent inside ReadTile calls.
func (c *Cache[T]) DiskTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&c.diskTimeNanos))
}

// Len reports the number of currently resident entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Capacity reports the configured maximum number of resident entries.
func (c *Cache[T]) Capacity() int { return c.capacity }
