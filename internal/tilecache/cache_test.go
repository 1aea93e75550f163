package tilecache

import "testing"

func TestCache_HitThenMiss(t *testing.T) {
	c, err := New[uint8](3, 3, 4, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("firstAccessIsMiss", func(t *testing.T) {
		tile, err := c.GetLockedTile(0, 0)
		if err != nil {
			t.Fatalf("GetLockedTile: %v", err)
		}
		if !tile.Fresh() {
			t.Fatalf("expected fresh tile on first access")
		}
		tile.ClearFresh()
		tile.Unlock()

		if hits, misses := c.HitMiss(); hits != 0 || misses != 1 {
			t.Fatalf("expected 0 hits, 1 miss, got %d/%d", hits, misses)
		}
	})

	t.Run("secondAccessIsHit", func(t *testing.T) {
		tile, err := c.GetLockedTile(0, 0)
		if err != nil {
			t.Fatalf("GetLockedTile: %v", err)
		}
		if tile.Fresh() {
			t.Fatalf("expected resident tile to not be fresh")
		}
		tile.Unlock()

		if hits, misses := c.HitMiss(); hits != 1 || misses != 1 {
			t.Fatalf("expected 1 hit, 1 miss, got %d/%d", hits, misses)
		}
	})

	t.Run("evictsOnCapacityOne", func(t *testing.T) {
		tile, err := c.GetLockedTile(2, 2)
		if err != nil {
			t.Fatalf("GetLockedTile: %v", err)
		}
		tile.Unlock()

		tile, err = c.GetLockedTile(0, 0)
		if err != nil {
			t.Fatalf("GetLockedTile: %v", err)
		}
		if !tile.Fresh() {
			t.Fatalf("expected (0,0) to have been evicted and reloaded fresh")
		}
		tile.Unlock()

		if hits, misses := c.HitMiss(); hits != 1 || misses != 3 {
			t.Fatalf("expected 1 hit, 3 misses, got %d/%d", hits, misses)
		}
	})
}

func TestCache_OutOfBounds(t *testing.T) {
	c, err := New[uint8](2, 2, 4, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.GetLockedTile(2, 0); err == nil {
		t.Fatalf("expected error for out-of-bounds row")
	}
	if _, err := c.GetLockedTile(0, 2); err == nil {
		t.Fatalf("expected error for out-of-bounds col")
	}
}

func TestCache_DefaultCapacityClipped(t *testing.T) {
	// A 1x3 grid: the default 2*numTilesWidth = 6 exceeds the 3 tiles.
	c, err := New[uint8](1, 3, 4, 4, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := c.Capacity(), 3; got != want {
		t.Fatalf("expected capacity clipped to total tile count %d, got %d", want, got)
	}
}
