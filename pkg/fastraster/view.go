package fastraster

import (
	"fmt"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
	"github.com/mbardakoff/fastraster/internal/pipeline"
	"github.com/mbardakoff/fastraster/internal/viewpool"
)

// Rank4 and Rank8 select 4- or 8-connectivity for Engine.ConnectedComponents
// and View.Analyze.
const (
	Rank4 = featurecollection.Rank4
	Rank8 = featurecollection.Rank8
)

// View is a completed, consumer-owned view: the center tile at (Row, Col)
// plus its radius halo, backed by a pooled buffer the consumer must
// Release release_count_per_level times (once, under the default of 1).
type View[T Pixel] struct {
	req   *pipeline.ViewRequest
	entry *viewpool.Entry[T]
}

func newView[T Pixel](cv *pipeline.CompletedView[T]) *View[T] {
	return &View[T]{req: cv.Request, entry: cv.Entry}
}

// Row and Col report the center tile's grid coordinates.
func (v *View[T]) Row() int { return v.req.CenterRow }
func (v *View[T]) Col() int { return v.req.CenterCol }

// Radius reports the halo radius this view was requested with.
func (v *View[T]) Radius() int { return v.req.Radius }

// ViewHeight and ViewWidth report the view's total size, including halo.
func (v *View[T]) ViewHeight() int { return v.req.ViewHeight }
func (v *View[T]) ViewWidth() int  { return v.req.ViewWidth }

// TileHeight and TileWidth report the center tile's effective size,
// clipped at the image edge for the last row/column of tiles.
func (v *View[T]) TileHeight() int {
	return minInt(v.req.TileHeight, v.req.ImageHeight-v.req.CenterRow*v.req.TileHeight)
}

func (v *View[T]) TileWidth() int {
	return minInt(v.req.TileWidth, v.req.ImageWidth-v.req.CenterCol*v.req.TileWidth)
}

// GlobalYOffset and GlobalXOffset report the center tile's top-left pixel
// coordinates within the full image.
func (v *View[T]) GlobalYOffset() int { return v.req.CenterRow * v.req.TileHeight }
func (v *View[T]) GlobalXOffset() int { return v.req.CenterCol * v.req.TileWidth }

// Pixel returns the pixel at (row, col), where row ranges over
// [-radius, nominal_tile_height+radius) and col over
// [-radius, nominal_tile_width+radius) — the view buffer's physical
// extent. For the last row/column of tiles this range reaches past
// TileHeight()/TileWidth() (the clipped, in-image portion of the center
// tile); the excess is edge-replicated ghost data, not real image
// content, matching the buffer's fixed nominal size regardless of
// where the center tile falls in the image.
func (v *View[T]) Pixel(row, col int) (T, error) {
	radius := v.req.Radius
	th, tw := v.req.TileHeight, v.req.TileWidth

	if row < -radius || row >= th+radius || col < -radius || col >= tw+radius {
		var zero T
		return zero, newError(ErrOutOfBounds, "pixel",
			fmt.Errorf("(%d,%d) outside [-%d,%d)x[-%d,%d)", row, col, radius, th+radius, radius, tw+radius))
	}

	idx := (radius+row)*v.entry.Width + (radius + col)
	return v.entry.Data[idx], nil
}

// Release drops one reference to the view's buffer; the buffer returns to
// the pool on the release_count_per_level-th call (the first call, under
// the default of 1). Calling it more times than that is a caller bug (the
// buffer pool's reference count would underflow).
func (v *View[T]) Release() { v.entry.Release() }

// Analyze runs connected-component flood fill over this view's center
// tile, classifying pixels as foreground via the supplied predicate under
// 4- or 8-connectivity (featurecollection.Rank4 / Rank8). It relies on the
// view having been requested with radius >= 1 so that cross-tile
// adjacency can be detected; nextTag allocates unique blob identifiers
// within one analysis run (see featurecollection.TagAllocator).
func (v *View[T]) Analyze(foreground func(T) bool, rank int, nextTag func() int) ([]*featurecollection.Blob, []featurecollection.Merge) {
	return featurecollection.AnalyzeView(
		v.entry.Data, v.entry.Width, v.req.Radius,
		v.TileHeight(), v.TileWidth(),
		v.GlobalYOffset(), v.GlobalXOffset(),
		v.req.ImageHeight, v.req.ImageWidth,
		foreground, rank, nextTag,
	)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
