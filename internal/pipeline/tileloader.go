package pipeline

import (
	"fmt"
	"time"

	"github.com/mbardakoff/fastraster/internal/tilecache"
)

// TileSource is the narrow surface TileLoader needs from a TileReader: one
// tile's pixels, populated by whatever level/coordinate is asked. A
// fastraster.TileReader[T] satisfies this structurally.
type TileSource[T any] interface {
	ReadTile(dst []T, level, tileRow, tileCol int) (time.Duration, error)
}

// TileLoader resolves a TileRequest against the shared cache, loading from
// disk on a miss, and copies the requested sub-rectangle into the
// destination view buffer.
type TileLoader[T any] struct {
	Cache  *tilecache.Cache[T]
	Source TileSource[T]
	Level  int
}

// Run obtains the locked cache entry for the request's tile, populates it
// from the source if fresh, copies the overlapping sub-rectangle into the
// view, and unlocks the entry before returning.
func (l *TileLoader[T]) Run(req *TileRequest[T]) error {
	tile, err := l.Cache.GetLockedTile(req.TileRow, req.TileCol)
	if err != nil {
		return fmt.Errorf("pipeline: tileloader: %w", err)
	}
	defer tile.Unlock()

	if tile.Fresh() {
		elapsed, err := l.Source.ReadTile(tile.Data(), l.Level, req.TileRow, req.TileCol)
		if err != nil {
			return fmt.Errorf("pipeline: tileloader: read tile (%d,%d): %w", req.TileRow, req.TileCol, err)
		}
		l.Cache.AddDiskTime(elapsed)
		tile.ClearFresh()
	}

	src := tile.Data()
	dst := req.View.Data
	srcStride := req.ViewRequest.TileWidth
	dstStride := req.View.Width

	for row := 0; row < req.Height; row++ {
		srcOff := (req.SrcRow+row)*srcStride + req.SrcCol
		dstOff := (req.DstRow+row)*dstStride + req.DstCol
		copy(dst[dstOff:dstOff+req.Width], src[srcOff:srcOff+req.Width])
	}

	return nil
}
