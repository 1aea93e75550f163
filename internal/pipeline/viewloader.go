package pipeline

import (
	"github.com/mbardakoff/fastraster/internal/viewpool"
)

// ViewLoader acquires a view buffer for a ViewRequest and decomposes it
// into one TileRequest per overlapping tile, in row-major order over the
// request's tile index range.
type ViewLoader[T any] struct {
	Pool         *viewpool.Pool[T]
	ReleaseCount int
}

// Load blocks until a view buffer is available (or cancel fires, in which
// case the request is dropped and Load returns nil, nil — matching the
// reference pipeline's "drop silently on shutdown" semantics), then
// returns the TileRequests needed to fill it.
func (l *ViewLoader[T]) Load(req *ViewRequest, cancel <-chan struct{}) ([]*TileRequest[T], error) {
	entry, err := l.Pool.Acquire(l.ReleaseCount, cancel)
	if err != nil {
		return nil, nil
	}

	tiles := make([]*TileRequest[T], 0, req.NumberOfTilesToLoad)

	dstRow := req.TopFill
	for r := req.IndexRowMinTile; r < req.IndexRowMaxTile; r++ {
		tileRowStart := r * req.TileHeight
		tileRowEndFile := minInt(tileRowStart+req.TileHeight, req.ImageHeight)
		from := maxInt(req.MinRowFile, tileRowStart)
		to := minInt(req.MaxRowFile, tileRowEndFile)
		if to <= from {
			continue
		}
		srcRow := from - tileRowStart
		height := to - from

		dstCol := req.LeftFill
		for c := req.IndexColMinTile; c < req.IndexColMaxTile; c++ {
			tileColStart := c * req.TileWidth
			tileColEndFile := minInt(tileColStart+req.TileWidth, req.ImageWidth)
			cfrom := maxInt(req.MinColFile, tileColStart)
			cto := minInt(req.MaxColFile, tileColEndFile)
			if cto <= cfrom {
				continue
			}
			srcCol := cfrom - tileColStart
			width := cto - cfrom

			tiles = append(tiles, &TileRequest[T]{
				ViewRequest:         req,
				View:                entry,
				TileRow:             r,
				TileCol:             c,
				SrcRow:              srcRow,
				SrcCol:              srcCol,
				DstRow:              dstRow,
				DstCol:              dstCol,
				Height:              height,
				Width:               width,
				TopFill:             req.TopFill,
				BottomFill:          req.BottomFill,
				LeftFill:            req.LeftFill,
				RightFill:           req.RightFill,
				NumberOfTilesToLoad: req.NumberOfTilesToLoad,
			})

			dstCol += width
		}
		dstRow += height
	}

	return tiles, nil
}
