// Package pipeline implements the view-serving dataflow: ViewLoader
// decomposes a ViewRequest into TileRequests, TileLoader workers resolve
// each TileRequest against the shared tile cache, and ViewCounter
// assembles completed views and fills their ghost halo.
package pipeline

import (
	"fmt"

	"github.com/mbardakoff/fastraster/internal/viewpool"
)

// ViewRequest describes one view the caller wants: a center tile at
// (CenterRow, CenterCol) on the given pyramid level, plus a Radius pixel
// halo. Construction precomputes every piece of index arithmetic the
// pipeline stages need, following the same formulas the reference image
// library uses so halo boundaries land on exactly the same pixels.
type ViewRequest struct {
	Level                int
	CenterRow, CenterCol int
	Radius               int

	TileHeight, TileWidth         int
	ImageHeight, ImageWidth       int
	NumTilesHeight, NumTilesWidth int

	ViewHeight, ViewWidth int

	IndexRowMinTile, IndexRowMaxTile int
	IndexColMinTile, IndexColMaxTile int

	MinRowFile, MaxRowFile int
	MinColFile, MaxColFile int

	TopFill, BottomFill int
	LeftFill, RightFill int
	NumberOfTilesToLoad int

	// Traversal is the enumeration index this request was issued at,
	// used by the ordering layer to recognize the expected next view.
	Traversal int
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NewViewRequest builds a ViewRequest for the given center tile and
// radius. It returns an error if the center tile coordinates are outside
// the tile grid.
func NewViewRequest(level, centerRow, centerCol, radius, tileHeight, tileWidth, imageHeight, imageWidth, numTilesHeight, numTilesWidth int) (*ViewRequest, error) {
	if centerRow < 0 || centerRow >= numTilesHeight || centerCol < 0 || centerCol >= numTilesWidth {
		return nil, fmt.Errorf("pipeline: center tile (%d,%d) out of bounds %dx%d", centerRow, centerCol, numTilesHeight, numTilesWidth)
	}
	if radius < 0 {
		return nil, fmt.Errorf("pipeline: radius must be >= 0, got %d", radius)
	}

	vr := &ViewRequest{
		Level:          level,
		CenterRow:      centerRow,
		CenterCol:      centerCol,
		Radius:         radius,
		TileHeight:     tileHeight,
		TileWidth:      tileWidth,
		ImageHeight:    imageHeight,
		ImageWidth:     imageWidth,
		NumTilesHeight: numTilesHeight,
		NumTilesWidth:  numTilesWidth,
		ViewHeight:     tileHeight + 2*radius,
		ViewWidth:      tileWidth + 2*radius,
	}

	minRowCentralTile := centerRow * tileHeight
	minColCentralTile := centerCol * tileWidth

	vr.IndexRowMinTile = maxInt(centerRow-ceilDiv(radius, tileHeight), 0)
	vr.IndexRowMaxTile = minInt(centerRow+ceilDiv(radius, tileHeight)+1, numTilesHeight)
	vr.IndexColMinTile = maxInt(centerCol-ceilDiv(radius, tileWidth), 0)
	vr.IndexColMaxTile = minInt(centerCol+ceilDiv(radius, tileWidth)+1, numTilesWidth)

	vr.MinRowFile = maxInt(minRowCentralTile-radius, 0)
	vr.MaxRowFile = minInt((centerRow+1)*tileHeight+radius, imageHeight)
	vr.MinColFile = maxInt(minColCentralTile-radius, 0)
	vr.MaxColFile = minInt((centerCol+1)*tileWidth+radius, imageWidth)

	rowFilledFromFile := vr.MaxRowFile - vr.MinRowFile
	colFilledFromFile := vr.MaxColFile - vr.MinColFile

	if minRowCentralTile-radius < 0 {
		vr.TopFill = radius - minRowCentralTile
	}
	if vr.TopFill+rowFilledFromFile < vr.ViewHeight {
		vr.BottomFill = vr.ViewHeight - (vr.TopFill + rowFilledFromFile)
	}
	if minColCentralTile-radius < 0 {
		vr.LeftFill = radius - minColCentralTile
	}
	if vr.LeftFill+colFilledFromFile < vr.ViewWidth {
		vr.RightFill = vr.ViewWidth - (vr.LeftFill + colFilledFromFile)
	}

	vr.NumberOfTilesToLoad = (vr.IndexRowMaxTile - vr.IndexRowMinTile) * (vr.IndexColMaxTile - vr.IndexColMinTile)

	return vr, nil
}

// TileRequest is derived from a ViewRequest for one tile overlapping the
// requested view. View is the pooled buffer entry the tile's pixels must
// be copied into.
type TileRequest[T any] struct {
	ViewRequest *ViewRequest
	View        *viewpool.Entry[T]

	TileRow, TileCol int

	SrcRow, SrcCol int
	DstRow, DstCol int
	Height, Width  int

	TopFill, BottomFill int
	LeftFill, RightFill int

	NumberOfTilesToLoad int
}
