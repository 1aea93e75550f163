package fastraster

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/mbardakoff/fastraster/internal/traversal"
)

// mosaicReader is a single-level, in-memory TileReader[uint8] whose tile
// (r, c) is uniformly 0 if (r+c) is even, else uniformly 255 — the
// checkerboard mosaic used in the end-to-end scenarios.
type mosaicReader struct {
	imageHeight, imageWidth int
	tileHeight, tileWidth   int
}

func (m *mosaicReader) ImageDimensions(level int) (int, int, error) {
	return m.imageHeight, m.imageWidth, nil
}
func (m *mosaicReader) TileDimensions(level int) (int, int, error) {
	return m.tileHeight, m.tileWidth, nil
}
func (m *mosaicReader) NumLevels() int                             { return 1 }
func (m *mosaicReader) BitsPerSample() int                         { return 8 }
func (m *mosaicReader) DownscaleFactor(level int) (float64, error) { return 1, nil }

func (m *mosaicReader) ReadTile(dst []uint8, level, tileRow, tileCol int) (time.Duration, error) {
	v := uint8(0)
	if (tileRow+tileCol)%2 != 0 {
		v = 255
	}
	for i := range dst {
		dst[i] = v
	}
	return time.Microsecond, nil
}

// stripedMosaicReader fills the whole image with horizontal stripes
// (every other row foreground, aligned the same way in every tile since
// the image height is an exact multiple of the tile height), giving a
// connected-component count derivable by inspection: each foreground row
// spans the full image width and is separated from its neighbors by a
// full background row, so it can never touch another foreground row
// under either 4- or 8-connectivity — every one of the 24 foreground
// rows in a 48-row image is therefore its own component, regardless of
// how the tile grid splits the image underneath.
type stripedMosaicReader struct {
	imageHeight, imageWidth int
	tileHeight, tileWidth   int
}

func (s *stripedMosaicReader) ImageDimensions(level int) (int, int, error) {
	return s.imageHeight, s.imageWidth, nil
}
func (s *stripedMosaicReader) TileDimensions(level int) (int, int, error) {
	return s.tileHeight, s.tileWidth, nil
}
func (s *stripedMosaicReader) NumLevels() int                             { return 1 }
func (s *stripedMosaicReader) BitsPerSample() int                         { return 8 }
func (s *stripedMosaicReader) DownscaleFactor(level int) (float64, error) { return 1, nil }

func (s *stripedMosaicReader) ReadTile(dst []uint8, level, tileRow, tileCol int) (time.Duration, error) {
	for r := 0; r < s.tileHeight; r++ {
		globalRow := tileRow*s.tileHeight + r
		v := uint8(0)
		if globalRow%2 == 0 {
			v = 255
		}
		for c := 0; c < s.tileWidth; c++ {
			dst[r*s.tileWidth+c] = v
		}
	}
	return time.Microsecond, nil
}

func TestEngine_ConnectedComponents_StripedMosaicAcrossTileGrid(t *testing.T) {
	reader := &stripedMosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	collection, err := eng.ConnectedComponents(0, func(v uint8) bool { return v == 255 }, Rank8)
	if err != nil {
		t.Fatalf("ConnectedComponents: %v", err)
	}

	if len(collection.Features) != 24 {
		t.Fatalf("expected 24 connected components (one per foreground row), got %d", len(collection.Features))
	}
	for _, f := range collection.Features {
		if f.BoundingBox.Height != 1 || f.BoundingBox.Width != collection.ImageWidth {
			t.Fatalf("feature %d: expected a full-width, single-row bounding box, got %dx%d", f.ID, f.BoundingBox.Height, f.BoundingBox.Width)
		}
	}
}

// TestEngine_ConnectedComponents_RejectsZeroRadius checks that a radius=0
// engine, a valid configuration for plain tile/view requests, is refused
// by ConnectedComponents rather than panicking on a negative view index
// when it tries to inspect a halo that doesn't exist.
func TestEngine_ConnectedComponents_RejectsZeroRadius(t *testing.T) {
	reader := &stripedMosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = eng.ConnectedComponents(0, func(v uint8) bool { return v == 255 }, Rank8)
	if err == nil {
		t.Fatalf("expected ConnectedComponents to reject radius=0")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

// TestEngine_PreserveOrder_RepeatsAcrossThreeTraversals drives three full
// diagonal traversals back to back (finish only on the last), as Scenario
// E requires, and checks that each block of emitted views matches
// traversal.Generate(Diagonal, ...) exactly — see DESIGN.md's note on why
// this is the property actually enforced in place of Scenario E's
// row/column monotonicity gloss, which does not describe diagonal order.
func TestEngine_PreserveOrder_RepeatsAcrossThreeTraversals(t *testing.T) {
	reader := &mosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Configure(&Options{
		PreserveOrder:        true,
		NumParallelViews:     50,
		NumCachedTiles:       4,
		NumTileLoaders:       4,
		TraversalType:        "diagonal",
		FillType:             "edge_replicate",
		ReleaseCountPerLevel: 1,
		Log:                  DefaultOptions().Log,
		Export:               DefaultOptions().Export,
	}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := eng.RequestAllTiles(0, i == 2); err != nil {
			t.Fatalf("RequestAllTiles[%d]: %v", i, err)
		}
	}

	want := traversal.Generate(traversal.Diagonal, 3, 4)

	var got []traversal.Coord
	for {
		view, err := eng.NextViewBlocking()
		if err != nil {
			t.Fatalf("NextViewBlocking: %v", err)
		}
		if view == nil {
			break
		}
		got = append(got, traversal.Coord{Row: view.Row(), Col: view.Col()})
		view.Release()
	}
	eng.WaitForComplete()

	if len(got) != 3*len(want) {
		t.Fatalf("expected %d views across 3 traversals, got %d", 3*len(want), len(got))
	}

	for traversalIdx := 0; traversalIdx < 3; traversalIdx++ {
		block := got[traversalIdx*len(want) : (traversalIdx+1)*len(want)]
		for i, c := range want {
			if block[i] != c {
				t.Fatalf("traversal %d, view %d: got (%d,%d), want (%d,%d)", traversalIdx, i, block[i].Row, block[i].Col, c.Row, c.Col)
			}
		}
	}
}

func TestEngine_ScenarioA_MosaicMeanStdev(t *testing.T) {
	reader := &mosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := eng.RequestAllTiles(0, true); err != nil {
		t.Fatalf("RequestAllTiles: %v", err)
	}

	var sum, sumSq float64
	var n int
	views := 0

	for {
		view, err := eng.NextViewBlocking()
		if err != nil {
			t.Fatalf("NextViewBlocking: %v", err)
		}
		if view == nil {
			break
		}
		views++

		th, tw := view.TileHeight(), view.TileWidth()
		for r := 0; r < th; r++ {
			for c := 0; c < tw; c++ {
				px, err := view.Pixel(r, c)
				if err != nil {
					t.Fatalf("Pixel(%d,%d): %v", r, c, err)
				}
				v := float64(px)
				sum += v
				sumSq += v * v
				n++
			}
		}
		view.Release()
	}

	eng.WaitForComplete()

	if views != 12 {
		t.Fatalf("expected 12 views, got %d", views)
	}
	if n != reader.imageHeight*reader.imageWidth {
		t.Fatalf("expected %d pixels visited, got %d", reader.imageHeight*reader.imageWidth, n)
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	stdev := math.Sqrt(variance)

	if math.Abs(mean-115.6) > 0.1 {
		t.Fatalf("expected mean ~115.6, got %v", mean)
	}
	if math.Abs(stdev-126.9) > 0.1 {
		t.Fatalf("expected stdev ~126.9, got %v", stdev)
	}
}

func TestEngine_ScenarioB_SingleTileWithRadius(t *testing.T) {
	reader := &mosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 14)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := eng.RequestTile(0, 2, 3, true); err != nil {
		t.Fatalf("RequestTile: %v", err)
	}

	view, err := eng.NextViewBlocking()
	if err != nil {
		t.Fatalf("NextViewBlocking: %v", err)
	}
	if view == nil {
		t.Fatalf("expected a view")
	}
	defer view.Release()

	cases := []struct {
		row, col int
		want     uint8
	}{
		{-14, -14, 255},
		{-14, 0, 0},
		{0, 0, 255},
		{16, 16, 255},
	}
	for _, tc := range cases {
		got, err := view.Pixel(tc.row, tc.col)
		if err != nil {
			t.Fatalf("Pixel(%d,%d): %v", tc.row, tc.col, err)
		}
		if got != tc.want {
			t.Fatalf("Pixel(%d,%d) = %d, want %d", tc.row, tc.col, got, tc.want)
		}
	}
}

func TestEngine_ScenarioF_SingleSlotCacheStillCompletes(t *testing.T) {
	reader := &mosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Configure(&Options{
		NumParallelViews:     1,
		NumCachedTiles:       1,
		NumTileLoaders:       1,
		TraversalType:        "snake",
		FillType:             "edge_replicate",
		ReleaseCountPerLevel: 1,
		Log:                  DefaultOptions().Log,
		Export:               DefaultOptions().Export,
	}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := eng.RequestAllTiles(0, true); err != nil {
		t.Fatalf("RequestAllTiles: %v", err)
	}

	views := 0
	for {
		view, err := eng.NextViewBlocking()
		if err != nil {
			t.Fatalf("NextViewBlocking: %v", err)
		}
		if view == nil {
			break
		}
		views++
		view.Release()
	}
	eng.WaitForComplete()

	if views != 12 {
		t.Fatalf("expected 12 views, got %d", views)
	}

	hits, misses := eng.HitMiss(0)
	if misses == 0 {
		t.Fatalf("expected every access to be a miss with a 1-slot cache")
	}
	if hits != 0 {
		t.Fatalf("expected no hits with a 1-slot cache and non-repeating requests, got %d", hits)
	}
}

// stripedReader produces a pixel-level checkerboard (foreground where
// globalRow+globalCol is even), used to exercise connected-component
// analysis across tile boundaries: under rank8, every foreground cell's
// diagonal neighbors are also foreground, so the whole checkerboard color
// forms a single connected blob regardless of how the tile grid splits it.
type stripedReader struct {
	imageHeight, imageWidth int
	tileHeight, tileWidth   int
}

func (s *stripedReader) ImageDimensions(level int) (int, int, error) {
	return s.imageHeight, s.imageWidth, nil
}
func (s *stripedReader) TileDimensions(level int) (int, int, error) {
	return s.tileHeight, s.tileWidth, nil
}
func (s *stripedReader) NumLevels() int                             { return 1 }
func (s *stripedReader) BitsPerSample() int                         { return 8 }
func (s *stripedReader) DownscaleFactor(level int) (float64, error) { return 1, nil }

func (s *stripedReader) ReadTile(dst []uint8, level, tileRow, tileCol int) (time.Duration, error) {
	for r := 0; r < s.tileHeight; r++ {
		globalRow := tileRow*s.tileHeight + r
		for c := 0; c < s.tileWidth; c++ {
			globalCol := tileCol*s.tileWidth + c
			v := uint8(0)
			if (globalRow+globalCol)%2 == 0 {
				v = 255
			}
			dst[r*s.tileWidth+c] = v
		}
	}
	return time.Microsecond, nil
}

func TestEngine_ConnectedComponents_CheckerboardMergesAcrossTiles(t *testing.T) {
	reader := &stripedReader{imageHeight: 8, imageWidth: 8, tileHeight: 4, tileWidth: 4}
	eng, err := Open[uint8](reader, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	collection, err := eng.ConnectedComponents(0, func(v uint8) bool { return v == 255 }, 8)
	if err != nil {
		t.Fatalf("ConnectedComponents: %v", err)
	}

	// Every foreground cell of the checkerboard is 8-connected to its
	// diagonal neighbors across the whole 8x8 image, so all foreground
	// pixels merge into one blob.
	if len(collection.Features) != 1 {
		t.Fatalf("expected 1 merged feature across tile boundaries, got %d", len(collection.Features))
	}
	want := collection.ImageWidth * (collection.ImageHeight / 2)
	var got int
	for row := 0; row < collection.ImageHeight; row++ {
		for col := 0; col < collection.ImageWidth; col++ {
			if collection.FeatureAt(row, col) != nil {
				got++
			}
		}
	}
	if got != want {
		t.Fatalf("expected %d foreground pixels classified, got %d", want, got)
	}
}

// TestEngine_PreserveOrder_MatchesDiagonalTraversal checks that, with
// preserve_order enabled, the sequence of emitted views equals the
// sequence of (row, col) pairs the diagonal traversal enumerates, even
// though, with four tile loaders working in parallel, views may complete
// out of that order.
func TestEngine_PreserveOrder_MatchesDiagonalTraversal(t *testing.T) {
	reader := &mosaicReader{imageHeight: 48, imageWidth: 50, tileHeight: 16, tileWidth: 16}
	eng, err := Open[uint8](reader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Configure(&Options{
		PreserveOrder:        true,
		NumParallelViews:     12,
		NumCachedTiles:       4,
		NumTileLoaders:       4,
		TraversalType:        "diagonal",
		FillType:             "edge_replicate",
		ReleaseCountPerLevel: 1,
		Log:                  DefaultOptions().Log,
		Export:               DefaultOptions().Export,
	}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := eng.RequestAllTiles(0, true); err != nil {
		t.Fatalf("RequestAllTiles: %v", err)
	}

	want := traversal.Generate(traversal.Diagonal, 3, 4)

	var got []traversal.Coord
	for {
		view, err := eng.NextViewBlocking()
		if err != nil {
			t.Fatalf("NextViewBlocking: %v", err)
		}
		if view == nil {
			break
		}
		got = append(got, traversal.Coord{Row: view.Row(), Col: view.Col()})
		view.Release()
	}
	eng.WaitForComplete()

	if len(got) != len(want) {
		t.Fatalf("expected %d views, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("view %d: got (%d,%d), want (%d,%d)", i, got[i].Row, got[i].Col, want[i].Row, want[i].Col)
		}
	}
}

// TestEngine_ConnectedComponents_WiresLabeledMaskAndPreview exercises the
// Engine-level convenience wrappers over the labeled-mask TIFF writer and
// the PNG preview renderer against a real connected-component run.
func TestEngine_ConnectedComponents_WiresLabeledMaskAndPreview(t *testing.T) {
	reader := &stripedReader{imageHeight: 8, imageWidth: 8, tileHeight: 4, tileWidth: 4}
	eng, err := Open[uint8](reader, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	collection, err := eng.ConnectedComponents(0, func(v uint8) bool { return v == 255 }, 8)
	if err != nil {
		t.Fatalf("ConnectedComponents: %v", err)
	}

	var tiff bytes.Buffer
	if err := eng.WriteLabeledMask(&tiff, collection, 4, 4, false); err != nil {
		t.Fatalf("WriteLabeledMask: %v", err)
	}
	if tiff.Len() == 0 {
		t.Fatalf("expected non-empty labeled-mask TIFF output")
	}

	png, err := eng.RenderPreview(collection)
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if len(png) == 0 {
		t.Fatalf("expected non-empty preview PNG output")
	}
}

func TestEngine_ExportCollection_CachesSerializedPayload(t *testing.T) {
	reader := &stripedReader{imageHeight: 8, imageWidth: 8, tileHeight: 4, tileWidth: 4}
	eng, err := Open[uint8](reader, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	collection, err := eng.ConnectedComponents(0, func(v uint8) bool { return v == 255 }, 8)
	if err != nil {
		t.Fatalf("ConnectedComponents: %v", err)
	}

	first, err := eng.ExportCollection(collection)
	if err != nil {
		t.Fatalf("ExportCollection: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected a non-empty serialized payload")
	}

	second, err := eng.ExportCollection(collection)
	if err != nil {
		t.Fatalf("ExportCollection (cached): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected the cached export to match the first serialization byte-for-byte")
	}

	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
