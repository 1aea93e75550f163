package fastraster_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/mbardakoff/fastraster/internal/tileio"
	"github.com/mbardakoff/fastraster/pkg/fastraster"
)

// encodeGrayTIFF builds a tiny in-memory TIFF so this test can drive the
// engine against a real TileReader implementation (tileio.MemoryLoader)
// rather than a test-only stand-in, end to end.
func encodeGrayTIFF(t *testing.T, height, width int, fill func(x, y int) uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode TIFF: %v", err)
	}
	return buf.Bytes()
}

func TestEngine_WithMemoryLoader_DrainsEveryTile(t *testing.T) {
	data := encodeGrayTIFF(t, 8, 8, func(x, y int) uint8 { return uint8(y*8 + x) })

	loader, err := tileio.NewMemoryLoader[uint8](bytes.NewReader(data), 4, 4, tileio.GraySample)
	if err != nil {
		t.Fatalf("NewMemoryLoader: %v", err)
	}

	eng, err := fastraster.Open[uint8](loader, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := eng.RequestAllTiles(0, true); err != nil {
		t.Fatalf("RequestAllTiles: %v", err)
	}

	seen := 0
	for {
		view, err := eng.NextViewBlocking()
		if err != nil {
			t.Fatalf("NextViewBlocking: %v", err)
		}
		if view == nil {
			break
		}
		seen++
		view.Release()
	}
	eng.WaitForComplete()

	if seen != 4 {
		t.Fatalf("expected 4 views (2x2 tile grid), got %d", seen)
	}
}
