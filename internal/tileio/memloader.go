// Package tileio provides a demo/test-only TileReader implementation
// that decodes a single flat TIFF into memory and serves tiles by
// slicing. It is not the out-of-scope production tiled-TIFF codec: it
// has exactly one pyramid level, no on-disk tiling, and assumes the
// whole image fits in memory.
package tileio

import (
	"fmt"
	"image"
	"io"
	"time"

	"golang.org/x/image/tiff"

	"github.com/mbardakoff/fastraster/pkg/fastraster"
)

// MemoryLoader implements fastraster.TileReader[T] over a decoded
// in-memory image, tiled into tileHeight x tileWidth blocks on demand.
type MemoryLoader[T fastraster.Pixel] struct {
	img            image.Image
	height, width  int
	tileHeight     int
	tileWidth      int
	numTilesHeight int
	numTilesWidth  int
	sample         func(image.Image, int, int) T
}

// SampleFunc extracts a single pixel's value from img at (x, y) into T.
type SampleFunc[T fastraster.Pixel] func(img image.Image, x, y int) T

// GraySample extracts the gray channel of img at (x, y), suitable for T
// = uint8.
func GraySample(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	// average the 16-bit channels down to 8-bit gray.
	gray := (r + g + b) / 3
	return uint8(gray >> 8)
}

// NewMemoryLoader decodes r as a TIFF and returns a MemoryLoader tiled at
// tileHeight x tileWidth, using sample to extract each pixel's value.
func NewMemoryLoader[T fastraster.Pixel](r io.Reader, tileHeight, tileWidth int, sample SampleFunc[T]) (*MemoryLoader[T], error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("tileio: decode TIFF: %w", err)
	}

	bounds := img.Bounds()
	height, width := bounds.Dy(), bounds.Dx()

	return &MemoryLoader[T]{
		img:            img,
		height:         height,
		width:          width,
		tileHeight:     tileHeight,
		tileWidth:      tileWidth,
		numTilesHeight: (height + tileHeight - 1) / tileHeight,
		numTilesWidth:  (width + tileWidth - 1) / tileWidth,
		sample:         sample,
	}, nil
}

// ImageDimensions implements fastraster.TileReader.
func (m *MemoryLoader[T]) ImageDimensions(level int) (int, int, error) {
	if level != 0 {
		return 0, 0, fmt.Errorf("tileio: only level 0 is available")
	}
	return m.height, m.width, nil
}

// TileDimensions implements fastraster.TileReader.
func (m *MemoryLoader[T]) TileDimensions(level int) (int, int, error) {
	if level != 0 {
		return 0, 0, fmt.Errorf("tileio: only level 0 is available")
	}
	return m.tileHeight, m.tileWidth, nil
}

// NumLevels implements fastraster.TileReader.
func (m *MemoryLoader[T]) NumLevels() int { return 1 }

// BitsPerSample implements fastraster.TileReader. It reports a nominal
// 8 bits; MemoryLoader is a demo collaborator, not a format decoder.
func (m *MemoryLoader[T]) BitsPerSample() int { return 8 }

// DownscaleFactor implements fastraster.TileReader.
func (m *MemoryLoader[T]) DownscaleFactor(level int) (float64, error) {
	if level != 0 {
		return 0, fmt.Errorf("tileio: only level 0 is available")
	}
	return 1, nil
}

// ReadTile implements fastraster.TileReader by slicing the decoded image,
// zero-padding any portion of the tile that falls outside the image.
func (m *MemoryLoader[T]) ReadTile(dst []T, level, tileRow, tileCol int) (time.Duration, error) {
	start := time.Now()

	if level != 0 {
		return 0, fmt.Errorf("tileio: only level 0 is available")
	}
	if tileRow < 0 || tileRow >= m.numTilesHeight || tileCol < 0 || tileCol >= m.numTilesWidth {
		return 0, fmt.Errorf("tileio: tile (%d,%d) out of bounds", tileRow, tileCol)
	}

	rowStart := tileRow * m.tileHeight
	colStart := tileCol * m.tileWidth

	for r := 0; r < m.tileHeight; r++ {
		imgRow := rowStart + r
		for c := 0; c < m.tileWidth; c++ {
			imgCol := colStart + c
			var v T
			if imgRow < m.height && imgCol < m.width {
				v = m.sample(m.img, imgCol, imgRow)
			}
			dst[r*m.tileWidth+c] = v
		}
	}

	return time.Since(start), nil
}
