// Package labeledtiff writes the optional labeled-mask output: a tiled,
// Deflate-compressed TIFF where every pixel holds feature_id+1 (or 1 for
// binary mode, 0 for background). This is the concrete encoder behind the
// "Labeled mask output" writer; the production tiled-TIFF codec used to
// populate real tiles from disk remains an external, out-of-scope
// collaborator.
package labeledtiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
)

const (
	compressionAdobeDeflate = 8
	photometricBlackIsZero  = 1
	sampleFormatUnsigned    = 1
)

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// SampleWidth selects the narrowest of {8, 16, 32} bits that can hold
// maxValue.
func SampleWidth(maxValue uint32) int {
	switch {
	case maxValue <= 0xFF:
		return 8
	case maxValue <= 0xFFFF:
		return 16
	default:
		return 32
	}
}

// Write encodes collection's features as a labeled mask (or, when binary
// is true, a 0/1 foreground mask) over an image of imageHeight x
// imageWidth pixels, tiled at tileHeight x tileWidth, and writes the
// resulting TIFF to w. Both tile dimensions must be a power of two.
func Write(w io.Writer, collection *featurecollection.Collection, imageHeight, imageWidth, tileHeight, tileWidth int, binary bool) error {
	if !isPowerOfTwo(tileHeight) || !isPowerOfTwo(tileWidth) {
		return fmt.Errorf("labeledtiff: tile size %dx%d must be a power of two", tileHeight, tileWidth)
	}

	labels, maxLabel := rasterizeLabels(collection, imageHeight, imageWidth, binary)

	bitsPerSample := SampleWidth(maxLabel)

	tilesAcross := (imageWidth + tileWidth - 1) / tileWidth
	tilesDown := (imageHeight + tileHeight - 1) / tileHeight
	numTiles := tilesAcross * tilesDown

	tileBytes := make([][]byte, numTiles)
	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			raw := packTile(labels, imageHeight, imageWidth, tileHeight, tileWidth, ty, tx, bitsPerSample)
			compressed, err := deflate(raw)
			if err != nil {
				return fmt.Errorf("labeledtiff: compress tile (%d,%d): %w", ty, tx, err)
			}
			tileBytes[ty*tilesAcross+tx] = compressed
		}
	}

	return writeTiff(w, imageHeight, imageWidth, tileHeight, tileWidth, bitsPerSample, tileBytes)
}

func rasterizeLabels(collection *featurecollection.Collection, imageHeight, imageWidth int, binary bool) (labels []uint32, maxLabel uint32) {
	labels = make([]uint32, imageHeight*imageWidth)
	if binary {
		maxLabel = 1
	}

	for _, f := range collection.Features {
		label := f.ID + 1
		if binary {
			label = 1
		}
		if label > maxLabel {
			maxLabel = label
		}

		bb := f.BoundingBox
		for row := bb.UpperLeftRow; row < bb.BottomRightRow(); row++ {
			if row < 0 || row >= imageHeight {
				continue
			}
			for col := bb.UpperLeftCol; col < bb.BottomRightCol(); col++ {
				if col < 0 || col >= imageWidth {
					continue
				}
				if f.IsInBitMask(row, col) {
					labels[row*imageWidth+col] = label
				}
			}
		}
	}

	return labels, maxLabel
}

// packTile extracts tile (ty, tx)'s samples in row-major order, padding
// out-of-image pixels with 0, and packs them big-endian at bitsPerSample
// width.
func packTile(labels []uint32, imageHeight, imageWidth, tileHeight, tileWidth, ty, tx, bitsPerSample int) []byte {
	bytesPerSample := bitsPerSample / 8
	buf := make([]byte, tileHeight*tileWidth*bytesPerSample)

	rowStart := ty * tileHeight
	colStart := tx * tileWidth

	for r := 0; r < tileHeight; r++ {
		imgRow := rowStart + r
		for c := 0; c < tileWidth; c++ {
			imgCol := colStart + c
			var v uint32
			if imgRow < imageHeight && imgCol < imageWidth {
				v = labels[imgRow*imageWidth+imgCol]
			}
			off := (r*tileWidth + c) * bytesPerSample
			switch bitsPerSample {
			case 8:
				buf[off] = byte(v)
			case 16:
				binary.BigEndian.PutUint16(buf[off:], uint16(v))
			case 32:
				binary.BigEndian.PutUint32(buf[off:], v)
			}
		}
	}

	return buf
}

// deflate compresses one tile as a zlib stream, the framing TIFF's Adobe
// Deflate compression (tag value 8) uses.
func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(raw); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type ifdEntry struct {
	tag      uint16
	fieldTyp uint16
	count    uint32
	value    uint32 // used directly when the value fits in 4 bytes
	extra    []byte // external data when it does not fit
}

const (
	typeShort = 3
	typeLong  = 4
)

// writeTiff assembles a single-IFD, big-endian, tiled TIFF with Adobe
// Deflate-compressed tile data.
func writeTiff(w io.Writer, imageHeight, imageWidth, tileHeight, tileWidth, bitsPerSample int, tiles [][]byte) error {
	numTiles := len(tiles)

	tileOffsets := make([]uint32, numTiles)
	tileByteCounts := make([]uint32, numTiles)

	entries := []ifdEntry{
		{tag: 256, fieldTyp: typeLong, count: 1, value: uint32(imageWidth)},
		{tag: 257, fieldTyp: typeLong, count: 1, value: uint32(imageHeight)},
		{tag: 258, fieldTyp: typeShort, count: 1, value: uint32(bitsPerSample) << 16},
		{tag: 259, fieldTyp: typeShort, count: 1, value: compressionAdobeDeflate << 16},
		{tag: 262, fieldTyp: typeShort, count: 1, value: photometricBlackIsZero << 16},
		{tag: 277, fieldTyp: typeShort, count: 1, value: 1 << 16},
		{tag: 322, fieldTyp: typeShort, count: 1, value: uint32(tileWidth) << 16},
		{tag: 323, fieldTyp: typeShort, count: 1, value: uint32(tileHeight) << 16},
		{tag: 324, fieldTyp: typeLong, count: uint32(numTiles)},
		{tag: 325, fieldTyp: typeLong, count: uint32(numTiles)},
		{tag: 339, fieldTyp: typeShort, count: 1, value: sampleFormatUnsigned << 16},
	}

	const headerSize = 8
	const entrySize = 12
	ifdHeaderSize := 2 + len(entries)*entrySize + 4

	// External blocks, in the order they will be laid out: tile offsets
	// array, tile byte counts array, then tile data itself. Compute their
	// placement before filling in the LONG-array entries' offsets.
	offsetsArrayAt := headerSize + ifdHeaderSize
	byteCountsArrayAt := offsetsArrayAt + numTiles*4
	tileDataStart := byteCountsArrayAt + numTiles*4

	cursor := tileDataStart
	for i, t := range tiles {
		tileOffsets[i] = uint32(cursor)
		tileByteCounts[i] = uint32(len(t))
		cursor += len(t)
	}

	for i := range entries {
		switch entries[i].tag {
		case 324:
			entries[i].value = uint32(offsetsArrayAt)
		case 325:
			entries[i].value = uint32(byteCountsArrayAt)
		}
	}

	bw := newByteWriter(w)

	// Header.
	bw.write([]byte("MM"))
	bw.uint16(42)
	bw.uint32(uint32(headerSize))

	// IFD.
	bw.uint16(uint16(len(entries)))
	for _, e := range entries {
		bw.uint16(e.tag)
		bw.uint16(e.fieldTyp)
		bw.uint32(e.count)
		bw.uint32(e.value)
	}
	bw.uint32(0) // no next IFD

	// Tile offsets / byte counts arrays.
	for _, v := range tileOffsets {
		bw.uint32(v)
	}
	for _, v := range tileByteCounts {
		bw.uint32(v)
	}

	// Tile data.
	for _, t := range tiles {
		bw.write(t)
	}

	return bw.err
}

type byteWriter struct {
	w   io.Writer
	err error
}

func newByteWriter(w io.Writer) *byteWriter { return &byteWriter{w: w} }

func (b *byteWriter) write(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *byteWriter) uint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.write(buf[:])
}

func (b *byteWriter) uint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.write(buf[:])
}
