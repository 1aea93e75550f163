package labeledtiff

import (
	"bytes"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
)

func blobFromPixels(tag int, pixels [][2]int) *featurecollection.Blob {
	b := featurecollection.NewBlob(tag)
	for _, p := range pixels {
		b.AddPixel(p[0], p[1])
	}
	return b
}

func buildCollection() *featurecollection.Collection {
	c := featurecollection.New(8, 8)
	c.Add(featurecollection.NewFeature(0, blobFromPixels(1, [][2]int{{1, 1}, {1, 2}, {2, 1}})))
	c.Add(featurecollection.NewFeature(1, blobFromPixels(2, [][2]int{{5, 5}, {5, 6}})))
	return c
}

func TestWrite_RejectsNonPowerOfTwoTileSize(t *testing.T) {
	c := buildCollection()
	var buf bytes.Buffer
	if err := Write(&buf, c, 8, 8, 3, 4, false); err == nil {
		t.Fatalf("expected an error for a non-power-of-two tile size")
	}
}

func TestWrite_ProducesDecodableTIFF(t *testing.T) {
	c := buildCollection()

	// 8x8 tiles: the decoder refuses tiles smaller than 8 pixels on a side.
	var buf bytes.Buffer
	if err := Write(&buf, c, 8, 8, 8, 8, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	img, err := tiff.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode written TIFF: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 8 || bounds.Dy() != 8 {
		t.Fatalf("expected an 8x8 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// (1,1) belongs to feature 0 (label 1); (0,0) is background (label 0).
	r, _, _, _ := img.At(1, 1).RGBA()
	if r == 0 {
		t.Fatalf("expected (1,1) to carry a nonzero label")
	}
	r, _, _, _ = img.At(0, 0).RGBA()
	if r != 0 {
		t.Fatalf("expected (0,0) to be background")
	}
}

func TestWrite_BinaryModeCapsLabelAtOne(t *testing.T) {
	c := buildCollection()
	var buf bytes.Buffer
	if err := Write(&buf, c, 8, 8, 4, 4, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if SampleWidth(1) != 8 {
		t.Fatalf("expected a binary mask to fit in 8 bits")
	}

	labels, maxLabel := rasterizeLabels(c, 8, 8, true)
	if maxLabel != 1 {
		t.Fatalf("expected binary mode to cap the maximum label at 1, got %d", maxLabel)
	}
	// (5,5) belongs to feature 1, which labeled mode would write as 2.
	if got := labels[5*8+5]; got != 1 {
		t.Fatalf("expected (5,5) to carry label 1 in binary mode, got %d", got)
	}
}
