package featurecollection

import (
	"bufio"
	"fmt"
	"io"
)

// Collection is the finalized, user-visible set of features extracted
// from one image, plus the image dimensions they were extracted against.
type Collection struct {
	ImageHeight, ImageWidth int
	Features                []*Feature
}

// New creates an empty collection for an image of the given dimensions.
func New(imageHeight, imageWidth int) *Collection {
	return &Collection{ImageHeight: imageHeight, ImageWidth: imageWidth}
}

// Add appends a feature to the collection.
func (c *Collection) Add(f *Feature) { c.Features = append(c.Features, f) }

// FeatureAt returns the first feature whose bitmask contains (row, col),
// or nil if none does. This is a linear scan over every feature's
// bounding box and bitmask; the AABB-tree spatial index a production
// deployment would use for this query is out of scope for this module and
// is described only as an interface.
func (c *Collection) FeatureAt(row, col int) *Feature {
	for _, f := range c.Features {
		if f.IsInBitMask(row, col) {
			return f
		}
	}
	return nil
}

// Serialize writes the collection in the normative ASCII, whitespace
// separated format:
//
//	image_height image_width num_features
//	for each feature:
//	  id num_bitmask_words
//	  ul_row ul_col br_row br_col
//	  word_0 word_1 ... word_{num_bitmask_words-1}
func (c *Collection) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%d %d %d\n", c.ImageHeight, c.ImageWidth, len(c.Features)); err != nil {
		return fmt.Errorf("featurecollection: serialize header: %w", err)
	}

	for _, f := range c.Features {
		bb := f.BoundingBox
		if _, err := fmt.Fprintf(bw, "%d %d\n", f.ID, len(f.BitMask)); err != nil {
			return fmt.Errorf("featurecollection: serialize feature %d: %w", f.ID, err)
		}
		if _, err := fmt.Fprintf(bw, "%d %d %d %d\n", bb.UpperLeftRow, bb.UpperLeftCol, bb.BottomRightRow(), bb.BottomRightCol()); err != nil {
			return fmt.Errorf("featurecollection: serialize feature %d bbox: %w", f.ID, err)
		}
		for i, word := range f.BitMask {
			sep := " "
			if i == len(f.BitMask)-1 {
				sep = "\n"
			}
			if _, err := fmt.Fprintf(bw, "%d%s", word, sep); err != nil {
				return fmt.Errorf("featurecollection: serialize feature %d bitmask: %w", f.ID, err)
			}
		}
		if len(f.BitMask) == 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Deserialize reads a collection previously written by Serialize. The
// stream is read in the same order it was written and must be bit-exact.
func Deserialize(r io.Reader) (*Collection, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("featurecollection: deserialize: %w", err)
			}
			return "", fmt.Errorf("featurecollection: deserialize: unexpected end of stream")
		}
		return sc.Text(), nil
	}
	nextInt := func() (int, error) {
		tok, err := next()
		if err != nil {
			return 0, err
		}
		var v int
		if _, err := fmt.Sscanf(tok, "%d", &v); err != nil {
			return 0, fmt.Errorf("featurecollection: deserialize: malformed integer %q: %w", tok, err)
		}
		return v, nil
	}

	height, err := nextInt()
	if err != nil {
		return nil, err
	}
	width, err := nextInt()
	if err != nil {
		return nil, err
	}
	numFeatures, err := nextInt()
	if err != nil {
		return nil, err
	}

	c := New(height, width)

	for i := 0; i < numFeatures; i++ {
		id, err := nextInt()
		if err != nil {
			return nil, err
		}
		numWords, err := nextInt()
		if err != nil {
			return nil, err
		}
		ulRow, err := nextInt()
		if err != nil {
			return nil, err
		}
		ulCol, err := nextInt()
		if err != nil {
			return nil, err
		}
		brRow, err := nextInt()
		if err != nil {
			return nil, err
		}
		brCol, err := nextInt()
		if err != nil {
			return nil, err
		}

		mask := make([]uint32, numWords)
		for w := 0; w < numWords; w++ {
			v, err := nextInt()
			if err != nil {
				return nil, err
			}
			mask[w] = uint32(v)
		}

		c.Add(&Feature{
			ID: uint32(id),
			BoundingBox: BoundingBox{
				UpperLeftRow: ulRow,
				UpperLeftCol: ulCol,
				Height:       brRow - ulRow,
				Width:        brCol - ulCol,
			},
			BitMask: mask,
		})
	}

	return c, nil
}
