package featurecollection

import "math"

// Blob is a growing connected component, represented sparsely as a
// mapping from row to the set of columns present in that row, plus a
// bounding box and pixel count kept in sync with every AddPixel call. A
// Blob is also its own union-find node: Parent and Rank implement the
// disjoint-set structure the merger uses to consolidate blobs that touch
// across a tile boundary.
type Blob struct {
	Tag int

	minRow, minCol         int
	maxRowExcl, maxColExcl int
	count                  int
	rowCols                map[int]map[int]struct{}

	parent *Blob
	rank   int
}

// NewBlob creates an empty blob carrying the given tag, self-parented for
// union-find.
func NewBlob(tag int) *Blob {
	b := &Blob{
		Tag:        tag,
		minRow:     math.MaxInt32,
		minCol:     math.MaxInt32,
		maxRowExcl: math.MinInt32,
		maxColExcl: math.MinInt32,
		rowCols:    make(map[int]map[int]struct{}),
	}
	b.parent = b
	return b
}

// AddPixel records a pixel at global image coordinates (row, col),
// updating the bounding box and pixel count.
func (b *Blob) AddPixel(row, col int) {
	if row < b.minRow {
		b.minRow = row
	}
	if col < b.minCol {
		b.minCol = col
	}
	if row+1 > b.maxRowExcl {
		b.maxRowExcl = row + 1
	}
	if col+1 > b.maxColExcl {
		b.maxColExcl = col + 1
	}
	b.count++

	cols, ok := b.rowCols[row]
	if !ok {
		cols = make(map[int]struct{})
		b.rowCols[row] = cols
	}
	cols[col] = struct{}{}
}

// Count returns the number of pixels recorded in the blob.
func (b *Blob) Count() int { return b.count }

// BoundingBox returns the tight bounding box of the blob's pixels. Calling
// it on an empty blob is meaningless and returns a degenerate box.
func (b *Blob) BoundingBox() BoundingBox {
	if b.count == 0 {
		return BoundingBox{}
	}
	return BoundingBox{
		UpperLeftRow: b.minRow,
		UpperLeftCol: b.minCol,
		Height:       b.maxRowExcl - b.minRow,
		Width:        b.maxColExcl - b.minCol,
	}
}

// IsPixelInBlob reports whether (row, col) was recorded in the blob.
func (b *Blob) IsPixelInBlob(row, col int) bool {
	cols, ok := b.rowCols[row]
	if !ok {
		return false
	}
	_, ok = cols[col]
	return ok
}

// MergeAndDelete absorbs other into the blob with the larger pixel count
// (ties favor the receiver) and returns the surviving blob. The absorbed
// blob's sparse map and bounding box are folded into the survivor; the
// absorbed blob must not be used afterward.
func (b *Blob) MergeAndDelete(other *Blob) *Blob {
	survivor, absorbed := b, other
	if other.count > b.count {
		survivor, absorbed = other, b
	}

	for row, cols := range absorbed.rowCols {
		dst, ok := survivor.rowCols[row]
		if !ok {
			dst = make(map[int]struct{}, len(cols))
			survivor.rowCols[row] = dst
		}
		for c := range cols {
			dst[c] = struct{}{}
		}
	}

	if absorbed.minRow < survivor.minRow {
		survivor.minRow = absorbed.minRow
	}
	if absorbed.minCol < survivor.minCol {
		survivor.minCol = absorbed.minCol
	}
	if absorbed.maxRowExcl > survivor.maxRowExcl {
		survivor.maxRowExcl = absorbed.maxRowExcl
	}
	if absorbed.maxColExcl > survivor.maxColExcl {
		survivor.maxColExcl = absorbed.maxColExcl
	}
	survivor.count += absorbed.count

	return survivor
}

// find returns the representative blob of b's equivalence class, applying
// path compression along the way.
func (b *Blob) find() *Blob {
	if b.parent != b {
		b.parent = b.parent.find()
	}
	return b.parent
}

// union merges the equivalence classes of a and b by rank.
func union(a, b *Blob) {
	ra, rb := a.find(), b.find()
	if ra == rb {
		return
	}
	if ra.rank < rb.rank {
		ra, rb = rb, ra
	}
	rb.parent = ra
	if ra.rank == rb.rank {
		ra.rank++
	}
}
