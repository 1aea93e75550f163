package featurecollection

// Merge records a deferred cross-tile adjacency: a pixel at the edge of
// blob's owning tile is foreground, and the pixel at (GlobalRow,
// GlobalCol) in the neighboring tile is also foreground, but that
// neighbor belongs to a tile this analyzer pass did not own and so was
// never visited. The merger resolves these edges after every tile has
// reported.
type Merge struct {
	Blob                 *Blob
	GlobalRow, GlobalCol int
}

// Rank4 and Rank8 select 4- or 8-connectivity for the flood fill.
const (
	Rank4 = 4
	Rank8 = 8
)

var neighbors4 = []struct{ dr, dc int }{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
var neighbors8 = append(append([]struct{ dr, dc int }{}, neighbors4...),
	struct{ dr, dc int }{-1, -1}, struct{ dr, dc int }{-1, 1},
	struct{ dr, dc int }{1, -1}, struct{ dr, dc int }{1, 1},
)

// AnalyzeView runs one tile's flood fill over a completed view's center
// tile. data is the view buffer (viewWidth-stride, radius-extended on
// every side); Foreground classifies a raw pixel value as foreground or
// background. tileHeight/tileWidth are the tile's effective (possibly
// edge-clipped) dimensions; globalRowOffset/globalColOffset locate the
// tile's top-left corner in image coordinates; imageHeight/imageWidth
// bound the whole image so edge tiles never emit a merge edge toward a
// nonexistent neighbor. nextTag allocates a fresh blob tag per new
// component. radius must be >= 1 so every tile pixel's neighbors,
// including those one pixel into an adjacent tile, are present in data.
func AnalyzeView[T any](
	data []T, viewWidth, radius int,
	tileHeight, tileWidth int,
	globalRowOffset, globalColOffset int,
	imageHeight, imageWidth int,
	foreground func(T) bool,
	rank int,
	nextTag func() int,
) (blobs []*Blob, merges []Merge) {
	neighbors := neighbors4
	if rank == Rank8 {
		neighbors = neighbors8
	}

	at := func(localRow, localCol int) T {
		return data[(radius+localRow)*viewWidth+(radius+localCol)]
	}
	inTile := func(r, c int) bool {
		return r >= 0 && r < tileHeight && c >= 0 && c < tileWidth
	}

	visited := make([]bool, tileHeight*tileWidth)
	type pt struct{ r, c int }

	for startRow := 0; startRow < tileHeight; startRow++ {
		for startCol := 0; startCol < tileWidth; startCol++ {
			idx := startRow*tileWidth + startCol
			if visited[idx] || !foreground(at(startRow, startCol)) {
				continue
			}

			blob := NewBlob(nextTag())
			visited[idx] = true
			stack := []pt{{startRow, startCol}}

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				blob.AddPixel(globalRowOffset+p.r, globalColOffset+p.c)

				for _, n := range neighbors {
					nr, nc := p.r+n.dr, p.c+n.dc
					if !inTile(nr, nc) {
						continue
					}
					ni := nr*tileWidth + nc
					if !visited[ni] && foreground(at(nr, nc)) {
						visited[ni] = true
						stack = append(stack, pt{nr, nc})
					}
				}

				// A tile only ever records a merge edge toward its right/bottom
				// neighbor (plus, under rank8, the two forward corners); the
				// neighbor on the opposite side of the adjacency records
				// nothing, so each physical inter-tile boundary is recorded
				// exactly once.
				r, c := p.r, p.c

				if r+1 == tileHeight && globalRowOffset+r+1 != imageHeight {
					if foreground(at(r+1, c)) {
						merges = append(merges, Merge{Blob: blob, GlobalRow: globalRowOffset + r + 1, GlobalCol: globalColOffset + c})
					}
				}
				if c+1 == tileWidth && globalColOffset+c+1 != imageWidth {
					if foreground(at(r, c+1)) {
						merges = append(merges, Merge{Blob: blob, GlobalRow: globalRowOffset + r, GlobalCol: globalColOffset + c + 1})
					}
				}
				if rank == Rank8 {
					if (c == tileWidth-1 || r == tileHeight-1) &&
						globalRowOffset+r+1 != imageHeight && globalColOffset+c+1 != imageWidth {
						if foreground(at(r+1, c+1)) {
							merges = append(merges, Merge{Blob: blob, GlobalRow: globalRowOffset + r + 1, GlobalCol: globalColOffset + c + 1})
						}
					}
					if (r == 0 || c == tileWidth-1) &&
						globalRowOffset+r > 0 && globalColOffset+c+1 != imageWidth {
						if foreground(at(r-1, c+1)) {
							merges = append(merges, Merge{Blob: blob, GlobalRow: globalRowOffset + r - 1, GlobalCol: globalColOffset + c + 1})
						}
					}
				}
			}

			blobs = append(blobs, blob)
		}
	}

	return blobs, merges
}
