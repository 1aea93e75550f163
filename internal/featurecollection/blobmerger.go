package featurecollection

import (
	"sync"
	"sync/atomic"
)

// TagAllocator hands out unique, monotonically increasing blob tags
// scoped to a single analysis run, rather than a process-global counter —
// so re-running the analyzer within the same process does not leak state
// between runs.
type TagAllocator struct {
	next atomic.Int64
}

// Next returns the next unused tag.
func (a *TagAllocator) Next() int { return int(a.next.Add(1)) }

// Merger accumulates the blobs and merge edges reported by every tile's
// analyzer pass, then resolves cross-tile adjacencies once every tile has
// reported.
type Merger struct {
	mu sync.Mutex

	total    int
	reported int

	blobs  []*Blob
	merges []Merge
}

// NewMerger creates a merger expecting reports from total tiles/views.
func NewMerger(total int) *Merger {
	return &Merger{total: total}
}

// Submit records one tile's analysis result. It returns true once every
// expected report has arrived, at which point Finish may be called.
func (m *Merger) Submit(blobs []*Blob, merges []Merge) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs = append(m.blobs, blobs...)
	m.merges = append(m.merges, merges...)
	m.reported++

	return m.reported >= m.total
}

// Finish resolves every merge edge via union-find over global pixel
// coordinates, then consolidates each equivalence class into the single
// blob with the largest pixel count. It must be called only after Submit
// has reported completion, and must be called at most once.
func (m *Merger) Finish() []*Blob {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.merges {
		target := m.findBlobContaining(e.GlobalRow, e.GlobalCol)
		if target != nil && target != e.Blob {
			union(e.Blob, target)
		}
	}

	groups := make(map[*Blob][]*Blob)
	for _, b := range m.blobs {
		root := b.find()
		groups[root] = append(groups[root], b)
	}

	result := make([]*Blob, 0, len(groups))
	for _, members := range groups {
		survivor := members[0]
		for _, b := range members[1:] {
			if b.count > survivor.count {
				survivor = b
			}
		}
		for _, b := range members {
			if b != survivor {
				survivor = survivor.MergeAndDelete(b)
			}
		}
		result = append(result, survivor)
	}

	return result
}

// findBlobContaining linearly scans every accumulated blob for one whose
// sparse pixel set contains (row, col). This mirrors the reference
// merger, which has no spatial index over blobs at this stage — only the
// finalized FeatureCollection gets one, and that index is out of scope
// here.
func (m *Merger) findBlobContaining(row, col int) *Blob {
	for _, b := range m.blobs {
		if b.BoundingBox().Contains(row, col) && b.IsPixelInBlob(row, col) {
			return b
		}
	}
	return nil
}
