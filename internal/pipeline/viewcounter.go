package pipeline

import (
	"sync"

	"github.com/mbardakoff/fastraster/internal/viewpool"
)

// TileCoord is a tile grid coordinate, used to describe traversal order to
// the ordering layer.
type TileCoord struct{ Row, Col int }

// CompletedView is a fully assembled view, handed to the consumer once
// every overlapping tile has arrived and the ghost halo (if any) has been
// filled.
type CompletedView[T any] struct {
	Request *ViewRequest
	Entry   *viewpool.Entry[T]
}

// ViewCounter tracks how many tiles have arrived for each in-flight view,
// fills the ghost halo when a view completes, and — when ordered mode is
// enabled — holds completed views back until they match the head of the
// traversal the caller enumerated, so output order mirrors request order
// without stalling the tile loaders.
type ViewCounter[T any] struct {
	mu sync.Mutex

	pending map[*ViewRequest]int

	ordered bool
	queues  [][]TileCoord
	current []TileCoord
	waiting []*CompletedView[T]

	out chan *CompletedView[T]
}

// NewViewCounter creates a counter that delivers completed views on out.
// When ordered is true, views are held until EnqueueTraversal has told the
// counter what order to expect them in.
func NewViewCounter[T any](ordered bool, out chan *CompletedView[T]) *ViewCounter[T] {
	return &ViewCounter[T]{
		pending: make(map[*ViewRequest]int),
		ordered: ordered,
		out:     out,
	}
}

// EnqueueTraversal registers one full traversal's tile coordinate
// sequence. Calls compose: a second EnqueueTraversal while the first is
// still being consumed queues behind it.
func (c *ViewCounter[T]) EnqueueTraversal(coords []TileCoord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil && len(c.waiting) == 0 {
		c.current = coords
		return
	}
	c.queues = append(c.queues, coords)
}

// Handle records the arrival of one tile for the view it belongs to. When
// the view is complete it fills the ghost halo and routes it to the
// output channel (immediately if unordered, or via the ordering logic
// above otherwise).
func (c *ViewCounter[T]) Handle(req *TileRequest[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	complete := req.NumberOfTilesToLoad == 1
	if !complete {
		key := req.ViewRequest
		remaining, ok := c.pending[key]
		if !ok {
			remaining = req.NumberOfTilesToLoad - 1
		} else {
			remaining--
		}
		if remaining <= 0 {
			delete(c.pending, key)
			complete = true
		} else {
			c.pending[key] = remaining
		}
	}
	if !complete {
		return
	}

	fillGhost(req.View.Data, req.ViewRequest.ViewHeight, req.ViewRequest.ViewWidth,
		req.TopFill, req.BottomFill, req.LeftFill, req.RightFill)

	cv := &CompletedView[T]{Request: req.ViewRequest, Entry: req.View}
	c.dataReady(cv)
}

func (c *ViewCounter[T]) dataReady(cv *CompletedView[T]) {
	if !c.ordered {
		c.out <- cv
		return
	}

	c.updateCurrentTraversal()
	if c.viewIsNext(cv) {
		c.current = c.current[1:]
		c.out <- cv
		c.handleStoredViews()
	} else {
		c.waiting = append(c.waiting, cv)
	}
}

func (c *ViewCounter[T]) updateCurrentTraversal() {
	for len(c.current) == 0 && len(c.queues) > 0 {
		c.current = c.queues[0]
		c.queues = c.queues[1:]
	}
}

func (c *ViewCounter[T]) viewIsNext(cv *CompletedView[T]) bool {
	if len(c.current) == 0 {
		return false
	}
	head := c.current[0]
	return head.Row == cv.Request.CenterRow && head.Col == cv.Request.CenterCol
}

// handleStoredViews re-scans the waiting list after every emission,
// since advancing the traversal head may unblock a view that arrived out
// of order earlier.
func (c *ViewCounter[T]) handleStoredViews() {
	for {
		c.updateCurrentTraversal()
		matched := false
		for i, cv := range c.waiting {
			if c.viewIsNext(cv) {
				c.current = c.current[1:]
				c.out <- cv
				c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
				matched = true
				break
			}
		}
		if !matched {
			return
		}
	}
}

// fillGhost replicates the nearest in-image row/column into the view's
// out-of-image border, per the edge-replication rule: interior rows fill
// their left/right border from the row's first/last in-image pixel, then
// the top/bottom border rows are each a full copy of the nearest
// in-image row (which has already had its own left/right border filled),
// giving corners the nearest in-image corner's value for free.
func fillGhost[T any](data []T, viewHeight, viewWidth, topFill, bottomFill, leftFill, rightFill int) {
	for row := topFill; row < viewHeight-bottomFill; row++ {
		base := row * viewWidth
		if leftFill > 0 {
			v := data[base+leftFill]
			for col := 0; col < leftFill; col++ {
				data[base+col] = v
			}
		}
		if rightFill > 0 {
			v := data[base+viewWidth-rightFill-1]
			for col := viewWidth - rightFill; col < viewWidth; col++ {
				data[base+col] = v
			}
		}
	}

	if topFill > 0 {
		srcBase := topFill * viewWidth
		for row := 0; row < topFill; row++ {
			dstBase := row * viewWidth
			copy(data[dstBase:dstBase+viewWidth], data[srcBase:srcBase+viewWidth])
		}
	}

	if bottomFill > 0 {
		srcBase := (viewHeight - bottomFill - 1) * viewWidth
		for row := viewHeight - bottomFill; row < viewHeight; row++ {
			dstBase := row * viewWidth
			copy(data[dstBase:dstBase+viewWidth], data[srcBase:srcBase+viewWidth])
		}
	}
}
