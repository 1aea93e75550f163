// Package viewpool implements the bounded, pre-allocated pool of view
// buffers the pipeline hands out to consumers. A buffer is returned to the
// pool only once every downstream consumer has released it.
package viewpool

import (
	"fmt"
	"sync/atomic"
)

// Entry is one pooled view buffer. Its Data slice is viewHeight*viewWidth
// elements, row-major, and is reused across acquisitions; callers must
// not retain Data after calling Release enough times to reach zero.
type Entry[T any] struct {
	pool *Pool[T]

	Data   []T
	Height int
	Width  int

	refCount atomic.Int64
}

// Release decrements the entry's reference count. When the count reaches
// zero the buffer is returned to the pool and one blocked Acquire (if any)
// is unblocked.
func (e *Entry[T]) Release() {
	if e.refCount.Add(-1) == 0 {
		e.pool.put(e)
	}
}

// Pool is a fixed-size, pre-allocated set of view buffers, all sized
// viewHeight x viewWidth for one pyramid level. Acquire blocks when the
// pool is exhausted.
type Pool[T any] struct {
	free   chan *Entry[T]
	height int
	width  int
}

// New pre-allocates size buffers of viewHeight x viewWidth elements. size
// is expected to already be min(numParallelViews, numTilesHeight*numTilesWidth)
// by the time it reaches this constructor.
func New[T any](size, viewHeight, viewWidth int) (*Pool[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("viewpool: size must be >= 1, got %d", size)
	}
	if viewHeight < 1 || viewWidth < 1 {
		return nil, fmt.Errorf("viewpool: invalid view dimensions %dx%d", viewHeight, viewWidth)
	}

	p := &Pool[T]{
		free:   make(chan *Entry[T], size),
		height: viewHeight,
		width:  viewWidth,
	}
	for i := 0; i < size; i++ {
		p.free <- &Entry[T]{
			pool:   p,
			Data:   make([]T, viewHeight*viewWidth),
			Height: viewHeight,
			Width:  viewWidth,
		}
	}
	return p, nil
}

// Acquire blocks until a buffer is available, then returns it with its
// reference count set to releaseCount — the number of times Release must
// be called before the buffer returns to the pool. Acquire returns an
// error if cancel is closed first (used during pipeline shutdown); a nil
// cancel channel never fires.
func (p *Pool[T]) Acquire(releaseCount int, cancel <-chan struct{}) (*Entry[T], error) {
	if releaseCount < 1 {
		releaseCount = 1
	}
	select {
	case e := <-p.free:
		e.refCount.Store(int64(releaseCount))
		return e, nil
	case <-cancel:
		return nil, fmt.Errorf("viewpool: acquisition cancelled")
	}
}

func (p *Pool[T]) put(e *Entry[T]) {
	p.free <- e
}

// Size returns the pool's fixed capacity.
func (p *Pool[T]) Size() int { return cap(p.free) }

// Outstanding returns the number of buffers currently checked out.
func (p *Pool[T]) Outstanding() int { return cap(p.free) - len(p.free) }
