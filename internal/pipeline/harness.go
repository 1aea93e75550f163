package pipeline

import "sync"

// Pipeline wires the ViewLoader, a pool of TileLoader workers, and a
// ViewCounter into a running dataflow. Submit feeds ViewRequests in;
// Finish closes the input; Wait blocks until every worker has drained.
type Pipeline[T any] struct {
	viewLoader *ViewLoader[T]
	tileLoader *TileLoader[T]
	counter    *ViewCounter[T]

	viewCh chan *ViewRequest
	tileCh chan *TileRequest[T]
	cancel chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// NewPipeline starts one ViewLoader worker and numTileLoaders TileLoader
// workers, all sharing the given queueSize-buffered channels between
// stages.
func NewPipeline[T any](viewLoader *ViewLoader[T], tileLoader *TileLoader[T], counter *ViewCounter[T], numTileLoaders, queueSize int) *Pipeline[T] {
	if numTileLoaders < 1 {
		numTileLoaders = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pipeline[T]{
		viewLoader: viewLoader,
		tileLoader: tileLoader,
		counter:    counter,
		viewCh:     make(chan *ViewRequest, queueSize),
		tileCh:     make(chan *TileRequest[T], queueSize),
		cancel:     make(chan struct{}),
	}

	p.wg.Add(1)
	go p.runViewLoader()

	for i := 0; i < numTileLoaders; i++ {
		p.wg.Add(1)
		go p.runTileLoader()
	}

	return p
}

// Submit enqueues a ViewRequest. It blocks if the view-loader's input
// queue is full.
func (p *Pipeline[T]) Submit(req *ViewRequest) {
	select {
	case p.viewCh <- req:
	case <-p.cancel:
	}
}

// Finish closes the input queue; no further Submit calls are valid.
func (p *Pipeline[T]) Finish() {
	p.closeOnce.Do(func() { close(p.viewCh) })
}

// Cancel aborts the pipeline: in-flight view-pool acquisitions are
// unblocked and fail, and workers drain without processing further work.
func (p *Pipeline[T]) Cancel() {
	select {
	case <-p.cancel:
	default:
		close(p.cancel)
	}
}

// Wait blocks until every worker has exited, which happens once Finish (or
// Cancel) has been called and all in-flight work has drained.
func (p *Pipeline[T]) Wait() {
	p.wg.Wait()
}

// Err returns the first error observed by any worker, if any.
func (p *Pipeline[T]) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Pipeline[T]) setErr(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
}

func (p *Pipeline[T]) runViewLoader() {
	defer p.wg.Done()
	defer close(p.tileCh)

	for {
		select {
		case req, ok := <-p.viewCh:
			if !ok {
				return
			}
			tiles, err := p.viewLoader.Load(req, p.cancel)
			if err != nil {
				p.setErr(err)
				continue
			}
			for _, tr := range tiles {
				select {
				case p.tileCh <- tr:
				case <-p.cancel:
					return
				}
			}
		case <-p.cancel:
			return
		}
	}
}

func (p *Pipeline[T]) runTileLoader() {
	defer p.wg.Done()

	for {
		select {
		case tr, ok := <-p.tileCh:
			if !ok {
				return
			}
			if err := p.tileLoader.Run(tr); err != nil {
				p.setErr(err)
				continue
			}
			p.counter.Handle(tr)
		case <-p.cancel:
			return
		}
	}
}
