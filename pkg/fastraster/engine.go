package fastraster

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbardakoff/fastraster/internal/exportcache"
	"github.com/mbardakoff/fastraster/internal/featurecollection"
	"github.com/mbardakoff/fastraster/internal/labeledtiff"
	"github.com/mbardakoff/fastraster/internal/logging"
	"github.com/mbardakoff/fastraster/internal/pipeline"
	"github.com/mbardakoff/fastraster/internal/preview"
	"github.com/mbardakoff/fastraster/internal/tilecache"
	"github.com/mbardakoff/fastraster/internal/traversal"
	"github.com/mbardakoff/fastraster/internal/viewpool"
)

const outQueueSize = 16

// levelState holds the cache, pool, and running pipeline for one pyramid
// level. Levels are created lazily, on the first request that touches
// them, since their dimensions depend on the (possibly level-varying)
// tile reader metadata.
type levelState[T Pixel] struct {
	cache   *tilecache.Cache[T]
	pool    *viewpool.Pool[T]
	counter *pipeline.ViewCounter[T]
	pipe    *pipeline.Pipeline[T]

	imageHeight, imageWidth       int
	tileHeight, tileWidth         int
	numTilesHeight, numTilesWidth int
}

// Engine is the streaming tile/view-serving engine: open it over a
// TileReader, configure it, then drive it with RequestTile /
// RequestAllTiles / RequestFeature and drain it with NextViewBlocking.
type Engine[T Pixel] struct {
	reader TileReader[T]
	radius int
	log    zerolog.Logger

	mu          sync.Mutex
	opts        *Options
	levels      map[int]*levelState[T]
	finished    bool
	exportCache *exportcache.Cache

	out  chan *pipeline.CompletedView[T]
	done chan struct{}
}

// Open creates an Engine over reader with the given halo radius, using
// DefaultOptions until Configure is called.
func Open[T Pixel](reader TileReader[T], radius int) (*Engine[T], error) {
	if radius < 0 {
		return nil, newError(ErrInvalidArgument, "open", fmt.Errorf("radius must be >= 0, got %d", radius))
	}

	opts := DefaultOptions()
	return &Engine[T]{
		reader: reader,
		radius: radius,
		opts:   opts,
		levels: make(map[int]*levelState[T]),
		out:    make(chan *pipeline.CompletedView[T], outQueueSize),
		done:   make(chan struct{}),
		log:    logging.New(opts.Log.Level, opts.Log.Pretty),
	}, nil
}

// Configure replaces the engine's options. It must be called before the
// first request against any given level; options already in effect for a
// level whose state has already been created are not retroactively
// applied.
func (e *Engine[T]) Configure(opts *Options) error {
	if err := opts.Validate(); err != nil {
		return newError(ErrInvalidArgument, "configure", err)
	}

	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()

	e.log = logging.New(opts.Log.Level, opts.Log.Pretty)
	return nil
}

// Run is a no-op hook retained for symmetry with configure()/run(): level
// state is created lazily on first request, so there is nothing to start
// eagerly.
func (e *Engine[T]) Run() error { return nil }

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// levelStateFor returns (creating if necessary) the cache/pool/pipeline
// bundle for level.
func (e *Engine[T]) levelStateFor(level int) (*levelState[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ls, ok := e.levels[level]; ok {
		return ls, nil
	}
	if e.finished {
		return nil, newError(ErrInvalidArgument, "request", fmt.Errorf("engine is no longer accepting requests"))
	}

	imageHeight, imageWidth, err := e.reader.ImageDimensions(level)
	if err != nil {
		return nil, newError(ErrIoError, "image_dimensions", err)
	}
	tileHeight, tileWidth, err := e.reader.TileDimensions(level)
	if err != nil {
		return nil, newError(ErrIoError, "tile_dimensions", err)
	}
	if tileHeight <= 0 || tileWidth <= 0 {
		return nil, newError(ErrFormatError, "tile_dimensions", fmt.Errorf("image is not tiled at level %d", level))
	}

	numTilesHeight := ceilDiv(imageHeight, tileHeight)
	numTilesWidth := ceilDiv(imageWidth, tileWidth)

	cache, err := tilecache.New[T](numTilesHeight, numTilesWidth, tileHeight, tileWidth, e.opts.NumCachedTiles)
	if err != nil {
		return nil, newError(ErrResourceExhausted, "tile_cache", err)
	}

	poolSize := minInt(e.opts.NumParallelViews, numTilesHeight*numTilesWidth)
	viewHeight := tileHeight + 2*e.radius
	viewWidth := tileWidth + 2*e.radius

	pool, err := viewpool.New[T](poolSize, viewHeight, viewWidth)
	if err != nil {
		return nil, newError(ErrResourceExhausted, "view_pool", err)
	}

	counter := pipeline.NewViewCounter[T](e.opts.PreserveOrder, e.out)
	viewLoader := &pipeline.ViewLoader[T]{Pool: pool, ReleaseCount: e.opts.ReleaseCountPerLevel}
	tileLoader := &pipeline.TileLoader[T]{Cache: cache, Source: e.reader, Level: level}
	pipe := pipeline.NewPipeline[T](viewLoader, tileLoader, counter, e.opts.NumTileLoaders, outQueueSize)

	ls := &levelState[T]{
		cache:          cache,
		pool:           pool,
		counter:        counter,
		pipe:           pipe,
		imageHeight:    imageHeight,
		imageWidth:     imageWidth,
		tileHeight:     tileHeight,
		tileWidth:      tileWidth,
		numTilesHeight: numTilesHeight,
		numTilesWidth:  numTilesWidth,
	}
	e.levels[level] = ls

	e.log.Debug().Int("level", level).Int("num_tiles_height", numTilesHeight).
		Int("num_tiles_width", numTilesWidth).Msg("level state created")

	return ls, nil
}

// RequestTile enqueues a view centered on tile (row, col) at level.
func (e *Engine[T]) RequestTile(level, row, col int, finish bool) error {
	ls, err := e.levelStateFor(level)
	if err != nil {
		return err
	}
	if row < 0 || row >= ls.numTilesHeight || col < 0 || col >= ls.numTilesWidth {
		return newError(ErrOutOfBounds, "request_tile", fmt.Errorf("tile (%d,%d) out of bounds %dx%d", row, col, ls.numTilesHeight, ls.numTilesWidth))
	}

	req, err := pipeline.NewViewRequest(level, row, col, e.radius, ls.tileHeight, ls.tileWidth, ls.imageHeight, ls.imageWidth, ls.numTilesHeight, ls.numTilesWidth)
	if err != nil {
		return newError(ErrOutOfBounds, "request_tile", err)
	}

	e.submit(level, ls, req, []pipeline.TileCoord{{Row: row, Col: col}})

	if finish {
		e.FinishedRequesting()
	}
	return nil
}

// RequestAllTiles enqueues one view per tile of level, in the traversal
// order configured via Options.TraversalType.
func (e *Engine[T]) RequestAllTiles(level int, finish bool) error {
	ls, err := e.levelStateFor(level)
	if err != nil {
		return err
	}

	mode, _ := traversal.ParseMode(e.opts.TraversalType)
	coords := traversal.Generate(mode, ls.numTilesHeight, ls.numTilesWidth)

	tileCoords := make([]pipeline.TileCoord, len(coords))
	for i, c := range coords {
		tileCoords[i] = pipeline.TileCoord{Row: c.Row, Col: c.Col}
	}

	if e.opts.PreserveOrder {
		e.enqueueTraversal(ls, tileCoords)
	}

	for _, c := range coords {
		req, err := pipeline.NewViewRequest(level, c.Row, c.Col, e.radius, ls.tileHeight, ls.tileWidth, ls.imageHeight, ls.imageWidth, ls.numTilesHeight, ls.numTilesWidth)
		if err != nil {
			return newError(ErrOutOfBounds, "request_all_tiles", err)
		}
		ls.pipe.Submit(req)
	}

	if finish {
		e.FinishedRequesting()
	}
	return nil
}

// RequestFeature enqueues one view per tile overlapping feature's
// bounding box at level.
func (e *Engine[T]) RequestFeature(level int, feature *featurecollection.Feature) error {
	ls, err := e.levelStateFor(level)
	if err != nil {
		return err
	}

	bb := feature.BoundingBox
	rowMin := maxInt(bb.UpperLeftRow/ls.tileHeight, 0)
	rowMax := minInt((bb.BottomRightRow()-1)/ls.tileHeight+1, ls.numTilesHeight)
	colMin := maxInt(bb.UpperLeftCol/ls.tileWidth, 0)
	colMax := minInt((bb.BottomRightCol()-1)/ls.tileWidth+1, ls.numTilesWidth)

	for r := rowMin; r < rowMax; r++ {
		for c := colMin; c < colMax; c++ {
			req, err := pipeline.NewViewRequest(level, r, c, e.radius, ls.tileHeight, ls.tileWidth, ls.imageHeight, ls.imageWidth, ls.numTilesHeight, ls.numTilesWidth)
			if err != nil {
				return newError(ErrOutOfBounds, "request_feature", err)
			}
			ls.pipe.Submit(req)
		}
	}
	return nil
}

func (e *Engine[T]) submit(level int, ls *levelState[T], req *pipeline.ViewRequest, coords []pipeline.TileCoord) {
	if e.opts.PreserveOrder {
		e.enqueueTraversal(ls, coords)
	}
	ls.pipe.Submit(req)
}

func (e *Engine[T]) enqueueTraversal(ls *levelState[T], coords []pipeline.TileCoord) {
	ls.counter.EnqueueTraversal(coords)
}

// FinishedRequesting closes every level's input queue. It is safe to call
// more than once.
func (e *Engine[T]) FinishedRequesting() {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	levels := make([]*levelState[T], 0, len(e.levels))
	for _, ls := range e.levels {
		levels = append(levels, ls)
	}
	e.mu.Unlock()

	for _, ls := range levels {
		ls.pipe.Finish()
	}

	go func() {
		for _, ls := range levels {
			ls.pipe.Wait()
		}
		close(e.out)
		close(e.done)
	}()
}

// WaitForComplete blocks until every worker across every level has
// drained. FinishedRequesting must have been called first.
func (e *Engine[T]) WaitForComplete() {
	<-e.done
}

// NextViewBlocking blocks until a view is ready or the pipeline has
// drained, in which case it returns (nil, nil) unless a worker recorded
// an error, in which case that error is returned.
func (e *Engine[T]) NextViewBlocking() (*View[T], error) {
	cv, ok := <-e.out
	if !ok {
		return nil, e.firstErr()
	}
	if err := e.firstErr(); err != nil {
		return nil, err
	}
	return newView[T](cv), nil
}

func (e *Engine[T]) firstErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ls := range e.levels {
		if err := ls.pipe.Err(); err != nil {
			return newError(ErrIoError, "pipeline", err)
		}
	}
	return nil
}

// HitMiss returns the cumulative tile cache hit/miss counts for level.
func (e *Engine[T]) HitMiss(level int) (hits, misses int64) {
	e.mu.Lock()
	ls, ok := e.levels[level]
	e.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return ls.cache.HitMiss()
}

// DiskTime returns the cumulative time spent inside the tile reader for
// level's cache misses.
func (e *Engine[T]) DiskTime(level int) time.Duration {
	e.mu.Lock()
	ls, ok := e.levels[level]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	return ls.cache.DiskTime()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ConnectedComponents runs RequestAllTiles at level followed by a full
// drain, analyzing every completed view's center tile and merging
// cross-tile adjacencies into a finished FeatureCollection. The view's
// radius must be >= 1 for cross-tile adjacency to be detectable.
func (e *Engine[T]) ConnectedComponents(level int, foreground func(T) bool, rank int) (*featurecollection.Collection, error) {
	if e.radius < 1 {
		return nil, newError(ErrInvalidArgument, "connected_components", fmt.Errorf("radius must be >= 1 for connected-component analysis, got %d", e.radius))
	}

	ls, err := e.levelStateFor(level)
	if err != nil {
		return nil, err
	}

	if err := e.RequestAllTiles(level, true); err != nil {
		return nil, err
	}

	total := ls.numTilesHeight * ls.numTilesWidth
	merger := featurecollection.NewMerger(total)
	var tagAlloc featurecollection.TagAllocator

	for {
		view, err := e.NextViewBlocking()
		if err != nil {
			return nil, err
		}
		if view == nil {
			break
		}
		blobs, merges := view.Analyze(foreground, rank, tagAlloc.Next)
		merger.Submit(blobs, merges)
		view.Release()
	}

	blobs := merger.Finish()
	collection := featurecollection.New(ls.imageHeight, ls.imageWidth)
	for i, b := range blobs {
		collection.Add(featurecollection.NewFeature(uint32(i), b))
	}
	return collection, nil
}

// WriteLabeledMask serializes collection as a tiled labeled-mask TIFF,
// one sample per pixel holding feature_id+1 (0 for background), tiled at
// tileHeight x tileWidth (both must be powers of two). binary writes 1
// instead of the label for every feature pixel. The sample depth is the
// narrowest of 8, 16 or 32 bits that holds the largest value written, so
// a binary mask is written at 8 bits per sample.
func (e *Engine[T]) WriteLabeledMask(w io.Writer, collection *featurecollection.Collection, tileHeight, tileWidth int, binary bool) error {
	if err := labeledtiff.Write(w, collection, collection.ImageHeight, collection.ImageWidth, tileHeight, tileWidth, binary); err != nil {
		return newError(ErrInvalidArgument, "write_labeled_mask", err)
	}
	return nil
}

// RenderPreview rasterizes collection to a PNG, one color per feature, for
// a human to sanity-check a connected-component run without a full GIS
// viewer.
func (e *Engine[T]) RenderPreview(collection *featurecollection.Collection) ([]byte, error) {
	png, err := preview.New().RenderCollection(collection)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "render_preview", err)
	}
	return png, nil
}

// ExportCollection returns collection's serialized form, from the export
// cache when a prior call already serialized this exact collection
// (matched by content fingerprint, not pointer identity) or freshly
// serialized and cached otherwise.
func (e *Engine[T]) ExportCollection(collection *featurecollection.Collection) ([]byte, error) {
	cache, err := e.exportCacheFor()
	if err != nil {
		return nil, err
	}
	payload, err := cache.GetOrSerialize(collection)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "export_collection", err)
	}
	return payload, nil
}

func (e *Engine[T]) exportCacheFor() (*exportcache.Cache, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exportCache != nil {
		return e.exportCache, nil
	}

	cache, err := exportcache.New(exportcache.Config{
		SizeMB: e.opts.Export.CacheSizeMB,
		TTL:    time.Duration(e.opts.Export.CacheTTLMins) * time.Minute,
	})
	if err != nil {
		return nil, newError(ErrResourceExhausted, "export_cache", err)
	}
	e.exportCache = cache
	return cache, nil
}

// Close releases resources the engine holds outside the Go heap: the
// export cache, if one was created.
func (e *Engine[T]) Close() error {
	e.mu.Lock()
	cache := e.exportCache
	e.exportCache = nil
	e.mu.Unlock()

	if cache == nil {
		return nil
	}
	if err := cache.Close(); err != nil {
		return newError(ErrIoError, "close", err)
	}
	return nil
}
