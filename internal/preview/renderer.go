// Package preview renders debugging/demo snapshots of analysis results:
// a FeatureCollection's blobs colorized by feature id, or a raw labeled
// mask buffer, as a PNG.
package preview

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/mbardakoff/fastraster/internal/featurecollection"
	"github.com/mbardakoff/fastraster/pkg/colormap"
)

// Renderer draws quicklook PNG previews of connected-component analysis
// results. It is not part of the engine's critical path — it exists for
// debugging and the demo scenarios.
type Renderer struct {
	bufferPool sync.Pool
	colormaps  map[string]colormap.Colormap
}

// New creates a preview renderer.
func New() *Renderer {
	r := &Renderer{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["plasma"] = colormap.Plasma
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["magma"] = colormap.Magma
	r.colormaps["categorical"] = colormap.Categorical

	return r
}

// RenderCollection colorizes every feature in collection by its id
// (via the categorical colormap, so adjacent ids are visually distinct)
// over a white background, and returns PNG-encoded bytes.
func (r *Renderer) RenderCollection(collection *featurecollection.Collection) ([]byte, error) {
	dc := gg.NewContext(collection.ImageWidth, collection.ImageHeight)
	dc.SetColor(color.White)
	dc.Clear()

	cmap := r.colormaps["categorical"]

	for _, f := range collection.Features {
		dc.SetColor(colormap.AtFeatureID(cmap, f.ID))

		bb := f.BoundingBox
		for row := bb.UpperLeftRow; row < bb.BottomRightRow(); row++ {
			for col := bb.UpperLeftCol; col < bb.BottomRightCol(); col++ {
				if f.IsInBitMask(row, col) {
					dc.SetPixel(col, row)
				}
			}
		}
	}

	return r.encodeContext(dc)
}

// RenderLabelMask colorizes a flat row-major label buffer (as produced by
// labeledtiff's rasterizer) using a linear colormap, scaling each label
// into [0,1] by maxLabel.
func (r *Renderer) RenderLabelMask(labels []uint32, height, width int, maxLabel uint32, colormapName string) ([]byte, error) {
	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	cmap, ok := r.colormaps[colormapName]
	if !ok {
		cmap = r.colormaps["viridis"]
	}

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			label := labels[row*width+col]
			c, ok := colormap.AtLabel(cmap, label, maxLabel)
			if !ok {
				continue
			}
			dc.SetColor(c)
			dc.SetPixel(col, row)
		}
	}

	return r.encodeContext(dc)
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
