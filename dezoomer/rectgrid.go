// Package dezoomer holds one subpackage-free file per supported tile
// protocol. Nine of the ten formats (zoomify, dzi, iiif, google arts and
// culture, krpano, iipimage, nypl, pff, generic) describe a plain rectangular tile grid at
// one or more resolutions; rectGrid is the shared ZoomLevel implementation
// for all of them, grounded on original_source's TilesRect trait (size(),
// tile_size(), tile_url(pos)), whose default next_tiles iterates the grid
// row-major exactly like Tiles below.
package dezoomer

import (
	"context"
	"image"
	"iter"

	"dezoomify/model"
)

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// rectGrid is a ZoomLevel over a width x height raster tiled in a regular
// tileW x tileH grid, addressed by (col, row).
type rectGrid struct {
	name          string
	width, height int
	tileW, tileH  int
	urlFunc       func(col, row int) string
	posFunc       func(col, row int) (x, y int) // nil means col*tileW, row*tileH
	post          func(ref model.TileReference, data []byte) ([]byte, error)
	headers       map[string]string
}

func (g *rectGrid) Name() string { return g.name }

func (g *rectGrid) Dimensions() (w, h int, ok bool) { return g.width, g.height, true }

func (g *rectGrid) Tiles(ctx context.Context) iter.Seq2[model.TileReference, error] {
	return func(yield func(model.TileReference, error) bool) {
		cols := ceilDiv(g.width, g.tileW)
		rows := ceilDiv(g.height, g.tileH)
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				if ctx.Err() != nil {
					yield(model.TileReference{}, ctx.Err())
					return
				}
				x, y := col*g.tileW, row*g.tileH
				if g.posFunc != nil {
					x, y = g.posFunc(col, row)
				}
				ref := model.TileReference{URL: g.urlFunc(col, row), Position: image.Point{X: x, Y: y}}
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

func (g *rectGrid) PostProcess(ref model.TileReference, data []byte) ([]byte, error) {
	if g.post != nil {
		return g.post(ref, data)
	}
	return data, nil
}

func (g *rectGrid) HTTPHeaders() map[string]string { return g.headers }
