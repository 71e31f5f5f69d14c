package canvas

import (
	"compress/zlib"
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"sort"
	"sync"

	"dezoomify/model"
)

// interval is a half-open pixel range [start, end) used to track how much
// of a row-band's width has been covered by tiles admitted so far.
type interval struct{ start, end int }

// band accumulates every tile sharing one top row until their union covers
// the full canvas width, at which point the streaming canvas emits it and
// frees the tiles (§4.5(b)).
type band struct {
	height int
	tiles  []model.Tile
	spans  []interval // sorted, merged, non-overlapping
}

func (b *band) add(t model.Tile) {
	b.tiles = append(b.tiles, t)
	if h := t.Img.Bounds().Dy(); b.height == 0 || h < b.height {
		b.height = h // conservative: emit only as many rows as every tile guarantees
	}
	b.insert(t.Ref.Position.X, t.Ref.Position.X+t.Img.Bounds().Dx())
}

func (b *band) insert(start, end int) {
	b.spans = append(b.spans, interval{start, end})
	sort.Slice(b.spans, func(i, j int) bool { return b.spans[i].start < b.spans[j].start })
	merged := b.spans[:1]
	for _, sp := range b.spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	b.spans = merged
}

func (b *band) coversWidth(width int) bool {
	return len(b.spans) == 1 && b.spans[0].start <= 0 && b.spans[0].end >= width
}

// StreamingPNGCanvas emits PNG scanlines row-by-row without ever holding
// the whole raster: it buffers admitted tiles by the row they start at and
// frees each band once it is emitted (§4.5(b)). Tiles that arrive for bands
// below the cursor's next band stay buffered until every band above them has
// been emitted.
type StreamingPNGCanvas struct {
	mu     sync.Mutex
	opts   Options
	cursor int
	bands  map[int]*band

	file      *os.File
	zw        *zlib.Writer
	finalized bool
}

func NewStreamingPNGCanvas(opts Options) (*StreamingPNGCanvas, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "canvas dimensions must be known before creation"}
	}

	tmp := opts.OutPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "create output file", Err: err}
	}
	if _, err := f.Write(pngSignature); err != nil {
		f.Close()
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "write PNG signature", Err: err}
	}
	if err := writeIHDR(f, opts.Width, opts.Height); err != nil {
		f.Close()
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "write IHDR", Err: err}
	}

	c := &StreamingPNGCanvas{
		opts:  opts,
		bands: make(map[int]*band),
		file:  f,
	}
	c.zw = zlib.NewWriter(&idatSink{w: f})
	return c, nil
}

// AddTile admits a tile into its band. A tile whose top row already lies
// behind the emission cursor is rejected as CanvasOutOfOrder (§4.5
// invariant): once a band is emitted its rows can never be revisited, which
// is the documented seam-dependent limitation for DZI overlap under
// reordering (§9 open question a).
func (c *StreamingPNGCanvas) AddTile(_ context.Context, t model.Tile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "AddTile called after Finalize"}
	}

	y0 := t.Ref.Position.Y
	if y0 < c.cursor {
		return &model.CanvasError{
			Kind:   model.CanvasOutOfOrder,
			Reason: fmt.Sprintf("tile at y=%d arrived after the emission cursor passed row %d", y0, c.cursor),
		}
	}

	b := c.bands[y0]
	if b == nil {
		b = &band{}
		c.bands[y0] = b
	}
	b.add(t)

	return c.drainReadyBands()
}

// drainReadyBands emits every consecutive band, starting at the cursor,
// whose tiles already cover the full canvas width.
func (c *StreamingPNGCanvas) drainReadyBands() error {
	for {
		b, ok := c.bands[c.cursor]
		if !ok || !b.coversWidth(c.opts.Width) {
			return nil
		}
		if err := c.emitBand(b, b.height); err != nil {
			return err
		}
	}
}

// emitBand rasterises height rows starting at the current cursor from b's
// tiles, writes their scanlines through the zlib stream, and advances the
// cursor.
func (c *StreamingPNGCanvas) emitBand(b *band, height int) error {
	if c.cursor+height > c.opts.Height {
		height = c.opts.Height - c.cursor
	}
	if height <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, c.opts.Width, height))
	for _, t := range b.tiles {
		bounds := t.Img.Bounds()
		dst := image.Rect(
			t.Ref.Position.X, t.Ref.Position.Y-c.cursor,
			t.Ref.Position.X+bounds.Dx(), t.Ref.Position.Y-c.cursor+bounds.Dy(),
		).Intersect(img.Bounds())
		if dst.Empty() {
			continue
		}
		srcPoint := bounds.Min.Add(dst.Min.Sub(image.Pt(t.Ref.Position.X, t.Ref.Position.Y-c.cursor)))
		draw.Draw(img, dst, t.Img, srcPoint, draw.Src)
	}

	if err := writeScanlines(c.zw, img); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write PNG scanlines", Err: err}
	}
	if err := c.zw.Flush(); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "flush PNG band", Err: err}
	}

	delete(c.bands, c.cursor)
	c.cursor += height
	return nil
}

func writeScanlines(w *zlib.Writer, img *image.RGBA) error {
	width := img.Bounds().Dx()
	row := make([]byte, 1+width*4)
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		row[0] = 0 // filter type None
		for x := 0; x < width; x++ {
			r, g, bl, a := img.At(x+img.Bounds().Min.X, y).RGBA()
			off := 1 + x*4
			row[off] = byte(r >> 8)
			row[off+1] = byte(g >> 8)
			row[off+2] = byte(bl >> 8)
			row[off+3] = byte(a >> 8)
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Finalize emits any rows the pipeline never fully covered (permanently
// failed tiles) as transparent black — §4.4's "failed regions left at the
// canvas' fill value" — then closes the zlib stream, writes IEND, and
// renames the staging file into place atomically.
func (c *StreamingPNGCanvas) Finalize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "Finalize called twice"}
	}
	c.finalized = true

	for c.cursor < c.opts.Height {
		b, ok := c.bands[c.cursor]
		height := c.opts.Height - c.cursor
		if ok {
			if b.height > 0 && b.height < height {
				height = b.height
			}
			if err := c.emitBand(b, height); err != nil {
				return err
			}
			continue
		}
		if err := c.emitBand(&band{}, height); err != nil {
			return err
		}
	}

	if err := c.zw.Close(); err != nil {
		os.Remove(c.opts.OutPath + ".tmp")
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "close zlib stream", Err: err}
	}
	if err := writeChunk(c.file, "IEND", nil); err != nil {
		os.Remove(c.opts.OutPath + ".tmp")
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write IEND", Err: err}
	}
	if err := c.file.Close(); err != nil {
		os.Remove(c.opts.OutPath + ".tmp")
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "close output file", Err: err}
	}
	if err := os.Rename(c.opts.OutPath+".tmp", c.opts.OutPath); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "rename output into place", Err: err}
	}
	return nil
}
