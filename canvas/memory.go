// Package canvas implements the three output sinks of §4.5: an in-memory
// buffer for formats needing random access (JPEG), a streaming PNG encoder
// bounded to a band of rows, and a tiled IIIF pyramid directory writer.
// AddTile/Finalize are grounded on pkg/downloader/iiif.go's
// downloadAndMergeTiles + saveImage (RGBA buffer, clipped paste, encode on
// completion), generalised to the streaming variants the spec requires.
package canvas

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dezoomify/model"
)

// maxCanvasSide mirrors the target JPEG limit referenced by §4.5:
// ImageTooLarge fires before allocating a buffer whose side would exceed it.
const maxCanvasSide = 65535

// Options configures every canvas variant.
type Options struct {
	Width, Height int
	OutPath       string
	Compression   int // 0..100, per §6: JPEG quality = 100 - value
}

// MemoryCanvas holds the full raster in RAM, required by encoders needing
// random access (JPEG, plain PNG).
type MemoryCanvas struct {
	mu        sync.Mutex
	img       *image.RGBA
	opts      Options
	finalized bool
}

func NewMemoryCanvas(opts Options) (*MemoryCanvas, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "canvas dimensions must be known before creation"}
	}
	if opts.Width > maxCanvasSide || opts.Height > maxCanvasSide {
		return nil, &model.CanvasError{Kind: model.CanvasImageTooLarge, Reason: fmt.Sprintf("%dx%d exceeds the %d px per side cap", opts.Width, opts.Height, maxCanvasSide)}
	}
	return &MemoryCanvas{
		img:  image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		opts: opts,
	}, nil
}

// AddTile pastes a decoded tile at its declared position, clipping at the
// right/bottom edges of the canvas (§3, §4.5). Tiles may arrive in any
// order (§4.4); when regions overlap, whichever AddTile call runs last for
// a given pixel wins (§8 invariant 2).
func (c *MemoryCanvas) AddTile(_ context.Context, t model.Tile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "AddTile called after Finalize"}
	}

	bounds := t.Img.Bounds()
	dstRect := image.Rect(
		t.Ref.Position.X, t.Ref.Position.Y,
		t.Ref.Position.X+bounds.Dx(), t.Ref.Position.Y+bounds.Dy(),
	).Intersect(c.img.Bounds())
	if dstRect.Empty() {
		return nil
	}
	srcPoint := bounds.Min.Add(dstRect.Min.Sub(image.Pt(t.Ref.Position.X, t.Ref.Position.Y)))
	draw.Draw(c.img, dstRect, t.Img, srcPoint, draw.Src)
	return nil
}

// Finalize encodes the buffer per the output path's extension, writing to a
// ".tmp" staging file and renaming atomically so a crash never leaves a
// partial output file (§4.5, §8 invariant 7).
func (c *MemoryCanvas) Finalize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "Finalize called twice"}
	}
	c.finalized = true

	tmp := c.opts.OutPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "create output file", Err: err}
	}

	encErr := encode(f, c.img, c.opts.OutPath, c.opts.Compression)
	closeErr := f.Close()
	if encErr != nil {
		_ = os.Remove(tmp)
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "encode output", Err: encErr}
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "close output file", Err: closeErr}
	}
	if err := os.Rename(tmp, c.opts.OutPath); err != nil {
		_ = os.Remove(tmp)
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "rename output into place", Err: err}
	}
	return nil
}

func encode(w *os.File, img image.Image, outPath string, compression int) error {
	switch ext := strings.ToLower(filepath.Ext(outPath)); ext {
	case ".jpg", ".jpeg":
		quality := 100 - compression
		if quality < 1 {
			quality = 1
		}
		if quality > 100 {
			quality = 100
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case ".png", "":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output extension %q", ext)
	}
}
