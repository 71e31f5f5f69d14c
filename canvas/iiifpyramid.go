package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"

	"dezoomify/model"
)

// thumbnailMaxSide bounds the only raster the IIIF pyramid canvas ever holds
// in RAM: the coarse "full/{w},{h}/0/default.jpg" derivative. Native
// resolution tiles are written to disk as they arrive and never buffered
// (§4.5(c): "does not buffer the full raster").
const thumbnailMaxSide = 1024

const viewerHTMLTemplate = `<!doctype html>
<html><head><title>%s</title></head>
<body><img src="full/%d,%d/0/default.jpg" alt="%s"></body></html>
`

// IIIFPyramidCanvas restructures an incoming tile stream into a tiled IIIF
// directory: native-resolution tiles at their canonical level-0 location,
// a generated info.json, a bundled viewer.html, and one small downsampled
// "full image" derivative built incrementally with golang.org/x/image/draw
// (grounded on other_examples/peterstace-neawall__assembler.go's tile
// stitching + xdraw downsampling).
type IIIFPyramidCanvas struct {
	mu   sync.Mutex
	opts Options

	scale          float64
	thumbW, thumbH int
	thumb          *image.RGBA

	tilesWritten int
	finalized    bool
}

func NewIIIFPyramidCanvas(opts Options) (*IIIFPyramidCanvas, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "canvas dimensions must be known before creation"}
	}
	if err := os.MkdirAll(filepath.Join(opts.OutPath, "0"), 0755); err != nil {
		return nil, &model.CanvasError{Kind: model.CanvasIO, Reason: "create level-0 directory", Err: err}
	}

	scale := 1.0
	longSide := opts.Width
	if opts.Height > longSide {
		longSide = opts.Height
	}
	if longSide > thumbnailMaxSide {
		scale = float64(thumbnailMaxSide) / float64(longSide)
	}
	thumbW := maxInt(1, int(math.Round(float64(opts.Width)*scale)))
	thumbH := maxInt(1, int(math.Round(float64(opts.Height)*scale)))

	return &IIIFPyramidCanvas{
		opts:   opts,
		scale:  scale,
		thumbW: thumbW,
		thumbH: thumbH,
		thumb:  image.NewRGBA(image.Rect(0, 0, thumbW, thumbH)),
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AddTile writes t to its canonical level-0 file and blends a downsampled
// copy into the coarse thumbnail accumulator.
func (c *IIIFPyramidCanvas) AddTile(_ context.Context, t model.Tile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "AddTile called after Finalize"}
	}

	name := fmt.Sprintf("%d,%d,%d,%d.jpg", t.Ref.Position.X, t.Ref.Position.Y, t.Width(), t.Height())
	path := filepath.Join(c.opts.OutPath, "0", name)
	if err := writeJPEGAtomic(path, t.Img, c.opts.Compression); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write level-0 tile", Err: err}
	}
	c.tilesWritten++

	dst := image.Rect(
		int(float64(t.Ref.Position.X)*c.scale),
		int(float64(t.Ref.Position.Y)*c.scale),
		int(math.Ceil(float64(t.Ref.Position.X+t.Width())*c.scale)),
		int(math.Ceil(float64(t.Ref.Position.Y+t.Height())*c.scale)),
	).Intersect(c.thumb.Bounds())
	if !dst.Empty() {
		draw.CatmullRom.Scale(c.thumb, dst, t.Img, t.Img.Bounds(), draw.Over, nil)
	}
	return nil
}

type iiifInfoOut struct {
	Context  string `json:"@context"`
	ID       string `json:"@id"`
	Protocol string `json:"protocol"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Sizes    []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"sizes"`
}

// Finalize writes the thumbnail derivative, info.json, and viewer.html. All
// three land through ".tmp" + rename so a crash never leaves a half-written
// info.json (§4.5, §8 invariant 7).
func (c *IIIFPyramidCanvas) Finalize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "Finalize called twice"}
	}
	c.finalized = true

	fullDir := filepath.Join(c.opts.OutPath, "full", fmt.Sprintf("%d,%d", c.thumbW, c.thumbH), "0")
	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "create full/ directory", Err: err}
	}
	if err := writeJPEGAtomic(filepath.Join(fullDir, "default.jpg"), c.thumb, c.opts.Compression); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write full derivative", Err: err}
	}

	info := iiifInfoOut{
		Context:  "http://iiif.io/api/image/2/context.json",
		ID:       ".",
		Protocol: "http://iiif.io/api/image",
		Width:    c.opts.Width,
		Height:   c.opts.Height,
	}
	info.Sizes = append(info.Sizes, struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}{c.thumbW, c.thumbH})

	infoJSON, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "marshal info.json", Err: err}
	}
	if err := writeFileAtomic(filepath.Join(c.opts.OutPath, "info.json"), infoJSON); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write info.json", Err: err}
	}

	html := fmt.Sprintf(viewerHTMLTemplate, filepath.Base(c.opts.OutPath), c.thumbW, c.thumbH, filepath.Base(c.opts.OutPath))
	if err := writeFileAtomic(filepath.Join(c.opts.OutPath, "viewer.html"), []byte(html)); err != nil {
		return &model.CanvasError{Kind: model.CanvasIO, Reason: "write viewer.html", Err: err}
	}
	return nil
}

func writeJPEGAtomic(path string, img image.Image, compression int) error {
	quality := 100 - compression
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
