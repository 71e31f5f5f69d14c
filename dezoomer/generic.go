package dezoomer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"dezoomify/model"
	"dezoomify/pkg/httpclient"
)

// Generic implements dezoomify-rs' fallback dezoomer: a URL containing
// literal "{{X}}"/"{{Y}}" placeholders names an unknown tile grid, whose
// width and height are discovered by probing tiles for existence. The
// original drives this discovery interleaved with the real tile fetches
// (each TileProvider.next_tiles call receives the previous batch's fetch
// results); this port instead runs the whole doubling search synchronously
// inside Probe with lightweight HEAD requests, so that by the time a
// ZoomableImage is returned its single level already has a fixed,
// known-good Dimensions() (§4.2, grounded on original_source/src/generic/mod.rs).
//
// Client/Headers carry the configured httpclient.Client through every
// fetch and existence probe this dezoomer makes, per §4.6.
type Generic struct {
	Client  *httpclient.Client
	Headers map[string]string
}

func (Generic) Name() string { return "generic" }

func (g Generic) Probe(ctx context.Context, in model.Input) (*model.ZoomableImage, error) {
	if !strings.Contains(in.URI, "{{X}}") {
		return nil, model.ErrWrongDezoomer("uri has no {{X}} template variable")
	}
	tileURL := func(x, y int) string {
		u := strings.ReplaceAll(in.URI, "{{X}}", strconv.Itoa(x))
		return strings.ReplaceAll(u, "{{Y}}", strconv.Itoa(y))
	}

	firstBody, err := g.Client.Fetch(ctx, tileURL(0, 0), g.Headers)
	if err != nil {
		return nil, model.ErrFatal("generic dezoomer: tile (0,0) could not be fetched", err)
	}
	img, _, err := image.Decode(bytes.NewReader(firstBody))
	if err != nil {
		return nil, model.ErrFatal("generic dezoomer: tile (0,0) is not a decodable image", err)
	}
	tileW, tileH := img.Bounds().Dx(), img.Bounds().Dy()

	width, err := g.discoverWidth(ctx, tileURL)
	if err != nil {
		return nil, model.ErrFatal("generic dezoomer: width discovery failed", err)
	}
	height, err := g.discoverHeight(ctx, tileURL, width)
	if err != nil {
		return nil, model.ErrFatal("generic dezoomer: height discovery failed", err)
	}

	level := &rectGrid{
		name:   fmt.Sprintf("Generic image with template %s", in.URI),
		width:  width * tileW,
		height: height * tileH,
		tileW:  tileW,
		tileH:  tileH,
		urlFunc: func(col, row int) string {
			return tileURL(col, row)
		},
	}

	return &model.ZoomableImage{Title: "Generic image", Levels: []model.ZoomLevel{level}}, nil
}

// discoverWidth finds the width of the first row of tiles, in tile
// units, by doubling the probed range on every fully-successful batch (x=0
// is assumed to already exist, having been fetched to determine tile size).
// At each step it estimates the remaining width as max(current, 4) * 2, the
// same heuristic as the original, trading extra requests for fewer round
// trips on large images.
// genericMaxTiles bounds discovery against a server that never returns a
// failure status, which would otherwise make the doubling search run
// forever.
const genericMaxTiles = 1 << 20

func (g Generic) discoverWidth(ctx context.Context, tileURL func(x, y int) string) (int, error) {
	current := 1
	for current < genericMaxTiles {
		upper := max(current, 4) * 2
		lastGood := current - 1
		for x := current; x < upper; x++ {
			ok, err := g.Client.Exists(ctx, tileURL(x, 0), g.Headers)
			if err != nil {
				return 0, err
			}
			if !ok {
				return lastGood + 1, nil
			}
			lastGood = x
		}
		current = upper
	}
	return 0, fmt.Errorf("no end of row found within %d tiles", genericMaxTiles)
}

// discoverHeight finds the number of fully-populated rows, counting the
// first one, stopping at the first row with any missing tile.
func (g Generic) discoverHeight(ctx context.Context, tileURL func(x, y int) string, width int) (int, error) {
	for y := 1; y < genericMaxTiles; y++ {
		for x := 0; x < width; x++ {
			ok, err := g.Client.Exists(ctx, tileURL(x, y), g.Headers)
			if err != nil {
				return 0, err
			}
			if !ok {
				return y, nil
			}
		}
	}
	return 0, fmt.Errorf("no end of image found within %d rows", genericMaxTiles)
}
