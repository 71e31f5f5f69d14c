package dezoomer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dezoomify/model"
)

// IIIF implements the International Image Interoperability Framework Image
// API: an info.json advertising size, tile size(s) and scale factors, with
// tiles requested by region/size IIIF URLs (§4.2, grounded on
// original_source/src/iiif/mod.rs and iiif/tile_info.rs).
type IIIF struct{}

func (IIIF) Name() string { return "iiif" }

func (IIIF) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	if in.Data == nil {
		if !strings.Contains(in.URI, "info.json") {
			return nil, model.ErrWrongDezoomer("uri does not reference info.json")
		}
		return nil, model.ErrNeedsData(in.URI)
	}

	var info iiifImageInfo
	if err := json.Unmarshal(in.Data, &info); err != nil {
		return nil, model.ErrBadMetadata("invalid IIIF info.json", err)
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, model.ErrWrongDezoomer("info.json has no width/height")
	}

	baseURL := info.ID
	if baseURL == "" {
		baseURL = strings.Replace(in.URI, "/info.json", "", 1)
	}

	quality := bestOf(info.Qualities, iiifQualityOrder, "default")
	format := bestOf(info.Formats, iiifFormatOrder, "jpg")

	var levels []model.ZoomLevel
	for _, tileInfo := range info.tileSpecs() {
		for _, scale := range tileInfo.ScaleFactors {
			scale := scale
			tileW, tileH := tileInfo.Width, tileInfo.Height
			if tileH == 0 {
				tileH = tileW
			}
			levelW := ceilDiv(info.Width, scale)
			levelH := ceilDiv(info.Height, scale)
			levels = append(levels, &rectGrid{
				name:   fmt.Sprintf("IIIF scale %d", scale),
				width:  levelW,
				height: levelH,
				tileW:  ceilDiv(tileW, scale),
				tileH:  ceilDiv(tileH, scale),
				urlFunc: func(col, row int) string {
					scaledTileW, scaledTileH := tileW*scale, tileH*scale
					x, y := col*scaledTileW, row*scaledTileH
					w := min(scaledTileW, info.Width-x)
					h := min(scaledTileH, info.Height-y)
					return fmt.Sprintf("%s/%d,%d,%d,%d/%d,%d/0/%s.%s",
						baseURL, x, y, w, h, ceilDiv(w, scale), ceilDiv(h, scale), quality, format)
				},
				posFunc: func(col, row int) (int, int) {
					return col * ceilDiv(tileW, scale), row * ceilDiv(tileH, scale)
				},
			})
		}
	}
	if len(levels) == 0 {
		return nil, model.ErrNoLevelsFound()
	}

	return &model.ZoomableImage{Title: "IIIF image", Levels: levels}, nil
}

type iiifImageInfo struct {
	ID         string         `json:"@id"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Qualities  []string       `json:"qualities"`
	Formats    []string       `json:"formats"`
	Tiles      []iiifTileInfo `json:"tiles"`
	ScaleFactors []int        `json:"scale_factors"`
	TileWidth  int            `json:"tile_width"`
	TileHeight int            `json:"tile_height"`
}

type iiifTileInfo struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ScaleFactors []int `json:"scaleFactors"`
}

// tileSpecs returns the "tiles" array of IIIF v2 info.json, or synthesises
// one from the v1 tile_width/tile_height/scale_factors fields when absent,
// mirroring ImageInfo::tiles in original_source.
func (info iiifImageInfo) tileSpecs() []iiifTileInfo {
	if len(info.Tiles) > 0 {
		return info.Tiles
	}
	t := iiifTileInfo{Width: 512, ScaleFactors: []int{1}}
	if info.TileWidth > 0 {
		t.Width = info.TileWidth
	}
	if info.TileHeight > 0 {
		t.Height = info.TileHeight
	}
	if len(info.ScaleFactors) > 0 {
		t.ScaleFactors = info.ScaleFactors
	}
	return []iiifTileInfo{t}
}

var iiifQualityOrder = []string{"bitonal", "gray", "color", "default", "native"}
var iiifFormatOrder = []string{"gif", "bmp", "tif", "png", "jpg", "jpeg", "webp"}

// bestOf picks the candidate from options that ranks highest in order
// (least favourite first), or fallback if options is empty or none match.
func bestOf(options []string, order []string, fallback string) string {
	best := -1
	bestRank := -1
	for i, opt := range options {
		for rank, o := range order {
			if o == opt && rank > bestRank {
				bestRank = rank
				best = i
			}
		}
	}
	if best < 0 {
		return fallback
	}
	return options[best]
}
