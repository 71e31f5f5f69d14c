package dezoomer

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"dezoomify/model"
)

// Zoomify implements the Zoomify tile protocol: an ImageProperties.xml
// giving the full-resolution size and tile size, with an implicit power-of-
// two pyramid above it and tiles grouped 256-per-directory under
// TileGroup{n}/ (§4.2, grounded on original_source/src/zoomify/mod.rs and
// zoomify/image_properties.rs).
type Zoomify struct{}

func (Zoomify) Name() string { return "zoomify" }

func (Zoomify) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	if !strings.Contains(in.URI, "/ImageProperties.xml") {
		return nil, model.ErrWrongDezoomer("uri does not reference an ImageProperties.xml")
	}
	if in.Data == nil {
		return nil, model.ErrNeedsData(in.URI)
	}

	var props zoomifyImageProperties
	if err := xml.Unmarshal(in.Data, &props); err != nil {
		return nil, model.ErrBadMetadata("unable to parse ImageProperties.xml", err)
	}
	if props.TileSize == 0 {
		return nil, model.ErrBadMetadata("ImageProperties.xml has no TILESIZE", nil)
	}

	baseURL := in.URI
	if idx := strings.Index(baseURL, "/ImageProperties.xml"); idx >= 0 {
		baseURL = baseURL[:idx]
	}

	infos := zoomifyLevelInfos(int(props.Width), int(props.Height), int(props.TileSize), int(props.NumTiles))
	levels := make([]model.ZoomLevel, len(infos))
	// original_source enumerates levels from full-resolution down to
	// thumbnail and then reverses, so level 0 is the smallest; we build the
	// same numbering directly since infos is already smallest-to-largest.
	for i, info := range infos {
		info := info
		z := i
		levels[i] = &rectGrid{
			name:   fmt.Sprintf("Zoomify level %d", z),
			width:  info.w,
			height: info.h,
			tileW:  int(props.TileSize),
			tileH:  int(props.TileSize),
			urlFunc: func(col, row int) string {
				tilesX := ceilDiv(info.w, int(props.TileSize))
				group := (info.tilesBefore + col + row*tilesX) / 256
				return fmt.Sprintf("%s/TileGroup%d/%d-%d-%d.jpg", baseURL, group, z, col, row)
			},
		}
	}

	return &model.ZoomableImage{Title: "Zoomify image", Levels: levels}, nil
}

type zoomifyImageProperties struct {
	XMLName  xml.Name `xml:"IMAGE_PROPERTIES"`
	Width    uint32   `xml:"WIDTH,attr"`
	Height   uint32   `xml:"HEIGHT,attr"`
	TileSize uint32   `xml:"TILESIZE,attr"`
	NumTiles uint32   `xml:"NUMTILES,attr"`
}

type zoomifyLevelInfo struct {
	w, h, tilesBefore int
}

// zoomifyLevelInfos walks down from full resolution, halving (ceiling
// division) at each step until NUMTILES is used up, then reverses so the result is
// ordered smallest first. tilesBefore accumulates the running count of
// tiles in levels above the current one, exactly mirroring
// ImageProperties::levels' remaining_tiles bookkeeping.
func zoomifyLevelInfos(width, height, tileSize, numTiles int) []zoomifyLevelInfo {
	var reversed []zoomifyLevelInfo
	remaining := numTiles
	w, h := width, height
	for remaining > 0 {
		tilesX := ceilDiv(w, tileSize)
		tilesY := ceilDiv(h, tileSize)
		remaining -= tilesX * tilesY
		reversed = append(reversed, zoomifyLevelInfo{w: w, h: h, tilesBefore: remaining})
		w = ceilDiv(w, 2)
		h = ceilDiv(h, 2)
	}
	infos := make([]zoomifyLevelInfo, len(reversed))
	for i, v := range reversed {
		infos[len(reversed)-1-i] = v
	}
	return infos
}
