package dezoomer

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"dezoomify/model"
)

// DZI implements Microsoft's Deep Zoom Image format: a .dzi (or .xml) file
// describing tile size, overlap, and full-resolution size, with tiles
// served from a "{base}_files/{level}/{col}_{row}.{format}" directory tree
// and a power-of-two pyramid down to a single 1x1 tile (§4.2, grounded on
// original_source/src/dzi/mod.rs and dzi/dzi_file.rs).
type DZI struct{}

func (DZI) Name() string { return "deepzoom" }

func (DZI) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	if !strings.HasSuffix(in.URI, ".dzi") && !strings.HasSuffix(in.URI, ".xml") {
		return nil, model.ErrWrongDezoomer("uri does not end in .dzi or .xml")
	}
	if in.Data == nil {
		return nil, model.ErrNeedsData(in.URI)
	}

	var file dziFile
	if err := xml.Unmarshal(in.Data, &file); err != nil {
		return nil, model.ErrBadMetadata("unable to parse dzi file", err)
	}
	if file.TileSize == 0 {
		return nil, model.ErrBadMetadata("invalid tile size", nil)
	}
	if len(file.Size) == 0 {
		return nil, model.ErrBadMetadata("expected a Size element in the dzi file", nil)
	}

	width, height := int(file.Size[0].Width), int(file.Size[0].Height)

	dotPos := strings.LastIndex(in.URI, ".")
	if dotPos < 0 {
		dotPos = len(in.URI)
	}
	baseURL := in.URI[:dotPos] + "_files"

	maxLevel := log2Ceil(max(width, height))

	var levels []model.ZoomLevel
	w, h := width, height
	for levelNum := 0; ; levelNum++ {
		level := maxLevel - levelNum
		overlap := int(file.Overlap)
		format := file.Format
		levels = append(levels, &rectGrid{
			name:   fmt.Sprintf("Deep Zoom level %d", level),
			width:  w,
			height: h,
			tileW:  int(file.TileSize),
			tileH:  int(file.TileSize),
			urlFunc: func(col, row int) string {
				return fmt.Sprintf("%s/%d/%d_%d.%s", baseURL, level, col, row, format)
			},
			// DZI tiles at col/row > 0 are padded on their leading edge by
			// Overlap pixels that belong to the previous tile; the tile's
			// declared position must subtract that padding so neighbouring
			// tiles still abut (§4.2, §9 open question a notes the
			// resulting seam sensitivity under reordering).
			posFunc: func(col, row int) (int, int) {
				dx, dy := 0, 0
				if col > 0 {
					dx = overlap
				}
				if row > 0 {
					dy = overlap
				}
				return col*int(file.TileSize) - dx, row*int(file.TileSize) - dy
			},
		})
		if w <= 1 && h <= 1 {
			break
		}
		w, h = ceilDiv(w, 2), ceilDiv(h, 2)
	}

	return &model.ZoomableImage{Title: "Deep Zoom image", Levels: levels}, nil
}

type dziFile struct {
	XMLName  xml.Name `xml:"Image"`
	Overlap  uint32   `xml:"Overlap,attr"`
	TileSize uint32   `xml:"TileSize,attr"`
	Format   string   `xml:"Format,attr"`
	Size     []struct {
		Width  uint32 `xml:"Width,attr"`
		Height uint32 `xml:"Height,attr"`
	} `xml:"Size"`
}

func log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	for v := n - 1; v > 0; v >>= 1 {
		bits++
	}
	return bits
}
