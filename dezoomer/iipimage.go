package dezoomer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dezoomify/model"
)

// IIPImage implements the IIPImage protocol
// (https://iipimage.sourceforge.io/documentation/protocol/): a "?FIF=..."
// image request is followed by a metadata request appending
// "&OBJ=Max-size&OBJ=Tile-size&OBJ=Resolution-number", whose plain-text
// response gives a power-of-two pyramid queried with "&JTL={level},{index}"
// (§4.2, grounded on original_source/src/iipimage/mod.rs).
type IIPImage struct{}

func (IIPImage) Name() string { return "IIPImage" }

const iipMetaRequestParams = "&OBJ=Max-size&OBJ=Tile-size&OBJ=Resolution-number"

var iipFifRe = regexp.MustCompile(`(?i)\?FIF`)

func (IIPImage) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	base := in.URI
	if idx := strings.IndexByte(base, '&'); idx >= 0 {
		base = base[:idx]
	}

	// in.URI never changes across NeedsData rounds (it stays pinned to the
	// original request), so the round is distinguished by whether the
	// metadata has arrived yet, not by inspecting the URI itself.
	if in.Data == nil {
		if !iipFifRe.MatchString(in.URI) {
			return nil, model.ErrWrongDezoomer("uri has no ?FIF parameter")
		}
		return nil, model.ErrNeedsData(base + iipMetaRequestParams)
	}

	meta, err := parseIIPMetadata(string(in.Data))
	if err != nil {
		return nil, model.ErrBadMetadata("invalid IIPImage metadata", err)
	}

	levels := make([]model.ZoomLevel, meta.levels)
	for level := 0; level < meta.levels; level++ {
		level := level
		reverseLevel := meta.levels - level - 1
		divisor := 1 << reverseLevel
		// Level pyramid halving is plain (floor) division, distinct from the
		// ceiling division used below for the tile-grid count at each level.
		w := meta.width / divisor
		h := meta.height / divisor
		levels[level] = &rectGrid{
			name:   fmt.Sprintf("IIPImage level %d", level),
			width:  w,
			height: h,
			tileW:  meta.tileWidth,
			tileH:  meta.tileHeight,
			urlFunc: func(col, row int) string {
				tilesX := ceilDiv(w, meta.tileWidth)
				tileIndex := row*tilesX + col
				return fmt.Sprintf("%s&JTL=%d,%d", base, level, tileIndex)
			},
		}
	}

	return &model.ZoomableImage{Title: "IIPImage image", Levels: levels}, nil
}

type iipMetadata struct {
	width, height         int
	tileWidth, tileHeight int
	levels                int
}

// parseIIPMetadata parses the plain-text "Key:value value" response to the
// Max-size/Tile-size/Resolution-number OBJ requests.
func parseIIPMetadata(s string) (iipMetadata, error) {
	var meta iipMetadata
	var haveSize, haveTile, haveLevels bool
	for _, line := range strings.Split(s, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		nums := strings.Fields(val)
		switch {
		case strings.EqualFold(key, "max-size") && len(nums) >= 2:
			w, err1 := strconv.Atoi(nums[0])
			h, err2 := strconv.Atoi(nums[1])
			if err1 == nil && err2 == nil {
				meta.width, meta.height = w, h
				haveSize = true
			}
		case strings.EqualFold(key, "tile-size") && len(nums) >= 2:
			w, err1 := strconv.Atoi(nums[0])
			h, err2 := strconv.Atoi(nums[1])
			if err1 == nil && err2 == nil {
				meta.tileWidth, meta.tileHeight = w, h
				haveTile = true
			}
		case strings.EqualFold(key, "resolution-number") && len(nums) >= 1:
			n, err := strconv.Atoi(nums[0])
			if err == nil {
				meta.levels = n
				haveLevels = true
			}
		}
	}
	if !haveSize {
		return iipMetadata{}, fmt.Errorf("missing key 'Max-size' in the IIPImage metadata")
	}
	if !haveTile {
		return iipMetadata{}, fmt.Errorf("missing key 'Tile-size' in the IIPImage metadata")
	}
	if !haveLevels {
		return iipMetadata{}, fmt.Errorf("missing key 'Resolution-number' in the IIPImage metadata")
	}
	return meta, nil
}
