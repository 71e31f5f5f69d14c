package dezoomer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dezoomify/model"
)

// NYPL implements the New York Public Library's digital collections
// viewer: an item page URL is rewritten to a tiles/config.js metadata
// request, whose "configs"."0" entry gives a single-resolution tile grid
// served from a fixed "/tiles/0/12/{x}_{y}.png" path (§4.2, grounded on
// original_source/src/nypl/mod.rs).
type NYPL struct{}

func (NYPL) Name() string { return "NYPLImage" }

const (
	nyplImageViewPrefix = "https://digitalcollections.nypl.org/items/"
	nyplMetaPrefix      = "https://access.nypl.org/image.php/"
	nyplMetaPostfix     = "/tiles/config.js"
)

func (NYPL) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	// in.URI never changes across NeedsData rounds (it stays pinned to the
	// original request), so the round is distinguished by whether the
	// metadata has arrived yet, not by inspecting the URI itself.
	if in.Data == nil {
		switch {
		case strings.HasPrefix(in.URI, nyplImageViewPrefix):
			imageID := strings.TrimPrefix(in.URI, nyplImageViewPrefix)
			return nil, model.ErrNeedsData(nyplMetaPrefix + imageID + nyplMetaPostfix)
		case strings.Contains(in.URI, nyplMetaPrefix):
			return nil, model.ErrNeedsData(in.URI)
		default:
			return nil, model.ErrWrongDezoomer("uri is not a NYPL digital collections item")
		}
	}

	base, err := nyplImageID(in.URI)
	if err != nil {
		return nil, model.ErrWrongDezoomer(err.Error())
	}

	meta, err := parseNYPLMetadata(in.Data)
	if err != nil {
		return nil, model.ErrBadMetadata("invalid NYPL tile config", err)
	}

	level := &rectGrid{
		name:   "NYPL image",
		width:  meta.width,
		height: meta.height,
		tileW:  meta.tileSize,
		tileH:  meta.tileSize,
		urlFunc: func(col, row int) string {
			return fmt.Sprintf("%s%s/tiles/0/12/%d_%d.png", nyplMetaPrefix, base, col, row)
		},
	}

	return &model.ZoomableImage{Title: "NYPL image", Levels: []model.ZoomLevel{level}}, nil
}

// nyplImageID recovers the item's image ID from either URI shape this
// dezoomer accepts: an item-view page (pinned across NeedsData rounds) or
// an already-resolved config.js metadata URL.
func nyplImageID(uri string) (string, error) {
	if strings.HasPrefix(uri, nyplImageViewPrefix) {
		return strings.TrimPrefix(uri, nyplImageViewPrefix), nil
	}
	if strings.Contains(uri, nyplMetaPrefix) {
		return strings.TrimSuffix(strings.TrimPrefix(uri, nyplMetaPrefix), nyplMetaPostfix), nil
	}
	return "", fmt.Errorf("uri is not a NYPL digital collections item")
}

type nyplMetadata struct {
	width, height, tileSize int
}

type nyplConfigFile struct {
	Configs map[string]struct {
		Size struct {
			Width  string `json:"width"`
			Height string `json:"height"`
		} `json:"size"`
		TileSize string `json:"tilesize"`
	} `json:"configs"`
}

func parseNYPLMetadata(data []byte) (nyplMetadata, error) {
	var file nyplConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nyplMetadata{}, fmt.Errorf("not valid json: %w", err)
	}
	config, ok := file.Configs["0"]
	if !ok {
		return nyplMetadata{}, fmt.Errorf(`missing "configs"."0" entry`)
	}
	width, err := strconv.Atoi(config.Size.Width)
	if err != nil {
		return nyplMetadata{}, fmt.Errorf("invalid width: %w", err)
	}
	height, err := strconv.Atoi(config.Size.Height)
	if err != nil {
		return nyplMetadata{}, fmt.Errorf("invalid height: %w", err)
	}
	tileSize, err := strconv.Atoi(config.TileSize)
	if err != nil {
		return nyplMetadata{}, fmt.Errorf("invalid tilesize: %w", err)
	}
	return nyplMetadata{width: width, height: height, tileSize: tileSize}, nil
}
