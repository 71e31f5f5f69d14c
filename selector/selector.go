// Package selector implements §4.3: choosing one ZoomLevel out of a probed
// ZoomableImage's pyramid according to the user's --max-width/--max-height
// bounds, or reporting ambiguity when more than one level fits equally well.
package selector

import (
	"fmt"
	"sort"

	"dezoomify/model"
)

// Options bounds the candidate set by pixel size. A zero value means
// unbounded on that axis.
type Options struct {
	MaxWidth  int
	MaxHeight int
}

// Select picks the level with the largest pixel area among those whose
// dimensions fit within opts; several levels tied at that area yield
// ConfigAmbiguousLevel. Levels with unknown dimensions (Dimensions() ok ==
// false, e.g. a custom YAML tile set with no width/height) are always eligible, since their size cannot be
// compared against a bound yet; when such a level is the sole candidate it
// is returned without ambiguity.
func Select(img *model.ZoomableImage, opts Options) (model.ZoomLevel, error) {
	if len(img.Levels) == 0 {
		return nil, model.ErrNoLevelsFound()
	}

	type candidate struct {
		level model.ZoomLevel
		area  int // -1 when dimensions are unknown
	}

	var fits []candidate
	for _, lvl := range img.Levels {
		w, h, ok := lvl.Dimensions()
		if !ok {
			fits = append(fits, candidate{level: lvl, area: -1})
			continue
		}
		if opts.MaxWidth > 0 && w > opts.MaxWidth {
			continue
		}
		if opts.MaxHeight > 0 && h > opts.MaxHeight {
			continue
		}
		fits = append(fits, candidate{level: lvl, area: w * h})
	}

	if len(fits) == 0 {
		return nil, &model.ConfigError{
			Kind:   model.ConfigAmbiguousLevel,
			Reason: fmt.Sprintf("no zoom level fits within %dx%d", opts.MaxWidth, opts.MaxHeight),
		}
	}

	sort.Slice(fits, func(i, j int) bool { return fits[i].area > fits[j].area })

	best := fits[0].area
	var tied []candidate
	for _, c := range fits {
		if c.area != best {
			break
		}
		tied = append(tied, c)
	}
	if len(tied) > 1 && best >= 0 {
		names := make([]string, len(tied))
		for i, c := range tied {
			names[i] = c.level.Name()
		}
		return nil, &model.ConfigError{
			Kind:   model.ConfigAmbiguousLevel,
			Reason: fmt.Sprintf("%d zoom levels tie at the largest size fitting the bound: %v", len(tied), names),
		}
	}

	return fits[0].level, nil
}
