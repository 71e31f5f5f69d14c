package dezoomer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"dezoomify/model"
)

// Krpano implements the krpano panorama viewer's tiling XML
// (https://krpano.com/docu/xml/#top): one or more <image> pyramids, each
// with named shape elements (cube/cylinder/flat, or a cube's six faces
// given as separate left/right/front/back/up/down elements) whose url
// attribute is a %-template string (§4.2, grounded on
// original_source/src/krpano/{mod,krpano_metadata}.rs).
type Krpano struct{}

func (Krpano) Name() string { return "krpano" }

func (Krpano) Probe(_ context.Context, in model.Input) (*model.ZoomableImage, error) {
	if in.Data == nil {
		return nil, model.ErrNeedsData(in.URI)
	}

	data := bytes.TrimPrefix(in.Data, []byte{0xEF, 0xBB, 0xBF})
	var meta krpanoMetadata
	if err := xml.Unmarshal(data, &meta); err != nil {
		return nil, model.ErrWrongDezoomer("not a krpano xml file")
	}
	if len(meta.Image) == 0 {
		return nil, model.ErrWrongDezoomer("krpano xml has no <image> elements")
	}

	slashPos := strings.LastIndex(in.URI, "/")
	if slashPos < 0 {
		slashPos = len(in.URI) - 1
	}
	baseURL, err := url.Parse(in.URI[:slashPos+1])
	if err != nil {
		return nil, model.ErrFatal("invalid krpano metadata uri", err)
	}

	var levels []model.ZoomLevel
	for _, image := range meta.Image {
		baseIndex := 1
		if image.BaseIndex != nil {
			baseIndex = *image.BaseIndex
		}
		tileSize := image.TileSize
		for _, level := range image.Level {
			for _, shape := range level.shapes() {
				parts, err := parseKrpanoTemplate(shape.url)
				if err != nil {
					return nil, model.ErrFatal("invalid krpano url template", err)
				}
				for _, variant := range expandKrpanoSides(parts) {
					variant := variant
					name := strings.TrimSpace(fmt.Sprintf("Krpano %s %s", shape.name, variant.sideName))
					levels = append(levels, &rectGrid{
						name:   name,
						width:  level.Width,
						height: level.Height,
						tileW:  tileSize,
						tileH:  tileSize,
						urlFunc: func(col, row int) string {
							rendered := renderKrpanoTemplate(variant.parts, baseIndex, col, row)
							ref, err := baseURL.Parse(rendered)
							if err != nil {
								return rendered
							}
							return ref.String()
						},
					})
				}
			}
		}
	}
	if len(levels) == 0 {
		return nil, model.ErrNoLevelsFound()
	}

	return &model.ZoomableImage{Title: "Krpano panorama", Levels: levels}, nil
}

type krpanoMetadata struct {
	XMLName xml.Name      `xml:"krpano"`
	Image   []krpanoImage `xml:"image"`
}

type krpanoImage struct {
	TileSize  int           `xml:"tilesize,attr"`
	BaseIndex *int          `xml:"baseindex,attr"`
	Level     []krpanoLevel `xml:"level"`
}

type krpanoLevel struct {
	Width  int `xml:"tiledimagewidth,attr"`
	Height int `xml:"tiledimageheight,attr"`

	Cube     []krpanoShapeXML `xml:"cube"`
	Cylinder []krpanoShapeXML `xml:"cylinder"`
	Flat     []krpanoShapeXML `xml:"flat"`
	Left     []krpanoShapeXML `xml:"left"`
	Right    []krpanoShapeXML `xml:"right"`
	Front    []krpanoShapeXML `xml:"front"`
	Back     []krpanoShapeXML `xml:"back"`
	Up       []krpanoShapeXML `xml:"up"`
	Down     []krpanoShapeXML `xml:"down"`
}

type krpanoShapeXML struct {
	URL string `xml:"url,attr"`
}

type krpanoShape struct {
	name string
	url  string
}

// shapes flattens a level's named shape elements into a uniform list; a
// level with separate left/right/.../down elements yields one shape per
// element rather than the combined %s-templated form.
func (l krpanoLevel) shapes() []krpanoShape {
	var out []krpanoShape
	add := func(name string, xs []krpanoShapeXML) {
		for _, x := range xs {
			out = append(out, krpanoShape{name: name, url: x.URL})
		}
	}
	add("Cube", l.Cube)
	add("Cylinder", l.Cylinder)
	add("Flat", l.Flat)
	add("Left", l.Left)
	add("Right", l.Right)
	add("Front", l.Front)
	add("Back", l.Back)
	add("Up", l.Up)
	add("Down", l.Down)
	return out
}

type krpanoTemplateVar byte

const (
	krpanoVarX krpanoTemplateVar = 'x'
	krpanoVarY krpanoTemplateVar = 'y'
	krpanoVarSide krpanoTemplateVar = 's'
)

type krpanoTemplatePart struct {
	literal string
	isVar   bool
	padding int
	axis    krpanoTemplateVar
}

// parseKrpanoTemplate parses a krpano url attribute: %h/%x/%u/%c address the
// horizontal tile coordinate, %v/%y/%r the vertical one, %s the cube face
// letter, each optionally preceded by zero-padding digits: a run of zeros
// pads to that many digits (%0000c), a zero-prefixed width such as %0004x
// pads to that width.
func parseKrpanoTemplate(tmpl string) ([]krpanoTemplatePart, error) {
	var parts []krpanoTemplatePart
	i := 0
	for i < len(tmpl) {
		start := i
		for i < len(tmpl) && tmpl[i] != '%' {
			i++
		}
		if i > start {
			parts = append(parts, krpanoTemplatePart{literal: tmpl[start:i]})
		}
		if i >= len(tmpl) {
			break
		}
		i++ // skip '%'
		padStart := i
		for i < len(tmpl) && tmpl[i] >= '0' && tmpl[i] <= '9' {
			i++
		}
		digits := tmpl[padStart:i]
		padding := len(digits)
		if n, err := strconv.Atoi(digits); err == nil && n > 0 {
			padding = n
		}
		if i >= len(tmpl) {
			return nil, fmt.Errorf("invalid templating syntax in %q", tmpl)
		}
		c := tmpl[i]
		i++
		var axis krpanoTemplateVar
		switch c {
		case 'h', 'x', 'u', 'c':
			axis = krpanoVarX
		case 'v', 'y', 'r':
			axis = krpanoVarY
		case 's':
			axis = krpanoVarSide
		default:
			return nil, fmt.Errorf("unknown template variable %q in %q", c, tmpl)
		}
		parts = append(parts, krpanoTemplatePart{isVar: true, padding: padding, axis: axis})
	}
	return parts, nil
}

type krpanoSideVariant struct {
	sideName string
	parts    []krpanoTemplatePart
}

var krpanoSides = []string{"forward", "back", "left", "right", "up", "down"}

// expandKrpanoSides returns one variant per cube face when the template
// contains a %s placeholder (substituted with the face's first letter), or
// a single unnamed variant otherwise.
func expandKrpanoSides(parts []krpanoTemplatePart) []krpanoSideVariant {
	hasSide := false
	for _, p := range parts {
		if p.isVar && p.axis == krpanoVarSide {
			hasSide = true
			break
		}
	}
	if !hasSide {
		return []krpanoSideVariant{{parts: parts}}
	}
	variants := make([]krpanoSideVariant, 0, len(krpanoSides))
	for _, side := range krpanoSides {
		letter := string(side[0])
		resolved := make([]krpanoTemplatePart, len(parts))
		for i, p := range parts {
			if p.isVar && p.axis == krpanoVarSide {
				resolved[i] = krpanoTemplatePart{literal: letter}
			} else {
				resolved[i] = p
			}
		}
		variants = append(variants, krpanoSideVariant{sideName: side, parts: resolved})
	}
	return variants
}

func renderKrpanoTemplate(parts []krpanoTemplatePart, baseIndex, x, y int) string {
	var b strings.Builder
	for _, p := range parts {
		if !p.isVar {
			b.WriteString(p.literal)
			continue
		}
		value := baseIndex
		switch p.axis {
		case krpanoVarX:
			value += x
		case krpanoVarY:
			value += y
		}
		s := strconv.Itoa(value)
		for len(s) < p.padding {
			s = "0" + s
		}
		b.WriteString(s)
	}
	return b.String()
}
