package dezoomer

import (
	"context"
	"fmt"
	"image"
	"iter"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dezoomify/model"
	"dezoomify/variable"
)

// CustomYAML implements dezoomify-rs' hand-written tile set format: a
// "tiles.yaml" file describing zero or more ranged/constant variables and a
// set of url/x/y templates evaluated once per combination of variable
// values, the cartesian product of every ranged variable's range (§4.2,
// grounded on original_source/src/custom_yaml/{mod,variable,tile_set}.rs).
// Unlike the other nine formats, the resulting tile set is not necessarily a
// rectangular grid, so it gets its own ZoomLevel rather than rectGrid.
//
// Dispatch resolves the "dezoomer" composition key: when tiles.yaml sets it,
// url_template no longer names leaf tiles directly, it names a page/manifest
// URL per variable combination that the given named dezoomer must probe in
// turn. It is a function value rather than a *registry.Registry field, so
// this package does not depend on package registry.
type CustomYAML struct {
	Dispatch func(ctx context.Context, name, uri string) (*model.ZoomableImage, error)
}

func (CustomYAML) Name() string { return "custom" }

func (c CustomYAML) Probe(ctx context.Context, in model.Input) (*model.ZoomableImage, error) {
	if !strings.HasSuffix(in.URI, "tiles.yaml") {
		return nil, model.ErrWrongDezoomer("uri does not end in tiles.yaml")
	}
	if in.Data == nil {
		return nil, model.ErrNeedsData(in.URI)
	}

	var file customYAMLFile
	if err := yaml.Unmarshal(in.Data, &file); err != nil {
		return nil, model.ErrBadMetadata("invalid tiles.yaml", err)
	}
	if file.URLTemplate == "" {
		return nil, model.ErrBadMetadata("tiles.yaml has no url_template", nil)
	}

	urlTemplate, err := variable.ParseTemplate(file.URLTemplate)
	if err != nil {
		return nil, model.ErrFatal("invalid url_template", err)
	}
	declared := make(map[string]bool, len(file.Variables))
	for _, v := range file.Variables {
		declared[v.Name] = true
	}
	xTemplate := file.XTemplate
	if xTemplate == "" {
		xTemplate = "0"
		if declared["x"] {
			xTemplate = "x"
		}
	}
	yTemplate := file.YTemplate
	if yTemplate == "" {
		yTemplate = "0"
		if declared["y"] {
			yTemplate = "y"
		}
	}
	xExpr, err := variable.Parse(xTemplate)
	if err != nil {
		return nil, model.ErrFatal("invalid x_template", err)
	}
	yExpr, err := variable.Parse(yTemplate)
	if err != nil {
		return nil, model.ErrFatal("invalid y_template", err)
	}

	contexts, err := file.Variables.contexts()
	if err != nil {
		return nil, model.ErrFatal("invalid variables", err)
	}

	title := file.Title
	if title == "" {
		title = "Custom tile set"
	}

	if file.Dezoomer != "" {
		return c.probeComposed(ctx, file.Dezoomer, urlTemplate, contexts, title)
	}

	level := &customYAMLLevel{
		name:        title,
		width:       file.Width,
		height:      file.Height,
		headers:     file.Headers,
		urlTemplate: urlTemplate,
		xExpr:       xExpr,
		yExpr:       yExpr,
		contexts:    contexts,
	}

	return &model.ZoomableImage{Title: title, Levels: []model.ZoomLevel{level}}, nil
}

// probeComposed handles tiles.yaml's "dezoomer" key: url_template is
// rendered once per variable combination, and every rendered URL is handed
// to the named dezoomer instead of being treated as a leaf tile, per the
// custom YAML format's composition contract. The named dezoomer's own
// levels are concatenated into a single result.
func (c CustomYAML) probeComposed(ctx context.Context, name string, urlTemplate *variable.Template, contexts []map[string]int64, title string) (*model.ZoomableImage, error) {
	if c.Dispatch == nil {
		return nil, model.ErrFatal(fmt.Sprintf("tiles.yaml names dezoomer %q but composition is not available", name), nil)
	}

	var levels []model.ZoomLevel
	for _, vars := range contexts {
		url, err := urlTemplate.Execute(vars)
		if err != nil {
			return nil, model.ErrFatal("url_template: "+err.Error(), nil)
		}
		sub, err := c.Dispatch(ctx, name, url)
		if err != nil {
			return nil, model.ErrFatal(fmt.Sprintf("dezoomer %q failed on %s", name, url), err)
		}
		levels = append(levels, sub.Levels...)
	}
	if len(levels) == 0 {
		return nil, model.ErrNoLevelsFound()
	}
	return &model.ZoomableImage{Title: title, Levels: levels}, nil
}

type customYAMLFile struct {
	Variables   customYAMLVariables `yaml:"variables"`
	URLTemplate string              `yaml:"url_template"`
	XTemplate   string              `yaml:"x_template"`
	YTemplate   string              `yaml:"y_template"`
	Headers     map[string]string   `yaml:"headers"`
	Title       string              `yaml:"title"`
	Dezoomer    string              `yaml:"dezoomer"`
	Width       *int                `yaml:"width"`
	Height      *int                `yaml:"height"`
}

// customYAMLVariable is either a ranged variable (from/to/step) or a
// constant (value), mirroring the Rust original's untagged VarOrConst enum.
type customYAMLVariable struct {
	Name  string `yaml:"name"`
	From  *int64 `yaml:"from"`
	To    *int64 `yaml:"to"`
	Step  int64  `yaml:"step"`
	Value *int64 `yaml:"value"`
}

type customYAMLVariables []customYAMLVariable

// customYAMLMaxContexts bounds the cartesian product against a tiles.yaml
// whose ranges would otherwise materialise an unreasonable number of tiles.
const customYAMLMaxContexts = 1_000_000

// values expands one variable's declaration into its full list of values:
// a single value for a constant, or every from..to step of a ranged one.
func (v customYAMLVariable) values() ([]int64, error) {
	if !isValidVarName(v.Name) {
		return nil, fmt.Errorf("invalid variable name %q", v.Name)
	}
	if v.Value != nil {
		return []int64{*v.Value}, nil
	}
	if v.From == nil || v.To == nil {
		return nil, fmt.Errorf("variable %q needs either 'value' or 'from'/'to'", v.Name)
	}
	step := v.Step
	if step == 0 {
		step = 1
	}
	from, to := *v.From, *v.To
	if (to > from && step < 0) || (to < from && step > 0) {
		return nil, fmt.Errorf("variable %q has a from/to range that step never reaches", v.Name)
	}
	var out []int64
	if step > 0 {
		for i := from; i <= to; i += step {
			out = append(out, i)
			if len(out) > customYAMLMaxContexts {
				return nil, fmt.Errorf("variable %q has too many values", v.Name)
			}
		}
	} else {
		for i := from; i >= to; i += step {
			out = append(out, i)
			if len(out) > customYAMLMaxContexts {
				return nil, fmt.Errorf("variable %q has too many values", v.Name)
			}
		}
	}
	return out, nil
}

func isValidVarName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
		if !isAlnum {
			return false
		}
	}
	return true
}

// contexts computes the cartesian product of every variable's values, one
// map[string]int64 binding per combination, mirroring Variables::iter_contexts.
func (vs customYAMLVariables) contexts() ([]map[string]int64, error) {
	contexts := []map[string]int64{{}}
	for _, v := range vs {
		vals, err := v.values()
		if err != nil {
			return nil, err
		}
		next := make([]map[string]int64, 0, len(contexts)*len(vals))
		for _, ctx := range contexts {
			for _, val := range vals {
				nc := make(map[string]int64, len(ctx)+1)
				for k, existing := range ctx {
					nc[k] = existing
				}
				nc[v.Name] = val
				next = append(next, nc)
				if len(next) > customYAMLMaxContexts {
					return nil, fmt.Errorf("variables describe too many tile combinations")
				}
			}
		}
		contexts = next
	}
	return contexts, nil
}

// customYAMLLevel is a ZoomLevel over an arbitrary, non-rectangular tile
// set: one tile per precomputed variable context, its URL and position
// rendered from that context's bindings.
type customYAMLLevel struct {
	name          string
	width, height *int
	headers       map[string]string
	urlTemplate   *variable.Template
	xExpr, yExpr  *variable.Expr
	contexts      []map[string]int64
}

func (l *customYAMLLevel) Name() string { return l.name }

func (l *customYAMLLevel) Dimensions() (w, h int, ok bool) {
	if l.width != nil && l.height != nil {
		return *l.width, *l.height, true
	}
	return 0, 0, false
}

func (l *customYAMLLevel) Tiles(ctx context.Context) iter.Seq2[model.TileReference, error] {
	return func(yield func(model.TileReference, error) bool) {
		for _, vars := range l.contexts {
			if ctx.Err() != nil {
				yield(model.TileReference{}, ctx.Err())
				return
			}
			ref, err := l.buildTile(vars)
			if !yield(ref, err) || err != nil {
				return
			}
		}
	}
}

func (l *customYAMLLevel) buildTile(vars map[string]int64) (model.TileReference, error) {
	url, err := l.urlTemplate.Execute(vars)
	if err != nil {
		return model.TileReference{}, fmt.Errorf("url_template: %w", err)
	}
	x, err := evalInt(l.xExpr, vars)
	if err != nil {
		return model.TileReference{}, fmt.Errorf("x_template: %w", err)
	}
	y, err := evalInt(l.yExpr, vars)
	if err != nil {
		return model.TileReference{}, fmt.Errorf("y_template: %w", err)
	}
	return model.TileReference{URL: url, Position: image.Point{X: x, Y: y}}, nil
}

func evalInt(expr *variable.Expr, vars map[string]int64) (int, error) {
	s, err := expr.Eval(vars)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func (l *customYAMLLevel) PostProcess(_ model.TileReference, data []byte) ([]byte, error) {
	return data, nil
}

func (l *customYAMLLevel) HTTPHeaders() map[string]string { return l.headers }
