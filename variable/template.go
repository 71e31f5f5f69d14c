package variable

import (
	"fmt"
	"strings"
)

// segment is either a literal run of the template string or a parsed
// expression to substitute.
type segment struct {
	literal string
	expr    *Expr // nil for literal segments
}

// Template is a URL template containing zero or more "{{ expr }}"
// placeholders, parsed once and rendered repeatedly per variable
// combination (§4.2 custom YAML dezoomer).
type Template struct {
	segments []segment
}

// ParseTemplate parses a template such as "https://ex/{{x/256:03}}_{{y}}.jpg".
func ParseTemplate(tpl string) (*Template, error) {
	var segs []segment
	rest := tpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			segs = append(segs, segment{literal: rest})
			break
		}
		if start > 0 {
			segs = append(segs, segment{literal: rest[:start]})
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end == -1 {
			return nil, fmt.Errorf("bad template %q: unterminated {{", tpl)
		}
		body := rest[:end]
		expr, err := Parse(body)
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{expr: expr})
		rest = rest[end+2:]
	}
	return &Template{segments: segs}, nil
}

// Execute renders the template against a set of integer variable bindings.
func (t *Template) Execute(vars map[string]int64) (string, error) {
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			sb.WriteString(seg.literal)
			continue
		}
		s, err := seg.expr.Eval(vars)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}
