package tplengine

import (
	"fmt"
	"strings"

	"github.com/flowgate/flowgate/engine/core"
)

// The template grammar is intentionally tiny. A template is literal text
// interleaved with {{...}} expressions, and an expression is one of:
//
//	input[.path...]
//	tasks.<stepID>.output[.path...]
//
// Path segments are identifiers ([A-Za-z0-9_-]); list elements are addressed
// by numeric segments.

// -----------------------------------------------------------------------------
// Expressions
// -----------------------------------------------------------------------------

type Expression interface {
	fmt.Stringer
	isExpression()
}

// InputRef references a value inside the workflow input.
type InputRef struct {
	Path []string
}

func (r *InputRef) isExpression() {}

func (r *InputRef) String() string {
	if len(r.Path) == 0 {
		return "input"
	}
	return "input." + strings.Join(r.Path, ".")
}

// TaskOutputRef references a value inside a completed step's output.
type TaskOutputRef struct {
	StepID string
	Path   []string
}

func (r *TaskOutputRef) isExpression() {}

func (r *TaskOutputRef) String() string {
	base := fmt.Sprintf("tasks.%s.output", r.StepID)
	if len(r.Path) == 0 {
		return base
	}
	return base + "." + strings.Join(r.Path, ".")
}

// -----------------------------------------------------------------------------
// Template
// -----------------------------------------------------------------------------

type part struct {
	literal string
	expr    Expression
}

// Template is the parsed form of one template string. Parsing happens once;
// the same parsed template drives validation, dependency extraction, and
// runtime resolution.
type Template struct {
	raw   string
	parts []part
}

func (t *Template) Raw() string {
	return t.raw
}

// IsLiteral reports whether the template contains no expressions at all.
func (t *Template) IsLiteral() bool {
	for i := range t.parts {
		if t.parts[i].expr != nil {
			return false
		}
	}
	return true
}

// SingleExpression returns the template's only expression when the template
// is exactly one {{...}} with no surrounding literal text. This is the case
// where composite values pass through unstringified.
func (t *Template) SingleExpression() (Expression, bool) {
	if len(t.parts) != 1 || t.parts[0].expr == nil {
		return nil, false
	}
	return t.parts[0].expr, true
}

// Expressions returns every expression in source order.
func (t *Template) Expressions() []Expression {
	var exprs []Expression
	for i := range t.parts {
		if t.parts[i].expr != nil {
			exprs = append(exprs, t.parts[i].expr)
		}
	}
	return exprs
}

// HasTemplate reports whether the string contains template markers.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// -----------------------------------------------------------------------------
// Parser
// -----------------------------------------------------------------------------

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Parse tokenizes a template string into literal and expression parts.
func Parse(raw string) (*Template, error) {
	tmpl := &Template{raw: raw}
	rest := raw
	for {
		open := strings.Index(rest, openMarker)
		if open < 0 {
			if rest != "" {
				tmpl.parts = append(tmpl.parts, part{literal: rest})
			}
			return tmpl, nil
		}
		if open > 0 {
			tmpl.parts = append(tmpl.parts, part{literal: rest[:open]})
		}
		rest = rest[open+len(openMarker):]
		closing := strings.Index(rest, closeMarker)
		if closing < 0 {
			return nil, core.NewError(
				core.CodeInvalidTemplateSyntax,
				fmt.Sprintf("unterminated expression in template %q", raw),
				map[string]any{"template": raw},
			)
		}
		expr, err := parseExpression(strings.TrimSpace(rest[:closing]), raw)
		if err != nil {
			return nil, err
		}
		tmpl.parts = append(tmpl.parts, part{expr: expr})
		rest = rest[closing+len(closeMarker):]
	}
}

func parseExpression(content string, raw string) (Expression, error) {
	if content == "" {
		return nil, syntaxError("empty expression", raw, content)
	}
	segments := strings.Split(content, ".")
	for _, seg := range segments {
		if !isIdentifier(seg) {
			return nil, syntaxError(fmt.Sprintf("invalid path segment %q", seg), raw, content)
		}
	}
	switch segments[0] {
	case "input":
		return &InputRef{Path: segments[1:]}, nil
	case "tasks":
		// tasks.<stepID>.output[.path...]
		if len(segments) < 3 || segments[2] != "output" {
			return nil, syntaxError(
				fmt.Sprintf("task reference %q must have the form tasks.<step>.output[.path]", content),
				raw, content,
			)
		}
		return &TaskOutputRef{StepID: segments[1], Path: segments[3:]}, nil
	default:
		return nil, syntaxError(
			fmt.Sprintf("unknown reference root %q, expected input or tasks", segments[0]),
			raw, content,
		)
	}
}

func syntaxError(msg string, raw string, content string) error {
	return core.NewError(core.CodeInvalidTemplateSyntax, msg, map[string]any{
		"template":   raw,
		"expression": content,
	})
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// ExtractTaskRefs returns the distinct step ids referenced by the template,
// in first-appearance order. Used by the graph builder to derive edges.
func ExtractTaskRefs(raw string) ([]string, error) {
	tmpl, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var refs []string
	for _, expr := range tmpl.Expressions() {
		taskRef, ok := expr.(*TaskOutputRef)
		if !ok {
			continue
		}
		if !seen[taskRef.StepID] {
			seen[taskRef.StepID] = true
			refs = append(refs, taskRef.StepID)
		}
	}
	return refs, nil
}

// ExtractTaskRefsFromValue walks a JSON-shaped value (the step input mapping)
// and collects task references from every string inside it.
func ExtractTaskRefsFromValue(value any) ([]string, error) {
	seen := make(map[string]bool)
	var refs []string
	var walk func(v any) error
	walk = func(v any) error {
		switch t := v.(type) {
		case string:
			found, err := ExtractTaskRefs(t)
			if err != nil {
				return err
			}
			for _, id := range found {
				if !seen[id] {
					seen[id] = true
					refs = append(refs, id)
				}
			}
		case map[string]any:
			for _, val := range t {
				if err := walk(val); err != nil {
					return err
				}
			}
		case []any:
			for _, val := range t {
				if err := walk(val); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(value); err != nil {
		return nil, err
	}
	return refs, nil
}
