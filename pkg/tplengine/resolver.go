package tplengine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowgate/flowgate/engine/core"
)

// -----------------------------------------------------------------------------
// Resolution
// -----------------------------------------------------------------------------

// Resolve parses and resolves a template string against the context. When the
// template is a single expression with no literal text, the resolved value
// keeps its original type so composite JSON values pass through intact;
// otherwise every substitution is stringified and concatenated.
func Resolve(raw string, ctx *Context) (any, error) {
	tmpl, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return tmpl.Resolve(ctx)
}

// ResolveString resolves a template and always returns the stringified form.
func ResolveString(raw string, ctx *Context) (string, error) {
	value, err := Resolve(raw, ctx)
	if err != nil {
		return "", err
	}
	return Stringify(value), nil
}

func (t *Template) Resolve(ctx *Context) (any, error) {
	if expr, ok := t.SingleExpression(); ok {
		return resolveExpression(expr, ctx)
	}
	var sb strings.Builder
	for i := range t.parts {
		p := &t.parts[i]
		if p.expr == nil {
			sb.WriteString(p.literal)
			continue
		}
		value, err := resolveExpression(p.expr, ctx)
		if err != nil {
			return nil, err
		}
		sb.WriteString(Stringify(value))
	}
	return sb.String(), nil
}

func resolveExpression(expr Expression, ctx *Context) (any, error) {
	switch ref := expr.(type) {
	case *InputRef:
		value, ok := traversePath(ctx.Input(), ref.Path)
		if !ok {
			return nil, core.NewError(
				core.CodeMissingInputValue,
				fmt.Sprintf("input has no value at path %q", ref.String()),
				map[string]any{"path": ref.String()},
			)
		}
		return value, nil
	case *TaskOutputRef:
		output, ok := ctx.TaskOutput(ref.StepID)
		if !ok {
			return nil, core.NewError(
				core.CodeMissingTaskOutput,
				fmt.Sprintf("no output recorded for step %q", ref.StepID),
				map[string]any{"step_id": ref.StepID},
			)
		}
		value, ok := traversePath(output, ref.Path)
		if !ok {
			return nil, core.NewError(
				core.CodeMissingTaskOutput,
				fmt.Sprintf("step %q output has no value at path %q", ref.StepID, ref.String()),
				map[string]any{"step_id": ref.StepID, "path": ref.String()},
			)
		}
		return value, nil
	default:
		return nil, core.NewError(
			core.CodeInvalidTemplateSyntax,
			fmt.Sprintf("unsupported expression %q", expr.String()),
			nil,
		)
	}
}

// ResolveValue resolves templates inside an arbitrary JSON-shaped value:
// strings are resolved, maps and slices are walked recursively, everything
// else passes through unchanged.
func ResolveValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case string:
		return Resolve(v, ctx)
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			resolved, err := ResolveValue(val, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve template in key %q: %w", k, err)
			}
			result[k] = resolved
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := ResolveValue(val, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve template at index %d: %w", i, err)
			}
			result[i] = resolved
		}
		return result, nil
	default:
		return v, nil
	}
}

// -----------------------------------------------------------------------------
// Path traversal
// -----------------------------------------------------------------------------

// traversePath visits path segments over a dynamic JSON-shaped value. Maps
// are indexed by key, lists by numeric segment, scalars terminate traversal.
func traversePath(value any, segments []string) (any, bool) {
	current := value
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case core.Input:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case core.Output:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// -----------------------------------------------------------------------------
// Stringification
// -----------------------------------------------------------------------------

// Stringify converts a resolved value to its textual form: scalars via their
// natural representation, composites as compact JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	case map[string]any, []any, core.Input, core.Output:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsStatic reports whether the template references only workflow input, i.e.
// it can be resolved before any task has run. Dry run uses this to decide
// which templates to pre-resolve.
func IsStatic(tmpl *Template) bool {
	for _, expr := range tmpl.Expressions() {
		if _, ok := expr.(*TaskOutputRef); ok {
			return false
		}
	}
	return true
}
