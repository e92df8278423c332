package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/engine/core"
)

func testContext() *Context {
	ctx := NewContext(core.Input{
		"x": "v",
		"user": map[string]any{
			"name": "Ada",
			"address": map[string]any{
				"city": "London",
			},
			"tags": []any{"admin", "ops"},
		},
		"count":   float64(3),
		"enabled": true,
	})
	ctx.SetTaskOutput("fetch-user", core.Output{
		"email": "ada@example.com",
		"profile": map[string]any{
			"age": float64(36),
		},
	})
	return ctx
}

func TestResolve(t *testing.T) {
	t.Run("Should round-trip a single input reference", func(t *testing.T) {
		value, err := Resolve("{{input.x}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, "v", value)
	})

	t.Run("Should return literal templates unchanged", func(t *testing.T) {
		value, err := Resolve("just text", testContext())
		require.NoError(t, err)
		assert.Equal(t, "just text", value)
	})

	t.Run("Should traverse nested input paths", func(t *testing.T) {
		value, err := Resolve("{{input.user.address.city}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, "London", value)
	})

	t.Run("Should index lists by numeric segment", func(t *testing.T) {
		value, err := Resolve("{{input.user.tags.1}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, "ops", value)
	})

	t.Run("Should pass composite values through on single expression", func(t *testing.T) {
		value, err := Resolve("{{input.user.address}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"city": "London"}, value)
	})

	t.Run("Should stringify composites when interleaved with text", func(t *testing.T) {
		value, err := Resolve("address={{input.user.address}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, `address={"city":"London"}`, value)
	})

	t.Run("Should stringify scalars in concatenation", func(t *testing.T) {
		value, err := Resolve("count={{input.count}} enabled={{input.enabled}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, "count=3 enabled=true", value)
	})

	t.Run("Should resolve task output references", func(t *testing.T) {
		value, err := Resolve("{{tasks.fetch-user.output.email}}", testContext())
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", value)
	})

	t.Run("Should resolve the entire task output on bare output reference", func(t *testing.T) {
		value, err := Resolve("{{tasks.fetch-user.output}}", testContext())
		require.NoError(t, err)
		out, ok := value.(core.Output)
		require.True(t, ok)
		assert.Equal(t, "ada@example.com", out["email"])
	})

	t.Run("Should fail with MissingInputValue on unknown input path", func(t *testing.T) {
		_, err := Resolve("{{input.nope}}", testContext())
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeMissingInputValue))
	})

	t.Run("Should fail with MissingTaskOutput for a step that has not run", func(t *testing.T) {
		_, err := Resolve("{{tasks.unknown.output.x}}", testContext())
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeMissingTaskOutput))
	})

	t.Run("Should fail with MissingTaskOutput on unknown output path", func(t *testing.T) {
		_, err := Resolve("{{tasks.fetch-user.output.missing}}", testContext())
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.CodeMissingTaskOutput))
	})
}

func TestResolveValue(t *testing.T) {
	t.Run("Should resolve templates nested in maps and slices", func(t *testing.T) {
		value, err := ResolveValue(map[string]any{
			"email": "{{tasks.fetch-user.output.email}}",
			"meta": map[string]any{
				"city": "{{input.user.address.city}}",
			},
			"list":  []any{"{{input.x}}", float64(7)},
			"fixed": float64(42),
		}, testContext())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"email": "ada@example.com",
			"meta":  map[string]any{"city": "London"},
			"list":  []any{"v", float64(7)},
			"fixed": float64(42),
		}, value)
	})

	t.Run("Should propagate resolution failures with the failing key", func(t *testing.T) {
		_, err := ResolveValue(map[string]any{"bad": "{{input.nope}}"}, testContext())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"bad"`)
	})
}

func TestStringify(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "s", "s"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"float", float64(2.5), "2.5"},
		{"whole float", float64(3), "3"},
		{"map", map[string]any{"a": float64(1)}, `{"a":1}`},
		{"list", []any{"a", float64(1)}, `["a",1]`},
	}
	for _, tc := range cases {
		t.Run("Should stringify "+tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Stringify(tc.value))
		})
	}
}

func TestIsStatic(t *testing.T) {
	t.Run("Should report input-only templates as static", func(t *testing.T) {
		tmpl, err := Parse("{{input.x}}-literal")
		require.NoError(t, err)
		assert.True(t, IsStatic(tmpl))
	})

	t.Run("Should report task references as non-static", func(t *testing.T) {
		tmpl, err := Parse("{{tasks.a.output.x}}")
		require.NoError(t, err)
		assert.False(t, IsStatic(tmpl))
	})
}
