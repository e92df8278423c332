package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/engine/core"
)

func TestParse(t *testing.T) {
	t.Run("Should parse a plain literal into a literal-only template", func(t *testing.T) {
		tmpl, err := Parse("no expressions here")
		require.NoError(t, err)
		assert.True(t, tmpl.IsLiteral())
		assert.Empty(t, tmpl.Expressions())
		assert.Equal(t, "no expressions here", tmpl.Raw())
	})

	t.Run("Should parse an input reference", func(t *testing.T) {
		tmpl, err := Parse("{{input.userId}}")
		require.NoError(t, err)
		exprs := tmpl.Expressions()
		require.Len(t, exprs, 1)
		ref, ok := exprs[0].(*InputRef)
		require.True(t, ok)
		assert.Equal(t, []string{"userId"}, ref.Path)
	})

	t.Run("Should parse a nested input path", func(t *testing.T) {
		tmpl, err := Parse("{{input.user.address.city}}")
		require.NoError(t, err)
		ref := tmpl.Expressions()[0].(*InputRef)
		assert.Equal(t, []string{"user", "address", "city"}, ref.Path)
	})

	t.Run("Should parse a task output reference", func(t *testing.T) {
		tmpl, err := Parse("{{tasks.fetch-user.output.email}}")
		require.NoError(t, err)
		exprs := tmpl.Expressions()
		require.Len(t, exprs, 1)
		ref, ok := exprs[0].(*TaskOutputRef)
		require.True(t, ok)
		assert.Equal(t, "fetch-user", ref.StepID)
		assert.Equal(t, []string{"email"}, ref.Path)
	})

	t.Run("Should parse mixed literal and expressions", func(t *testing.T) {
		tmpl, err := Parse("Hello {{input.name}}, order {{tasks.create.output.id}} is ready")
		require.NoError(t, err)
		assert.Len(t, tmpl.Expressions(), 2)
		_, single := tmpl.SingleExpression()
		assert.False(t, single)
	})

	t.Run("Should tolerate whitespace inside markers", func(t *testing.T) {
		tmpl, err := Parse("{{ input.name }}")
		require.NoError(t, err)
		_, ok := tmpl.SingleExpression()
		assert.True(t, ok)
	})

	t.Run("Should detect single-expression templates", func(t *testing.T) {
		tmpl, err := Parse("{{tasks.a.output}}")
		require.NoError(t, err)
		expr, ok := tmpl.SingleExpression()
		require.True(t, ok)
		assert.Equal(t, "tasks.a.output", expr.String())
	})

	t.Run("Should not treat expression with surrounding text as single", func(t *testing.T) {
		tmpl, err := Parse(" {{input.x}}")
		require.NoError(t, err)
		_, ok := tmpl.SingleExpression()
		assert.False(t, ok)
	})
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name     string
		template string
	}{
		{"unterminated expression", "{{input.x"},
		{"empty expression", "{{}}"},
		{"unknown root", "{{foo.bar}}"},
		{"task ref without output", "{{tasks.a.result.x}}"},
		{"task ref missing step", "{{tasks}}"},
		{"empty path segment", "{{input..x}}"},
		{"invalid characters", "{{input.a b}}"},
	}
	for _, tc := range cases {
		t.Run("Should reject "+tc.name, func(t *testing.T) {
			_, err := Parse(tc.template)
			require.Error(t, err)
			assert.True(t, core.HasCode(err, core.CodeInvalidTemplateSyntax))
		})
	}
}

func TestExtractTaskRefs(t *testing.T) {
	t.Run("Should collect distinct step ids in order", func(t *testing.T) {
		refs, err := ExtractTaskRefs("{{tasks.a.output.x}}-{{tasks.b.output.y}}-{{tasks.a.output.z}}")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, refs)
	})

	t.Run("Should ignore input references", func(t *testing.T) {
		refs, err := ExtractTaskRefs("{{input.x}} and {{tasks.a.output}}")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, refs)
	})

	t.Run("Should walk nested values", func(t *testing.T) {
		value := map[string]any{
			"user": "{{tasks.fetch.output.user}}",
			"meta": []any{"{{tasks.enrich.output.tags}}", "literal"},
		}
		refs, err := ExtractTaskRefsFromValue(value)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"fetch", "enrich"}, refs)
	})
}
