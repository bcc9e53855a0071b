package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTemplate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"no_markers", "plain text", false},
		{"with_placeholder", "Hello {{ trigger.name }}", true},
		{"brace_like_not_template", "Hello {not tmpl}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasTemplate(tt.in))
		})
	}
}

func TestRenderString_DottedPathAndIndex(t *testing.T) {
	e := NewEngine()
	ctx := map[string]any{
		"trigger": map[string]any{"x": "hi"},
		"steps": map[string]any{
			"fetch-stories": map[string]any{
				"data": []any{map[string]any{"title": "Top story"}},
			},
		},
	}

	t.Run("Should resolve a simple dotted path", func(t *testing.T) {
		got := e.RenderString("{{ trigger.x }}", ctx)
		assert.Equal(t, "hi", got)
	})

	t.Run("Should resolve a kebab-case step id with array index", func(t *testing.T) {
		got := e.RenderString("{{ steps.fetch-stories.data[0].title }}", ctx)
		assert.Equal(t, "Top story", got)
	})

	t.Run("Should resolve a missing value to empty string", func(t *testing.T) {
		got := e.RenderString("{{ trigger.missing }}", ctx)
		assert.Equal(t, "", got)
	})
}

func TestRenderString_Idempotence(t *testing.T) {
	t.Run("Should replace every placeholder with empty string against an empty context", func(t *testing.T) {
		e := NewEngine()
		got := e.RenderString("{{ a.b }} and {{ c[0] }}", map[string]any{})
		assert.Equal(t, " and ", got)
	})
}

func TestInterpolate_RecursesArraysAndMaps(t *testing.T) {
	e := NewEngine()
	ctx := map[string]any{"trigger": map[string]any{"x": "hi"}}

	out := e.Interpolate(map[string]any{
		"a": "{{ trigger.x }}!",
		"b": []any{"{{ trigger.x }}?", 5},
		"c": 3,
	}, ctx)

	m := out.(map[string]any)
	assert.Equal(t, "hi!", m["a"])
	assert.Equal(t, []any{"hi?", 5}, m["b"])
	assert.Equal(t, 3, m["c"])
}

func TestS1_LinearDAGTemplates(t *testing.T) {
	t.Run("Should chain transform templates across steps", func(t *testing.T) {
		e := NewEngine()
		ctx := map[string]any{"trigger": map[string]any{"x": "hi"}, "steps": map[string]any{}}

		a := e.RenderString("{{ trigger.x }}", ctx)
		assert.Equal(t, "hi", a)

		ctx["steps"].(map[string]any)["a"] = a
		b := e.RenderString("{{ steps.a }}!", ctx)
		assert.Equal(t, "hi!", b)

		ctx["steps"].(map[string]any)["b"] = b
		c := e.RenderString("{{ steps.b }}?", ctx)
		assert.Equal(t, "hi!?", c)
	})
}
