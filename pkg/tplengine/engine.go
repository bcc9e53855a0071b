// Package tplengine implements `{{ expr }}` interpolation: a
// regex-matched placeholder whose body is a dotted path with optional
// `[n]` array indexing, resolved against an arbitrary context value.
// There is no pipeline or function syntax, only path resolution with a
// missing-value-is-empty-string policy, so rendering any template against
// an empty context leaves plain text untouched.
package tplengine

import (
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches one `{{ expr }}` placeholder.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+)\s*\}\}`)

// HasTemplate reports whether s contains at least one `{{ ... }}` placeholder.
func HasTemplate(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Engine renders templates and interpolates arbitrary config values against
// a context map.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// RenderString replaces every placeholder in s with the string form of its
// resolution against ctx. A path that resolves to nothing becomes "".
func (e *Engine) RenderString(s string, ctx map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return ""
		}
		expr := strings.TrimSpace(sub[1])
		val, ok := Resolve(ctx, expr)
		if !ok {
			return ""
		}
		return Stringify(val)
	})
}

// Interpolate recurses into config values: strings are rendered, arrays
// recurse element-wise, maps recurse, other scalar types pass through
// unchanged.
func (e *Engine) Interpolate(value any, ctx map[string]any) any {
	switch v := value.(type) {
	case string:
		return e.RenderString(v, ctx)
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = e.Interpolate(el, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			out[k] = e.Interpolate(el, ctx)
		}
		return out
	default:
		return value
	}
}

// Stringify renders a resolved value for substitution into template text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt_Stringer:
		return t.String()
	default:
		return toString(t)
	}
}

type fmt_Stringer interface{ String() string }

func toString(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return jsonStringify(v)
	}
}
