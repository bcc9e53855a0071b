package tplengine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// indexPattern matches a trailing `[n]` array index on a path segment, e.g.
// `data[0]` -> segment "data", index "0".
var indexPattern = regexp.MustCompile(`^([^\[\]]*)((?:\[\d+\])*)$`)

// Resolve evaluates a dotted-path expression like
// `steps.fetch-stories.data[0].title` against ctx. Returns ok=false when
// any segment along the path is missing, which callers treat as the empty
// string.
//
// Implemented on top of tidwall/gjson: ctx is marshaled to JSON once and
// the `[n]` bracket syntax is translated to gjson's own `.n.` index
// syntax before the lookup, instead of hand-rolling a JSON walker.
func Resolve(ctx map[string]any, expr string) (any, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, false
	}
	gpath, ok := toGJSONPath(expr)
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(data, gpath)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// toGJSONPath splits the expression on `.` and rewrites each
// `segment[n]` into gjson's `segment.n` form.
func toGJSONPath(expr string) (string, bool) {
	segments := splitDotted(expr)
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		m := indexPattern.FindStringSubmatch(seg)
		if m == nil {
			return "", false
		}
		name := m[1]
		indices := m[2]
		if name != "" {
			out = append(out, gjsonEscape(name))
		}
		for _, idx := range extractIndices(indices) {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return "", false
	}
	return strings.Join(out, "."), true
}

// splitDotted splits expr on every '.'; brackets are not treated
// specially. Indices are digits only, so a '.' inside brackets yields
// segments that fail indexPattern and the path resolves as not found.
func splitDotted(expr string) []string {
	return strings.Split(expr, ".")
}

var indexCapture = regexp.MustCompile(`\[(\d+)\]`)

func extractIndices(s string) []string {
	matches := indexCapture.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// gjsonEscape escapes characters gjson treats specially within a path
// segment (kebab-case step ids contain '-', which is safe, but '.' '*' '?'
// '|' would need escaping if they ever appeared in an id).
func gjsonEscape(segment string) string {
	replacer := strings.NewReplacer(`.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`)
	return replacer.Replace(segment)
}

func jsonStringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
