package promptkit

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches {name} and {nested.path} placeholders. Braces around
// anything else (JSON examples, dice notation) pass through untouched.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\}`)

// Substitute fills {name} and {nested.path} placeholders from data. Nested
// paths walk maps keyed by string. Unresolved placeholders are left intact so
// a missing variable shows up in the prompt (and the event log) instead of
// vanishing silently.
func Substitute(text string, data map[string]any) string {
	if len(data) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(ph string) string {
		path := ph[1 : len(ph)-1]
		v, ok := resolve(data, strings.Split(path, "."))
		if !ok {
			return ph
		}
		return stringify(v)
	})
}

func resolve(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
