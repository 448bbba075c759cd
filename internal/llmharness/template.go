package llmharness

import "strings"

// RenderTemplate substitutes positional "{name}" placeholders in tpl with
// the corresponding entry of vars, per spec.md §4.2 step 1. Unmatched
// placeholders are left verbatim — the caller's schema will reject an
// incomplete prompt's output rather than this layer silently dropping a
// typo'd variable name. Grounded on the teacher's RenderPath template
// substitution (internal/releaseparty/generate.go).
func RenderTemplate(tpl string, vars map[string]string) string {
	out := tpl
	for name, val := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", val)
	}
	return out
}
