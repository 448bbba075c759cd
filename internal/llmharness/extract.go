package llmharness

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ExtractJSON pulls a JSON value out of a free-form LLM reply using the
// five-layer strategy from spec.md §4.2 step 4: direct parse, fenced code
// block, first balanced brace/bracket substring, common-mistake cleaner,
// then give up. Each layer is independently testable and attempted in
// order; the first one that produces syntactically valid JSON wins.
// Grounded on the fence-strip + brace-scan shape of
// ecoker-launchpad/internal/ai/engine.go's parseSelection, generalized into
// a reusable ladder instead of one-off string trimming.
func ExtractJSON(reply string) (json.RawMessage, error) {
	candidates := []func(string) (string, bool){
		directParse,
		fencedBlock,
		balancedSubstring,
		mistakeCleaner,
	}
	for _, try := range candidates {
		if s, ok := try(reply); ok {
			if json.Valid([]byte(s)) {
				return json.RawMessage(s), nil
			}
		}
	}
	return nil, errors.New("llmharness: no valid JSON found in model reply")
}

// (a) direct parse: the whole trimmed reply is already valid JSON.
func directParse(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return "", false
	}
	return s, json.Valid([]byte(s))
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// (b) fenced code block: ```json ... ``` or bare ``` ... ```.
func fencedBlock(reply string) (string, bool) {
	m := fenceRe.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	s := strings.TrimSpace(m[1])
	return s, s != ""
}

// (c) first balanced {...} or [...] substring, scanning for whichever
// opening bracket appears first and tracking nesting depth through string
// literals so embedded braces in prose don't break the scan.
func balancedSubstring(reply string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(reply); i++ {
		switch reply[i] {
		case '{':
			start, open, close = i, '{', '}'
		case '[':
			start, open, close = i, '[', ']'
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return reply[start : i+1], true
			}
		}
	}
	return "", false
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	jsComment       = regexp.MustCompile(`//[^\n]*|/\*.*?\*/`)
)

// (d) common-mistake cleaner: trailing commas, unquoted keys, single
// quotes, Python-style True/False/None, and JS-style comments.
func mistakeCleaner(reply string) (string, bool) {
	s, ok := balancedSubstring(reply)
	if !ok {
		s = strings.TrimSpace(reply)
	}
	if s == "" {
		return "", false
	}
	s = jsComment.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = singleToDoubleQuotes(s)
	s = strings.ReplaceAll(s, "True", "true")
	s = strings.ReplaceAll(s, "False", "false")
	s = strings.ReplaceAll(s, "None", "null")
	return s, s != ""
}

// singleToDoubleQuotes swaps single-quoted JSON string delimiters for
// double quotes, leaving any apostrophe inside an already-double-quoted
// string untouched.
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	inDouble := false
	inSingle := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
