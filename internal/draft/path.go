// Package draft implements the mutable, path-addressed working copy of one
// form instance: structural field updates, a capped edit history, debounced
// persistence, and the finalize/submit lifecycle.
package draft

import (
	"fmt"
	"strconv"
	"strings"
)

// pathToken is one step of a parsed field path: either an object key or an
// array index. Paths like "items[2].name" parse to
// [key(items), index(2), key(name)]. The string syntax is a serialization
// format only; tokens are the runtime representation.
type pathToken struct {
	key   string
	index int // -1 for key tokens
}

// parsePath tokenizes a field path. Segments are dot-separated names, each
// optionally followed by bracketed indices ("a.b[0][1].c").
func parsePath(path string) ([]pathToken, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}

	var tokens []pathToken
	for _, segment := range strings.Split(path, ".") {
		name := segment
		var brackets string
		if i := strings.IndexByte(segment, '['); i >= 0 {
			name, brackets = segment[:i], segment[i:]
		}
		if name == "" {
			return nil, fmt.Errorf("invalid field path %q: empty segment", path)
		}
		tokens = append(tokens, pathToken{key: name, index: -1})

		for brackets != "" {
			if brackets[0] != '[' {
				return nil, fmt.Errorf("invalid field path %q", path)
			}
			end := strings.IndexByte(brackets, ']')
			if end < 1 {
				return nil, fmt.Errorf("invalid field path %q: unclosed index", path)
			}
			idx, err := strconv.Atoi(brackets[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid field path %q: bad index %q", path, brackets[1:end])
			}
			tokens = append(tokens, pathToken{index: idx})
			brackets = brackets[end+1:]
		}
	}
	return tokens, nil
}

// getPath walks data along tokens and returns the addressed value, or nil if
// any step is absent or of the wrong shape. Pure read, no side effects.
func getPath(data map[string]any, tokens []pathToken) any {
	var cur any = data
	for _, tok := range tokens {
		if tok.index >= 0 {
			s, ok := cur.([]any)
			if !ok || tok.index >= len(s) {
				return nil
			}
			cur = s[tok.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[tok.key]
	}
	return cur
}

// setPath returns a copy of data with the addressed value replaced,
// creating intermediate containers as needed: an index token materializes a
// slice (grown with nils up to the index), a key token a map. Containers on
// the path are copied, untouched siblings are shared.
func setPath(data map[string]any, tokens []pathToken, value any) map[string]any {
	return setValue(data, tokens, value).(map[string]any)
}

func setValue(cur any, tokens []pathToken, value any) any {
	if len(tokens) == 0 {
		return value
	}
	tok := tokens[0]

	if tok.index >= 0 {
		existing, _ := cur.([]any)
		size := len(existing)
		if tok.index+1 > size {
			size = tok.index + 1
		}
		cp := make([]any, size)
		copy(cp, existing)
		cp[tok.index] = setValue(cp[tok.index], tokens[1:], value)
		return cp
	}

	existing, _ := cur.(map[string]any)
	cp := make(map[string]any, len(existing)+1)
	for k, v := range existing {
		cp[k] = v
	}
	cp[tok.key] = setValue(cp[tok.key], tokens[1:], value)
	return cp
}
