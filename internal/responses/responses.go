// Package responses gives rule and generator code total, typed access to the
// untyped questionnaire payload. No function here panics or returns an error:
// a missing key and a value of the wrong shape both resolve to the default.
package responses

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Responses maps questionnaire step keys to step payloads. Keys passed to the
// accessors are dotted paths, e.g. "step1.logo_upload".
type Responses map[string]any

// Lookup resolves a dotted path. The whole key is tried first so flat maps
// with dots in their keys still resolve.
func (r Responses) Lookup(key string) (any, bool) {
	if r == nil || key == "" {
		return nil, false
	}
	if v, ok := r[key]; ok {
		return v, true
	}
	var cur any = map[string]any(r)
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Len is the number of top-level keys.
func (r Responses) Len() int {
	return len(r)
}

// Get returns the value at key converted to T, or def when the key is absent
// or holds something else.
func Get[T any](r Responses, key string, def T) T {
	v, ok := r.Lookup(key)
	if !ok || v == nil {
		return def
	}
	if t, ok := v.(T); ok {
		return t
	}
	return def
}

// String returns the value as trimmed text. Numbers and booleans are formatted.
func String(r Responses, key, def string) string {
	v, ok := r.Lookup(key)
	if !ok {
		return def
	}
	s, ok := asString(v)
	if !ok {
		return def
	}
	return s
}

// Int accepts JSON numbers and numeric strings.
func Int(r Responses, key string, def int) int {
	v, ok := r.Lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Bool accepts booleans and the usual yes/no spellings.
func Bool(r Responses, key string, def bool) bool {
	v, ok := r.Lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1":
			return true
		case "false", "no", "n", "0":
			return false
		}
	}
	return def
}

// Slice returns the value as a list; a scalar is not promoted to a list.
func Slice(r Responses, key string) []any {
	v, ok := r.Lookup(key)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []map[string]any:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}

// Strings returns the non-empty textual entries of a list, or a single-element
// list for a comma separated string.
func Strings(r Responses, key string) []string {
	if v, ok := r.Lookup(key); ok {
		if s, ok := v.(string); ok {
			var out []string
			for _, part := range strings.Split(s, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	}
	var out []string
	for _, v := range Slice(r, key) {
		if s, ok := asString(v); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Map returns a nested object as Responses, or nil.
func Map(r Responses, key string) Responses {
	v, ok := r.Lookup(key)
	if !ok {
		return nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	return Responses(m)
}

// HasText reports whether key holds non-blank text (or a non-empty list of text).
func HasText(r Responses, key string) bool {
	if String(r, key, "") != "" {
		return true
	}
	return len(Strings(r, key)) > 0
}

// HasFiles reports whether key holds at least one uploaded file. Uploads are
// either plain strings (paths/urls) or objects with a url, name or path.
func HasFiles(r Responses, key string) bool {
	for _, v := range Slice(r, key) {
		switch f := v.(type) {
		case string:
			if strings.TrimSpace(f) != "" {
				return true
			}
		default:
			m, ok := asMap(f)
			if !ok {
				continue
			}
			for _, field := range []string{"url", "name", "path"} {
				if s, ok := asString(m[field]); ok && s != "" {
					return true
				}
			}
		}
	}
	return false
}

// FileNames lists the display names of uploads at key.
func FileNames(r Responses, key string) []string {
	var out []string
	for _, v := range Slice(r, key) {
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		m, ok := asMap(v)
		if !ok {
			continue
		}
		for _, field := range []string{"name", "url", "path"} {
			if s, ok := asString(m[field]); ok && s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// ArrayIncludes reports whether the list at key contains value, ignoring case.
func ArrayIncludes(r Responses, key, value string) bool {
	want := strings.ToLower(strings.TrimSpace(value))
	for _, s := range Strings(r, key) {
		if strings.ToLower(s) == want {
			return true
		}
	}
	return false
}

// Equals compares the text at key with value, ignoring case.
func Equals(r Responses, key, value string) bool {
	return strings.EqualFold(String(r, key, ""), strings.TrimSpace(value))
}

// Leaf is one answered field found by Walk.
type Leaf struct {
	Path  string
	Key   string
	Value any
}

// Walk visits every non-empty leaf in sorted key order.
func Walk(r Responses, fn func(Leaf) bool) {
	walk("", map[string]any(r), fn)
}

func walk(prefix string, m map[string]any, fn func(Leaf) bool) bool {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		v := m[k]
		if nested, ok := asMap(v); ok {
			if !walk(path, nested, fn) {
				return false
			}
			continue
		}
		if isEmpty(v) {
			continue
		}
		if !fn(Leaf{Path: path, Key: k, Value: v}) {
			return false
		}
	}
	return true
}

// FindKey returns the first answered leaf whose key satisfies match.
func FindKey(r Responses, match func(key string) bool) (Leaf, bool) {
	var found Leaf
	var ok bool
	Walk(r, func(l Leaf) bool {
		if match(strings.ToLower(l.Key)) {
			found, ok = l, true
			return false
		}
		return true
	})
	return found, ok
}

// CountAnswered counts the non-empty leaves.
func CountAnswered(r Responses) int {
	n := 0
	Walk(r, func(Leaf) bool {
		n++
		return true
	})
	return n
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Responses:
		return map[string]any(m), true
	}
	return nil, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	}
	return "", false
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}
