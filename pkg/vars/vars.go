// Package vars resolves ${name} references against the current data row and
// normalizes text for comparison.
package vars

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolver substitutes ${name} references using a row of named values.
// Unresolved references are left verbatim so the output makes the failure
// visible on screen instead of silently typing an empty string.
type Resolver struct {
	row     map[string]any
	warn    func(name string)
	missing map[string]struct{}
}

// NewResolver builds a resolver over one data row. The warn callback, if
// non-nil, is invoked once per distinct unresolved name.
func NewResolver(row map[string]any, warn func(name string)) *Resolver {
	return &Resolver{row: row, warn: warn, missing: make(map[string]struct{})}
}

// Resolve substitutes every ${name} in s. Names resolve against the row;
// values are stringified with %v. Unknown names stay as written.
func (r *Resolver) Resolve(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if r.row != nil {
			if v, ok := r.row[name]; ok {
				return Stringify(v)
			}
		}
		if _, seen := r.missing[name]; !seen {
			r.missing[name] = struct{}{}
			if r.warn != nil {
				r.warn(name)
			}
		}
		return ref
	})
}

// Missing returns the distinct names that failed to resolve so far.
func (r *Resolver) Missing() []string {
	out := make([]string, 0, len(r.missing))
	for name := range r.missing {
		out = append(out, name)
	}
	return out
}

// Names returns every distinct ${name} reference appearing in s.
func Names(s string) []string {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	var out []string
	seen := make(map[string]struct{})
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Stringify renders a row value the way it will be typed or compared.
// Floats that carry no fractional part print without a trailing ".0" so
// spreadsheet-sourced integers survive the float round trip.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	case float32:
		return Stringify(float64(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}
