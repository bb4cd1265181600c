package db

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// NameFilter matches catalog object names against a SHOW ... LIKE pattern.
// Matching is case-insensitive, as in the warehouse.
type NameFilter struct {
	g glob.Glob
}

// NewNameFilter compiles a LIKE pattern (% and _ wildcards, backslash
// escapes). An empty pattern matches everything.
func NewNameFilter(like string) (*NameFilter, error) {
	if like == "" {
		return &NameFilter{}, nil
	}
	g, err := glob.Compile(likeToGlob(strings.ToUpper(like)))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", like, err)
	}
	return &NameFilter{g: g}, nil
}

// Match returns true if name matches the pattern
func (f *NameFilter) Match(name string) bool {
	if f == nil || f.g == nil {
		return true
	}
	return f.g.Match(strings.ToUpper(name))
}

// likeToGlob rewrites LIKE wildcards to glob ones and escapes the glob
// metacharacters LIKE treats literally.
func likeToGlob(like string) string {
	var b strings.Builder
	escaped := false
	for _, r := range like {
		if escaped {
			b.WriteRune('\\')
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			b.WriteRune('*')
		case '_':
			b.WriteRune('?')
		case '*', '?', '[', ']', '{', '}', '!':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	return b.String()
}
