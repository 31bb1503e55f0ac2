package mirror

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter decides which relative paths take part in the mirror. Exclude
// patterns suppress paths; include patterns override excludes. A pattern
// without a path separator matches any single path element, so ".git" or
// "*.log" behave the way they do in ignore files.
type Filter struct {
	include []compiledPattern
	exclude []compiledPattern
}

type compiledPattern struct {
	g        glob.Glob
	anyLevel bool // pattern has no separator, match individual elements
}

func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.include, err = compilePatterns(include); err != nil {
		return nil, err
	}
	if f.exclude, err = compilePatterns(exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, compiledPattern{g: g, anyLevel: !strings.Contains(p, "/")})
	}
	return compiled, nil
}

// Excluded reports whether the slash-separated relative path rel is
// suppressed by the filter.
func (f *Filter) Excluded(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	if !match(f.exclude, rel) {
		return false
	}
	return !match(f.include, rel)
}

func match(patterns []compiledPattern, rel string) bool {
	for _, p := range patterns {
		if p.g.Match(rel) {
			return true
		}
		if p.anyLevel {
			for elem := range strings.SplitSeq(rel, "/") {
				if p.g.Match(elem) {
					return true
				}
			}
		}
	}
	return false
}
