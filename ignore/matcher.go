package ignore

// Matcher decides whether a path is ignored given an ordered set of
// patterns: later patterns override earlier ones when both match,
// mirroring how nested .gitignore files layer on top of parent ones.
type Matcher interface {
	Match(path []string, isDir bool) bool
}

type matcher struct {
	patterns []Pattern
}

// NewMatcher returns a Matcher applying ps in order; the last pattern
// that returns anything other than NoMatch decides the outcome.
func NewMatcher(ps []Pattern) Matcher {
	return &matcher{patterns: ps}
}

func (m *matcher) Match(path []string, isDir bool) bool {
	result := NoMatch
	for _, p := range m.patterns {
		if r := p.Match(path, isDir); r != NoMatch {
			result = r
		}
	}
	return result == Exclude
}
