package ignore

import "testing"

func TestMatcherMatch(t *testing.T) {
	ps := []Pattern{
		ParsePattern("**/middle/v[uo]l?ano", nil),
		ParsePattern("!volcano", nil),
	}

	m := NewMatcher(ps)
	if !m.Match([]string{"head", "middle", "vulkano"}, false) {
		t.Fatal("expected vulkano to match")
	}
	if m.Match([]string{"head", "middle", "volcano"}, false) {
		t.Fatal("expected volcano to be excluded by the negated pattern")
	}
}
