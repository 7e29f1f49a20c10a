package suite

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter returns a copy of s restricted to scenarios whose name matches the
// glob pattern (for example "checkout-*"). The copy keeps suite order. An
// empty pattern returns s unchanged; a pattern matching nothing is an error
// because a run needs at least one scenario.
func Filter(s *Suite, pattern string) (*Suite, error) {
	if pattern == "" {
		return s, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario filter %q: %w", pattern, err)
	}

	filtered := *s
	filtered.Scenarios = nil
	for _, sc := range s.Scenarios {
		if g.Match(sc.Name) {
			filtered.Scenarios = append(filtered.Scenarios, sc)
		}
	}

	if len(filtered.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios match filter %q", pattern)
	}
	return &filtered, nil
}
