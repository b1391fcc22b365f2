package query

import (
	"context"
	"strings"

	"github.com/Emberfield/autodoc/internal/store"
)

// Coverage estimates which functions have tests by name overlap. It reads
// no coverage data: a target counts as tested when some test's normalized
// name contains the target's normalized name.
type Coverage struct {
	TotalTargets int     `json:"total_targets" yaml:"total_targets"`
	TotalTests   int     `json:"total_tests" yaml:"total_tests"`
	Tested       []Ref   `json:"tested" yaml:"tested"`
	Untested     []Ref   `json:"untested" yaml:"untested"`
	CoveragePct  float64 `json:"coverage_pct" yaml:"coverage_pct"`
}

// TestCoverage matches test entities to target entities. Targets are the
// non-test Function and Method nodes; tests are Function, Method and Class
// nodes flagged as tests. CoveragePct is tested/total in [0,1].
func (e *Engine) TestCoverage(ctx context.Context) (*Coverage, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	var tests []string
	var targets []*store.Node
	for _, n := range s.nodes {
		if n.Kind == store.KindFile {
			continue
		}
		if n.IsTest {
			if key := normalizeTestName(n.Name); key != "" {
				tests = append(tests, key)
			}
			continue
		}
		if n.Kind == store.KindFunction || n.Kind == store.KindMethod {
			targets = append(targets, n)
		}
	}

	cov := &Coverage{
		TotalTargets: len(targets),
		TotalTests:   len(tests),
		Tested:       []Ref{},
		Untested:     []Ref{},
	}
	for _, t := range targets {
		if isTested(normalizeName(t.Name), tests) {
			cov.Tested = append(cov.Tested, refOf(t))
		} else {
			cov.Untested = append(cov.Untested, refOf(t))
		}
	}
	if len(targets) > 0 {
		cov.CoveragePct = float64(len(cov.Tested)) / float64(len(targets))
	}
	return cov, nil
}

func isTested(target string, tests []string) bool {
	if target == "" {
		return false
	}
	for _, t := range tests {
		if strings.Contains(t, target) {
			return true
		}
	}
	return false
}

// normalizeName lowercases and drops underscores so that "get_user",
// "getUser" and "_get_user" compare equal.
func normalizeName(name string) string {
	name = strings.Trim(name, "_")
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// normalizeTestName strips test prefixes and suffixes before normalizing:
// "test_get_user" and "TestGetUser" both become "getuser".
func normalizeTestName(name string) string {
	switch {
	case strings.HasPrefix(name, "test_"):
		name = name[len("test_"):]
	case strings.HasPrefix(name, "Test"):
		name = name[len("Test"):]
	case strings.HasPrefix(name, "test"):
		name = name[len("test"):]
	}
	name = strings.TrimSuffix(name, "_test")
	name = strings.TrimSuffix(name, "Test")
	return normalizeName(name)
}
