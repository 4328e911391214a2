// Package fixture implements name-based, scope-aware fixture resolution:
// the search order from a test's module up through its ancestor packages,
// dependency normalization, cycle detection, and auto-use collection.
// Grounded on the teacher's fixtures.go (generalized from 2 scopes to 4)
// and karva_core/src/fixture/manager.rs's add_fixtures_impl.
package fixture

import (
	"fmt"

	"github.com/albertocavalcante/karva/internal/karva/discover"
)

// Chain is the search path for one test: its module, plus ancestor
// packages ordered nearest-parent-first (Pk, Pk-1, ..., P1), matching
// spec §4.2's search order exactly.
type Chain struct {
	Module    *discover.Module
	Ancestors []*discover.Package // index 0 = immediate parent Pk
}

// level is one searchable scope in the chain: either the module itself or
// one ancestor package's conftest.
type level struct {
	fixtures []*discover.Fixture
}

func (c Chain) levels() []level {
	levels := make([]level, 0, 1+len(c.Ancestors))
	levels = append(levels, level{fixtures: c.Module.Fixtures})
	for _, pkg := range c.Ancestors {
		if pkg.Conftest != nil {
			levels = append(levels, level{fixtures: pkg.Conftest.Fixtures})
		} else {
			levels = append(levels, level{})
		}
	}
	return levels
}

// Resolved is the outcome of looking up one fixture name.
type Resolved struct {
	Fixture *discover.Fixture
	Depth   int // 0 = module level, increasing with ancestor distance
}

// ErrAmbiguous is returned when two fixtures of the same name are defined
// at equal depth in the chain — spec.md §9's Open Question, resolved as a
// diagnostic rather than an arbitrary pick.
type ErrAmbiguous struct {
	Name  string
	Depth int
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("fixture %q is ambiguous: multiple definitions at the same depth", e.Name)
}

// Find searches the chain for name, excluding self (the cycle guard: a
// fixture never resolves to itself). Returns (nil, nil) on no match so the
// caller can fall through to the built-in registry.
func Find(c Chain, name string, self *discover.Fixture) (*Resolved, error) {
	for depth, lv := range c.levels() {
		var hit *discover.Fixture
		ambiguous := false
		for _, f := range lv.fixtures {
			if f.Name != name || f == self {
				continue
			}
			if hit != nil {
				ambiguous = true
				break
			}
			hit = f
		}
		if ambiguous {
			return nil, &ErrAmbiguous{Name: name, Depth: depth}
		}
		if hit != nil {
			return &Resolved{Fixture: hit, Depth: depth}, nil
		}
	}
	return nil, nil
}

// AutoUse returns every autouse fixture visible anywhere in the chain for
// the given scope, nearest-level duplicates overriding farther ones by
// name (closer wins, same tie-break rule as ordinary resolution).
func AutoUse(c Chain, scope discover.Scope) []*discover.Fixture {
	// Levels are visited nearest-first; the first fixture seen for a given
	// name is already the closest one, so later (farther) same-name hits
	// must not override it.
	seen := make(map[string]*discover.Fixture)
	var order []string
	for _, lv := range c.levels() {
		for _, f := range lv.fixtures {
			if !f.AutoUse || f.Scope != scope {
				continue
			}
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = f
			order = append(order, f.Name)
		}
	}
	out := make([]*discover.Fixture, 0, len(order))
	for _, n := range order {
		out = append(out, seen[n])
	}
	return out
}

// Dependencies returns F's non-variadic parameter names excluding `request`
// (the standard introspection argument, per spec §4.2).
func Dependencies(f *discover.Fixture) []string {
	n := f.Fn.NumParams()
	if f.Fn.HasVarargs() {
		n--
	}
	if f.Fn.HasKwargs() {
		n--
	}
	deps := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, _ := f.Fn.Param(i)
		if name == "request" {
			continue
		}
		deps = append(deps, name)
	}
	return deps
}
