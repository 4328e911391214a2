// Package normalize expands discovered tests and fixtures into concrete,
// runnable variants: parametrize cartesian products, fixture dependency
// graphs, auto-use/use-fixtures resolution and tag propagation.
package normalize

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/builtin"
	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/fixture"
)

// NormalizedFixture is either a built-in (a BuiltinValue factory that builds
// the value from the test's tmp directory, Function scope) or a
// user-defined fixture with already-resolved, already-ordered dependencies.
//
// A fixture declared with fixture(params=[...]) produces one
// NormalizedFixture per parameter value (§4.2): HasParam/ParamValue carry
// that value through to the fixture call (exposed as request.param) and
// CacheKey disambiguates the FixtureCache entry for each variant, since
// Name alone is shared across all of a parametrized fixture's variants.
type NormalizedFixture struct {
	Name    string
	Scope   discover.Scope
	Builtin bool

	// UserDefined fields
	Def          *discover.Fixture
	Dependencies []*NormalizedFixture

	HasParam   bool
	ParamValue starlark.Value
	CacheKey   string

	// Builtin fields
	BuiltinValue func(tmpDir string) (starlark.Value, error)
}

// ResolveFixtureGraph recursively normalizes fixture F's dependencies,
// producing the set of concrete NormalizedFixture variants F expands to: one
// per F's own parameter value (or a single unparametrized variant when F
// carries none), cartesian-combined with every sibling dependency's own
// variants. A dependency that does not resolve is reported via the returned
// missing slice rather than an error, so callers can accumulate every
// missing name (spec §4.2: "the test is marked with a MissingFixtures
// diagnostic enumerating each unresolved name").
func ResolveFixtureGraph(chain fixture.Chain, f *discover.Fixture, seen map[string][]*NormalizedFixture) ([]*NormalizedFixture, []string, error) {
	if variants, ok := seen[f.Name]; ok {
		return variants, nil, nil
	}
	// Placeholder inserted before recursing: guards a self-referential
	// dependency chain from looping forever. A cycle resolves to zero
	// variants for the inner reference, so that dependency is dropped; it
	// is not reported in the missing slice.
	seen[f.Name] = nil

	var missing []string
	depVariantSets := make([][]*NormalizedFixture, 0, len(fixture.Dependencies(f)))
	for _, depName := range fixture.Dependencies(f) {
		resolved, err := fixture.Find(chain, depName, f)
		if err != nil {
			return nil, nil, err
		}
		if resolved == nil {
			if IsBuiltinName(depName) {
				depVariantSets = append(depVariantSets, []*NormalizedFixture{builtinNormalized(depName)})
				continue
			}
			missing = append(missing, depName)
			continue
		}
		depVariants, depMissing, err := ResolveFixtureGraph(chain, resolved.Fixture, seen)
		if err != nil {
			return nil, nil, err
		}
		missing = append(missing, depMissing...)
		if len(depVariants) == 0 {
			continue
		}
		depVariantSets = append(depVariantSets, depVariants)
	}

	variants := fixtureVariants(f, depVariantSets)
	seen[f.Name] = variants
	return variants, missing, nil
}

// fixtureVariants builds F's NormalizedFixture variants: the cartesian
// product of its dependencies' variant sets, crossed with F's own
// parameter values (or a single nil "no parametrization" value).
func fixtureVariants(f *discover.Fixture, depVariantSets [][]*NormalizedFixture) []*NormalizedFixture {
	depCombos := [][]*NormalizedFixture{{}}
	for _, set := range depVariantSets {
		var next [][]*NormalizedFixture
		for _, combo := range depCombos {
			for _, v := range set {
				row := make([]*NormalizedFixture, 0, len(combo)+1)
				row = append(row, combo...)
				row = append(row, v)
				next = append(next, row)
			}
		}
		depCombos = next
	}

	paramValues := f.Params
	if len(paramValues) == 0 {
		paramValues = []starlark.Value{nil}
	}

	variants := make([]*NormalizedFixture, 0, len(depCombos)*len(paramValues))
	for _, combo := range depCombos {
		for _, pv := range paramValues {
			nf := &NormalizedFixture{
				Name:         f.Name,
				Scope:        f.Scope,
				Def:          f,
				Dependencies: combo,
				CacheKey:     f.Name,
			}
			if pv != nil {
				nf.HasParam = true
				nf.ParamValue = pv
				nf.CacheKey = fmt.Sprintf("%s[%s]", f.Name, pv.String())
			}
			variants = append(variants, nf)
		}
	}
	return variants
}

// IsBuiltinName reports whether name is one of the tmp-directory built-in
// fixture aliases (spec §4.6).
func IsBuiltinName(name string) bool {
	for _, n := range builtin.Names {
		if n == name {
			return true
		}
	}
	return false
}

func builtinNormalized(name string) *NormalizedFixture {
	return &NormalizedFixture{
		Name:     name,
		Scope:    discover.ScopeFunction,
		Builtin:  true,
		CacheKey: name,
		BuiltinValue: func(tmpDir string) (starlark.Value, error) {
			return builtin.Value(tmpDir), nil
		},
	}
}

// ResolveNamed resolves a flat list of fixture names (e.g. a test's
// fixture-parameter names, or a use_fixtures tag's names) against chain,
// returning every cartesian combination of the named fixtures' variants (in
// the given name order) and any names that did not resolve anywhere (user
// fixtures, ancestor chain, nor built-ins). A name with no parametrization
// anywhere in its graph produces exactly one combination, matching prior
// behavior.
func ResolveNamed(chain fixture.Chain, names []string, seen map[string][]*NormalizedFixture) ([][]*NormalizedFixture, []string, error) {
	combos := [][]*NormalizedFixture{{}}
	var missing []string
	for _, name := range names {
		variants, ok := seen[name]
		if !ok {
			resolved, err := fixture.Find(chain, name, nil)
			if err != nil {
				return nil, nil, err
			}
			if resolved == nil {
				if IsBuiltinName(name) {
					variants = []*NormalizedFixture{builtinNormalized(name)}
					seen[name] = variants
				} else {
					missing = append(missing, name)
					continue
				}
			} else {
				var depMissing []string
				variants, depMissing, err = ResolveFixtureGraph(chain, resolved.Fixture, seen)
				if err != nil {
					return nil, nil, err
				}
				missing = append(missing, depMissing...)
			}
		}
		if len(variants) == 0 {
			continue
		}
		var next [][]*NormalizedFixture
		for _, combo := range combos {
			for _, v := range variants {
				row := make([]*NormalizedFixture, 0, len(combo)+1)
				row = append(row, combo...)
				row = append(row, v)
				next = append(next, row)
			}
		}
		combos = next
	}
	return combos, missing, nil
}

// AutoUseGraphs resolves every autouse fixture visible at scope into
// normalized variants, for the runner to set up at the matching scope
// transition (spec §4.3 step 4, §4.5). Each autouse fixture is set up
// independently for side effect, not bound as a shared argument tuple, so
// a parametrized autouse fixture contributes all of its variants flattened
// rather than cartesian-combined with its autouse siblings.
func AutoUseGraphs(chain fixture.Chain, scope discover.Scope, seen map[string][]*NormalizedFixture) ([]*NormalizedFixture, error) {
	var out []*NormalizedFixture
	for _, f := range fixture.AutoUse(chain, scope) {
		variants, _, err := ResolveFixtureGraph(chain, f, seen)
		if err != nil {
			return nil, fmt.Errorf("resolving autouse fixture %q: %w", f.Name, err)
		}
		out = append(out, variants...)
	}
	return out, nil
}
