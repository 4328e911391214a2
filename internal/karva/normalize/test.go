package normalize

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/fixture"
	"github.com/albertocavalcante/karva/internal/karva/tag"
)

// NormalizedTestFunction is one concrete invocation of a test after
// parametrize expansion, per spec §3/§4.3.
type NormalizedTestFunction struct {
	Name            string
	Variant         string // rendered "[k1=v1, k2=v2]" suffix, empty when unparametrized
	ParamValues     map[string]starlark.Value
	FixtureDeps     []*NormalizedFixture // passed as arguments, in the def's parameter order
	UseFixtureDeps  []*NormalizedFixture // set up for side effect only
	AutoUseDeps     []*NormalizedFixture
	MissingFixtures []string
	Fn              *starlark.Function
	Tags            tag.Tags

	// SkipStatic is set when a SkipIf condition was constant-foldable at
	// normalize time and evaluated true (spec §4.3 step 1).
	SkipStatic       bool
	SkipStaticReason string

	// DeferredSkipIf holds SkipIf tags whose condition could not be
	// constant-folded; the runner evaluates them at invoke() time.
	DeferredSkipIf []tag.Tag
}

// Expand produces every NormalizedTestFunction for discovered test t within
// chain, per spec §4.3's five steps.
func Expand(chain fixture.Chain, t *discover.TestFunction) ([]*NormalizedTestFunction, error) {
	rows, paramNames, err := parametrizeRows(t.Tags)
	if err != nil {
		return nil, err
	}

	// Step 3: partition declared parameters into parametrize-supplied vs
	// fixture-required.
	paramSet := make(map[string]bool, len(paramNames))
	for _, n := range paramNames {
		paramSet[n] = true
	}
	var fixtureParamNames []string
	numParams := t.Fn.NumParams()
	for i := 0; i < numParams; i++ {
		name, _ := t.Fn.Param(i)
		if !paramSet[name] {
			fixtureParamNames = append(fixtureParamNames, name)
		}
	}

	useFixtureNames := useFixtureNames(t.Tags)

	// Fixture resolution doesn't depend on the test-level parametrize row,
	// so it's computed once: a fixture-parameter or use_fixtures name that
	// is itself parametrized fans out into multiple cartesian rows here
	// (spec §4.2), each of which then combines with every parametrize row
	// below.
	seen := make(map[string][]*NormalizedFixture)
	fixtureRows, missing1, err := ResolveNamed(chain, fixtureParamNames, seen)
	if err != nil {
		return nil, err
	}
	useRows, missing2, err := ResolveNamed(chain, useFixtureNames, seen)
	if err != nil {
		return nil, err
	}
	autoDeps, err := AutoUseGraphs(chain, discover.ScopeFunction, seen)
	if err != nil {
		return nil, err
	}
	missing := append(missing1, missing2...)

	var out []*NormalizedTestFunction
	for _, row := range orOneEmptyRow(rows) {
		paramValues := make(map[string]starlark.Value, len(row))
		for i, name := range paramNames {
			paramValues[name] = row[i]
		}

		for _, frow := range orOneEmptyFixtureRow(fixtureRows) {
			for _, urow := range orOneEmptyFixtureRow(useRows) {
				ntf := &NormalizedTestFunction{
					Name:            t.Name,
					ParamValues:     paramValues,
					FixtureDeps:     frow,
					UseFixtureDeps:  urow,
					AutoUseDeps:     autoDeps,
					MissingFixtures: missing,
					Fn:              t.Fn,
					Tags:            t.Tags,
				}
				ntf.Variant = renderVariant(paramNames, row, frow, urow)

				evalStaticSkip(ntf, t.Tags)
				out = append(out, ntf)
			}
		}
	}
	return out, nil
}

func orOneEmptyRow(rows [][]starlark.Value) [][]starlark.Value {
	if len(rows) == 0 {
		return [][]starlark.Value{nil}
	}
	return rows
}

// orOneEmptyFixtureRow mirrors orOneEmptyRow for fixture-resolution combos:
// a combo list with no rows still contributes exactly one (empty)
// combination to the outer cartesian product. (ResolveNamed itself already
// returns one empty combination when names is empty.)
func orOneEmptyFixtureRow(rows [][]*NormalizedFixture) [][]*NormalizedFixture {
	if len(rows) == 0 {
		return [][]*NormalizedFixture{nil}
	}
	return rows
}

// parametrizeRows composes every stacked Parametrize tag by cartesian
// product, per spec §4.3 step 2. Returns the combined ordered parameter
// names and the resulting rows (each row has len == len(names)).
func parametrizeRows(tags tag.Tags) ([][]starlark.Value, []string, error) {
	var names []string
	var rows [][]starlark.Value

	for _, t := range tags {
		if t.Kind != tag.Parametrize {
			continue
		}
		if rows == nil {
			names = append([]string{}, t.ParamNames...)
			rows = t.Rows
			continue
		}
		// cartesian product with the accumulated rows so far
		names = append(names, t.ParamNames...)
		var combined [][]starlark.Value
		for _, existing := range rows {
			for _, next := range t.Rows {
				row := append(append([]starlark.Value{}, existing...), next...)
				combined = append(combined, row)
			}
		}
		rows = combined
	}
	return rows, names, nil
}

func useFixtureNames(tags tag.Tags) []string {
	var names []string
	for _, t := range tags {
		if t.Kind == tag.UseFixtures {
			names = append(names, t.FixtureNames...)
		}
	}
	return names
}

// evalStaticSkip evaluates SkipIf conditions statically when constant
// (spec §4.3 step 1); non-constant conditions are deferred to invoke().
func evalStaticSkip(ntf *NormalizedTestFunction, tags tag.Tags) {
	for _, t := range tags {
		if t.Kind != tag.Skip && t.Kind != tag.SkipIf {
			continue
		}
		if t.Kind == tag.Skip {
			ntf.SkipStatic = true
			ntf.SkipStaticReason = t.Reason
			return
		}
		if b, ok := t.Condition.(starlark.Bool); ok {
			if bool(b) {
				ntf.SkipStatic = true
				ntf.SkipStaticReason = t.Reason
				return
			}
			continue
		}
		ntf.DeferredSkipIf = append(ntf.DeferredSkipIf, t)
	}
}

// renderVariant formats "[k1=v1, k2=v2]" with lexicographically sorted
// keys and values rendered via Starlark's own repr, per spec §4.3. Beyond
// the test's own parametrize row, every parametrized fixture reachable from
// fixtureRows (directly requested or via a transitive dependency) also
// contributes a k=v pair keyed by its fixture name, since a fixture-level
// parametrization produces a distinct test variant exactly like a test-level
// one (spec §4.2).
func renderVariant(names []string, row []starlark.Value, fixtureRows ...[]*NormalizedFixture) string {
	var pairs []variantPair
	for i, n := range names {
		pairs = append(pairs, variantPair{k: n, v: row[i].String()})
	}

	seen := make(map[string]bool)
	for _, fixtures := range fixtureRows {
		collectParamFixtures(fixtures, seen, &pairs)
	}

	if len(pairs) == 0 {
		return ""
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%s", p.k, p.v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type variantPair struct{ k, v string }

func collectParamFixtures(roots []*NormalizedFixture, seen map[string]bool, pairs *[]variantPair) {
	for _, nf := range roots {
		if nf == nil || seen[nf.CacheKey] {
			continue
		}
		seen[nf.CacheKey] = true
		if nf.HasParam {
			*pairs = append(*pairs, variantPair{k: nf.Name, v: nf.ParamValue.String()})
		}
		collectParamFixtures(nf.Dependencies, seen, pairs)
	}
}
