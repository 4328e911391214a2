// Package runner drives execution of a discovered package tree: fixture
// setup/teardown at every scope transition, test invocation, diagnostic
// recording. Implements spec §4.5's run/run_module/invoke pseudocode
// unchanged.
package runner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/diagnostic"
	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/fixture"
	"github.com/albertocavalcante/karva/internal/karva/normalize"
	"github.com/albertocavalcante/karva/internal/karva/tag"
)

// Stats accumulates pass/fail/skip counts, per spec §3.
type Stats struct {
	Passed  int
	Failed  int
	Skipped int
}

func (s Stats) Total() int      { return s.Passed + s.Failed + s.Skipped }
func (s Stats) IsSuccess() bool { return s.Failed == 0 }

// Result is one worker's full run outcome.
type Result struct {
	Stats      Stats
	Diagnostics []diagnostic.Diagnostic
	Durations  map[string]int64 // qualified test name -> microseconds
}

// Runner executes a discovered package tree against a Session.
type Runner struct {
	Session  *Session
	Settings runnerSettings
	stopped  bool // sticky fail-fast flag, checked only before the next invocation
	result   Result
}

type runnerSettings struct {
	FailFast bool
}

// New constructs a Runner.
func New(sess *Session, failFast bool) *Runner {
	return &Runner{
		Session:  sess,
		Settings: runnerSettings{FailFast: failFast},
		result:   Result{Durations: make(map[string]int64)},
	}
}

// Result returns the accumulated outcome after Run completes.
func (r *Runner) Result() Result {
	r.result.Diagnostics = append(r.result.Diagnostics, r.Session.Diags...)
	return r.result
}

// Run executes the root package: session fixtures set up once, torn down
// once, at the top-level call only (spec §4.5's run(package, ancestors)
// pseudocode, whose first step is "setup session fixtures (once, at the
// root)").
func (r *Runner) Run(root *discover.Package) error {
	chain := fixture.Chain{Module: emptyModule(), Ancestors: prependPackage(root, nil)}
	r.setupAutoUse(chain, discover.ScopeSession)
	r.runPackage(root, fixture.Chain{})
	r.Session.TeardownScope(discover.ScopeSession)
	return nil
}

func (r *Runner) runPackage(pkg *discover.Package, ancestors fixture.Chain) {
	if r.stopped {
		return
	}

	// package-scoped auto-use fixtures visible here (no single "current
	// module" yet, so resolve against an empty-module chain rooted at this
	// package's own ancestor list).
	chain := fixture.Chain{Module: emptyModule(), Ancestors: prependPackage(pkg, ancestors.Ancestors)}
	r.setupAutoUse(chain, discover.ScopePackage)

	for _, name := range sortedModuleKeys(pkg) {
		if r.stopped {
			break
		}
		r.runModule(pkg.Modules[name], fixture.Chain{Ancestors: chain.Ancestors})
	}
	for _, name := range sortedPackageKeys(pkg) {
		if r.stopped {
			break
		}
		r.runPackage(pkg.Packages[name], fixture.Chain{Ancestors: chain.Ancestors})
	}

	r.Session.TeardownScope(discover.ScopePackage)
}

func (r *Runner) runModule(mod *discover.Module, ancestors fixture.Chain) {
	chain := fixture.Chain{Module: mod, Ancestors: ancestors.Ancestors}
	r.setupAutoUse(chain, discover.ScopeModule)

	for _, t := range mod.Tests {
		if r.stopped {
			break
		}
		variants, err := normalize.Expand(chain, t)
		if err != nil {
			r.result.Diagnostics = append(r.result.Diagnostics, diagnostic.Diagnostic{
				Kind:    diagnostic.KindInvalidFixture,
				Message: err.Error(),
				TestName: t.Name,
			})
			continue
		}
		for _, v := range variants {
			if r.stopped {
				break
			}
			r.invoke(v, mod)
		}
	}

	r.Session.TeardownScope(discover.ScopeModule)
}

func (r *Runner) setupAutoUse(chain fixture.Chain, scope discover.Scope) {
	seen := make(map[string][]*normalize.NormalizedFixture)
	graphs, err := normalize.AutoUseGraphs(chain, scope, seen)
	if err != nil {
		return
	}
	for _, g := range graphs {
		r.Session.Setup(g, "")
	}
}

// invoke implements spec §4.5's invoke(variant, module) exactly.
func (r *Runner) invoke(v *normalize.NormalizedTestFunction, mod *discover.Module) {
	if r.stopped {
		return
	}
	qualName := fmt.Sprintf("%s::%s%s", mod.Path.Dotted, v.Name, v.Variant)

	if v.SkipStatic {
		r.recordSkip(qualName, v.SkipStaticReason)
		return
	}
	if reason, skip := r.evalDeferredSkip(v); skip {
		r.recordSkip(qualName, reason)
		return
	}

	fixtureValues, missing := r.Session.SetupAll(v.FixtureDeps, qualName)
	_, useMissing := r.Session.SetupAll(v.UseFixtureDeps, qualName)
	_, autoMissing := r.Session.SetupAll(v.AutoUseDeps, qualName)
	missing = append(missing, useMissing...)
	missing = append(missing, autoMissing...)
	missing = append(missing, v.MissingFixtures...)

	defer r.Session.TeardownScope(discover.ScopeFunction)

	if len(missing) > 0 {
		r.result.Diagnostics = append(r.result.Diagnostics, diagnostic.Diagnostic{
			Kind:            diagnostic.KindTestFailure,
			TestFailureKind: diagnostic.ReasonMissingFixtures,
			TestName:        qualName,
			MissingFixtures: missing,
			Message:         fmt.Sprintf("missing fixtures: %v", missing),
		})
		r.result.Stats.Failed++
		if r.Settings.FailFast {
			r.stopped = true
		}
		return
	}

	args := buildCallArgs(v, fixtureValues)
	start := time.Now()
	_, err := starlark.Call(r.Session.Thread, v.Fn, args, nil)
	r.result.Durations[qualName] = time.Since(start).Microseconds()

	expectFail, expectReason := hasExpectFail(v.Tags)

	switch {
	case err == nil && expectFail:
		r.result.Diagnostics = append(r.result.Diagnostics, diagnostic.Diagnostic{
			Kind:            diagnostic.KindTestFailure,
			TestFailureKind: diagnostic.ReasonPassOnExpectFailure,
			TestName:        qualName,
			Message:         "test passed but was marked expect_fail",
		})
		r.result.Stats.Failed++
	case err == nil:
		r.result.Stats.Passed++
	case isSkipErr(err):
		r.recordSkip(qualName, skipReason(err))
		return
	case expectFail:
		_ = expectReason
		r.result.Stats.Passed++
	default:
		loc, _ := diagnostic.ExtractLocation(errBacktrace(err))
		d := diagnostic.Diagnostic{
			Kind:            diagnostic.KindTestFailure,
			TestFailureKind: diagnostic.ReasonRunFailure,
			TestName:        qualName,
			Location:        loc,
			Message:         err.Error(),
			Traceback:       diagnostic.CleanTraceback(errBacktrace(err)),
			MissingFixtures: v.MissingFixtures,
		}
		diagnostic.RepairMissingFixtures(&d, err.Error())
		r.result.Diagnostics = append(r.result.Diagnostics, d)
		r.result.Stats.Failed++
		if r.Settings.FailFast {
			r.stopped = true
		}
	}
}

func (r *Runner) recordSkip(qualName, reason string) {
	r.result.Diagnostics = append(r.result.Diagnostics, diagnostic.Diagnostic{
		Kind:     diagnostic.KindTestFailure,
		TestName: qualName,
		Message:  reason,
	})
	r.result.Stats.Skipped++
}

func (r *Runner) evalDeferredSkip(v *normalize.NormalizedTestFunction) (string, bool) {
	for _, t := range v.DeferredSkipIf {
		val, err := starlark.Call(r.Session.Thread, asCallable(t.Condition), nil, nil)
		if err == nil {
			if b, ok := val.(starlark.Bool); ok && bool(b) {
				return t.Reason, true
			}
		}
	}
	return "", false
}

func asCallable(v starlark.Value) starlark.Callable {
	if c, ok := v.(starlark.Callable); ok {
		return c
	}
	return nil
}

func buildCallArgs(v *normalize.NormalizedTestFunction, fixtureValues map[string]starlark.Value) starlark.Tuple {
	n := v.Fn.NumParams()
	args := make(starlark.Tuple, 0, n)
	for i := 0; i < n; i++ {
		name, _ := v.Fn.Param(i)
		if pv, ok := v.ParamValues[name]; ok {
			args = append(args, pv)
			continue
		}
		if fv, ok := fixtureValues[name]; ok {
			args = append(args, fv)
			continue
		}
		args = append(args, starlark.None)
	}
	return args
}

func hasExpectFail(tags tag.Tags) (bool, string) {
	for _, t := range tags {
		if t.Kind == tag.ExpectFail {
			return true, t.Reason
		}
	}
	return false, ""
}

func isSkipErr(err error) bool {
	var se *tag.ErrSkip
	return errors.As(err, &se)
}

func skipReason(err error) string {
	var se *tag.ErrSkip
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

func sortedModuleKeys(pkg *discover.Package) []string {
	keys := make([]string, 0, len(pkg.Modules))
	for k := range pkg.Modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPackageKeys(pkg *discover.Package) []string {
	keys := make([]string, 0, len(pkg.Packages))
	for k := range pkg.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func emptyModule() *discover.Module { return &discover.Module{} }

func prependPackage(pkg *discover.Package, ancestors []*discover.Package) []*discover.Package {
	out := make([]*discover.Package, 0, len(ancestors)+1)
	out = append(out, pkg)
	out = append(out, ancestors...)
	return out
}
