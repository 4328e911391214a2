package runner

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/diagnostic"
	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/fixture"
	"github.com/albertocavalcante/karva/internal/karva/normalize"
	"github.com/albertocavalcante/karva/internal/karva/runtime"
)

// Session holds the caches and builtin state one worker process threads
// through an entire run: the fixture value cache, the finalizer stacks,
// and the per-test tmp directory factory.
type Session struct {
	Thread     *starlark.Thread
	Fixtures   *runtime.FixtureCache
	Finalizers *runtime.FinalizerCache
	TmpDirFor  func(testName string) (string, error)
	Diags      []diagnostic.Diagnostic
}

// SetupResult is what setting up one NormalizedFixture produces.
type SetupResult struct {
	Value   starlark.Value
	Failed  bool
	Missing string // this fixture's own name, when it itself failed
}

// Setup implements spec §4.4 steps 1-6: check cache, recursively set up
// dependencies, invoke, cache, and on failure record a FixtureFailure
// diagnostic so dependents report MissingFixtures.
func (s *Session) Setup(nf *normalize.NormalizedFixture, testName string) SetupResult {
	if nf.Builtin {
		dir, err := s.TmpDirFor(testName)
		if err != nil {
			s.Diags = append(s.Diags, diagnostic.Diagnostic{
				Kind:    diagnostic.KindFixtureFailure,
				Message: fmt.Sprintf("failed to create tmp dir for %s: %v", nf.Name, err),
			})
			return SetupResult{Failed: true, Missing: nf.Name}
		}
		v, err := nf.BuiltinValue(dir)
		if err != nil {
			return SetupResult{Failed: true, Missing: nf.Name}
		}
		return SetupResult{Value: v}
	}

	if v, ok := s.Fixtures.Get(nf.Scope, nf.CacheKey); ok {
		return SetupResult{Value: v}
	}

	// Built as keyword arguments, not positional, so a dependency's
	// position in nf.Dependencies (which always excludes "request") never
	// has to match request's actual position in the fixture's own
	// parameter list.
	kwargs := make([]starlark.Tuple, 0, len(nf.Dependencies)+1)
	for _, dep := range nf.Dependencies {
		res := s.Setup(dep, testName)
		if res.Failed {
			return SetupResult{Failed: true, Missing: res.Missing}
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(dep.Name), res.Value})
	}
	if nf.Def.IsGenerator {
		req := fixture.NewRequest(nf.Name, nf.Scope, s.Finalizers)
		if nf.HasParam {
			req.Param = nf.ParamValue
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String("request"), req})
	}

	val, err := starlark.Call(s.Thread, nf.Def.Fn, nil, kwargs)
	if err != nil {
		loc, _ := diagnostic.ExtractLocation(errBacktrace(err))
		s.Diags = append(s.Diags, diagnostic.Diagnostic{
			Kind:      diagnostic.KindFixtureFailure,
			Message:   err.Error(),
			Location:  loc,
			Traceback: diagnostic.CleanTraceback(errBacktrace(err)),
		})
		return SetupResult{Failed: true, Missing: nf.Name}
	}

	s.Fixtures.Set(nf.Scope, nf.CacheKey, val)
	return SetupResult{Value: val}
}

// SetupAll runs Setup over every entry of a dependency list, collecting the
// names of any that failed.
func (s *Session) SetupAll(deps []*normalize.NormalizedFixture, testName string) (map[string]starlark.Value, []string) {
	values := make(map[string]starlark.Value, len(deps))
	var missing []string
	for _, dep := range deps {
		res := s.Setup(dep, testName)
		if res.Failed {
			missing = append(missing, res.Missing)
			continue
		}
		values[dep.Name] = res.Value
	}
	return values, missing
}

// TeardownScope drains scope's finalizers and clears its fixture cache,
// per spec §4.4's scope-exit algorithm.
func (s *Session) TeardownScope(scope discover.Scope) {
	for _, fe := range s.Finalizers.RunAndClearScope(scope) {
		s.Diags = append(s.Diags, diagnostic.Diagnostic{
			Kind:     diagnostic.KindWarning,
			Message:  fmt.Sprintf("finalizer for fixture %q failed: %v", fe.Finalizer.FixtureName, fe.Err),
			TestName: fe.Finalizer.FixtureName,
		})
	}
	s.Fixtures.ClearScope(scope)
}

func errBacktrace(err error) string {
	if ee, ok := err.(*starlark.EvalError); ok {
		return ee.Backtrace()
	}
	return err.Error()
}
