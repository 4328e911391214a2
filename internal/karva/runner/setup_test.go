package runner

import (
	"testing"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/diagnostic"
	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/normalize"
	"github.com/albertocavalcante/karva/internal/karva/runtime"
	"github.com/albertocavalcante/karva/internal/karva/tag"
)

func compileFixtureFn(t *testing.T, name, src string) *starlark.Function {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	predeclared := starlark.StringDict{
		"fail": tag.FailBuiltin(),
		"skip": tag.SkipBuiltin(),
	}
	globals, err := starlark.ExecFile(thread, "test.star", src, predeclared)
	if err != nil {
		t.Fatalf("compiling %s: %v", name, err)
	}
	fn, ok := globals[name].(*starlark.Function)
	if !ok {
		t.Fatalf("%s is not a function", name)
	}
	return fn
}

func newSession(t *testing.T) *Session {
	t.Helper()
	return &Session{
		Thread:     &starlark.Thread{Name: "test"},
		Fixtures:   runtime.NewFixtureCache(),
		Finalizers: runtime.NewFinalizerCache(),
		TmpDirFor:  func(string) (string, error) { return t.TempDir(), nil },
	}
}

// TestSetupGeneratorFixtureBindsByNameRegardlessOfParamOrder guards the
// keyword-argument call: request listed before its fellow dependency in
// the fixture's own parameter list must not swap their values.
func TestSetupGeneratorFixtureBindsByNameRegardlessOfParamOrder(t *testing.T) {
	connFn := compileFixtureFn(t, "conn", "def conn():\n    return 'the-connection'\n")
	connDef := &discover.Fixture{Name: "conn", Scope: discover.ScopeFunction, Fn: connFn}
	connNF := &normalize.NormalizedFixture{Name: "conn", Scope: discover.ScopeFunction, Def: connDef, CacheKey: "conn"}

	// request declared first, conn second — opposite of append order.
	dbFn := compileFixtureFn(t, "db", `
def db(request, conn):
    request.add_finalizer(lambda: None)
    return conn
`)
	dbDef := &discover.Fixture{Name: "db", Scope: discover.ScopeFunction, Fn: dbFn, IsGenerator: true}
	dbNF := &normalize.NormalizedFixture{
		Name:         "db",
		Scope:        discover.ScopeFunction,
		Def:          dbDef,
		CacheKey:     "db",
		Dependencies: []*normalize.NormalizedFixture{connNF},
	}

	sess := newSession(t)
	res := sess.Setup(dbNF, "mod::test_x")
	if res.Failed {
		t.Fatalf("Setup failed, missing=%q, diags=%+v", res.Missing, sess.Diags)
	}
	str, ok := starlark.AsString(res.Value)
	if !ok || str != "the-connection" {
		t.Errorf("db fixture returned %v (%T), want the conn value bound correctly despite param order", res.Value, res.Value)
	}
}

func TestSetupNonGeneratorFixtureNoRequestArg(t *testing.T) {
	fn := compileFixtureFn(t, "one", "def one():\n    return 1\n")
	def := &discover.Fixture{Name: "one", Scope: discover.ScopeFunction, Fn: fn}
	nf := &normalize.NormalizedFixture{Name: "one", Scope: discover.ScopeFunction, Def: def, CacheKey: "one"}

	sess := newSession(t)
	res := sess.Setup(nf, "mod::test_x")
	if res.Failed {
		t.Fatalf("Setup failed: %+v", sess.Diags)
	}
	n, ok := res.Value.(starlark.Int)
	if v, _ := n.Int64(); !ok || v != 1 {
		t.Errorf("got %v, want 1", res.Value)
	}
}

func TestSetupCachesByScope(t *testing.T) {
	calls := 0
	fn := compileFixtureFn(t, "counter", "def counter():\n    return 1\n")
	_ = calls
	def := &discover.Fixture{Name: "counter", Scope: discover.ScopeModule, Fn: fn}
	nf := &normalize.NormalizedFixture{Name: "counter", Scope: discover.ScopeModule, Def: def, CacheKey: "counter"}

	sess := newSession(t)
	first := sess.Setup(nf, "mod::test_a")
	if first.Failed {
		t.Fatalf("first Setup failed: %+v", sess.Diags)
	}
	if _, ok := sess.Fixtures.Get(discover.ScopeModule, "counter"); !ok {
		t.Fatal("expected value to be cached at module scope")
	}

	second := sess.Setup(nf, "mod::test_b")
	if second.Failed || second.Value != first.Value {
		t.Errorf("expected the cached value to be reused, got %+v vs %+v", second, first)
	}
}

func TestSetupBuiltinFixtureUsesTmpDirFor(t *testing.T) {
	var gotName string
	sess := newSession(t)
	sess.TmpDirFor = func(testName string) (string, error) {
		gotName = testName
		return "/tmp/whatever", nil
	}

	nf := &normalize.NormalizedFixture{
		Name:    "tmp_path",
		Scope:   discover.ScopeFunction,
		Builtin: true,
		BuiltinValue: func(dir string) (starlark.Value, error) {
			return starlark.String(dir), nil
		},
	}

	res := sess.Setup(nf, "mod::test_y")
	if res.Failed {
		t.Fatalf("Setup failed: %+v", sess.Diags)
	}
	if gotName != "mod::test_y" {
		t.Errorf("TmpDirFor called with %q, want mod::test_y", gotName)
	}
	if s, ok := starlark.AsString(res.Value); !ok || s != "/tmp/whatever" {
		t.Errorf("got %v, want /tmp/whatever", res.Value)
	}
}

func TestSetupDependencyFailurePropagatesMissing(t *testing.T) {
	brokenFn := compileFixtureFn(t, "broken", "def broken():\n    fail('boom')\n")
	brokenDef := &discover.Fixture{Name: "broken", Scope: discover.ScopeFunction, Fn: brokenFn}
	brokenNF := &normalize.NormalizedFixture{Name: "broken", Scope: discover.ScopeFunction, Def: brokenDef, CacheKey: "broken"}

	depFn := compileFixtureFn(t, "depends", "def depends(broken):\n    return broken\n")
	depDef := &discover.Fixture{Name: "depends", Scope: discover.ScopeFunction, Fn: depFn}
	depNF := &normalize.NormalizedFixture{
		Name:         "depends",
		Scope:        discover.ScopeFunction,
		Def:          depDef,
		CacheKey:     "depends",
		Dependencies: []*normalize.NormalizedFixture{brokenNF},
	}

	sess := newSession(t)

	res := sess.Setup(depNF, "mod::test_z")
	if !res.Failed {
		t.Fatal("expected a failed setup for a fixture whose dependency errors")
	}
	if res.Missing != "broken" {
		t.Errorf("Missing = %q, want broken", res.Missing)
	}
	if len(sess.Diags) != 1 || sess.Diags[0].Kind != diagnostic.KindFixtureFailure {
		t.Errorf("expected one KindFixtureFailure diagnostic, got %+v", sess.Diags)
	}
}
