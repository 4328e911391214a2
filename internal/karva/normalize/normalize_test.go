package normalize

import (
	"strings"
	"testing"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/fixture"
	"github.com/albertocavalcante/karva/internal/karva/tag"
)

// buildModule execs src with the tag/fixture builtins predeclared and
// classifies its globals into a *discover.Module, mirroring (a simplified
// form of) the collector's own classification step.
func buildModule(t *testing.T, src string) *discover.Module {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	predeclared := starlark.StringDict{
		"tags":    tag.Module(),
		"fixture": tag.FixtureBuiltin(),
		"skip":    tag.SkipBuiltin(),
		"fail":    tag.FailBuiltin(),
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	globals, err := starlark.ExecFile(thread, "test.star", src, predeclared)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}

	mod := &discover.Module{}
	for name, v := range globals {
		switch fn := v.(type) {
		case *tag.FixtureMarker:
			scope, _ := discover.ParseScope(fn.Scope)
			mod.Fixtures = append(mod.Fixtures, &discover.Fixture{
				Name: fn.Name(), Scope: scope, AutoUse: fn.AutoUse, Params: fn.Params,
				Fn: fn.Fn, IsGenerator: hasRequestParam(fn.Fn),
			})
		case *tag.Tagged:
			if strings.HasPrefix(name, "test_") {
				mod.Tests = append(mod.Tests, &discover.TestFunction{Name: name, Tags: fn.Tags, Fn: fn.Fn})
			}
		case *starlark.Function:
			if strings.HasPrefix(name, "test_") {
				mod.Tests = append(mod.Tests, &discover.TestFunction{Name: name, Fn: fn})
			}
		}
	}
	return mod
}

func findTest(mod *discover.Module, name string) *discover.TestFunction {
	for _, t := range mod.Tests {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func TestExpandParametrizeCartesianProduct(t *testing.T) {
	src := `
def test_add(x, y):
    return x + y

test_add = tags.parametrize("x", [1, 2])(test_add)
test_add = tags.parametrize("y", [10, 20])(test_add)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_add"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 variants (2x2 cartesian), got %d", len(out))
	}
	variants := make(map[string]bool)
	for _, ntf := range out {
		variants[ntf.Variant] = true
	}
	for _, want := range []string{"[x=1, y=10]", "[x=1, y=20]", "[x=2, y=10]", "[x=2, y=20]"} {
		if !variants[want] {
			t.Errorf("missing variant %q in %v", want, variants)
		}
	}
}

func TestExpandUnparametrizedSingleVariant(t *testing.T) {
	src := `
def test_simple():
    return 1
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_simple"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 1 || out[0].Variant != "" {
		t.Errorf("expected 1 unvaried variant, got %+v", out)
	}
}

func TestExpandResolvesFixtureDependency(t *testing.T) {
	src := `
def db():
    return "connection"
db = fixture(db)

def test_query(db):
    return db
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_query"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out[0].FixtureDeps) != 1 || out[0].FixtureDeps[0].Name != "db" {
		t.Errorf("expected resolved 'db' fixture dependency, got %+v", out[0].FixtureDeps)
	}
	if len(out[0].MissingFixtures) != 0 {
		t.Errorf("expected no missing fixtures, got %v", out[0].MissingFixtures)
	}
}

func TestExpandReportsMissingFixture(t *testing.T) {
	src := `
def test_query(nonexistent):
    return nonexistent
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_query"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out[0].MissingFixtures) != 1 || out[0].MissingFixtures[0] != "nonexistent" {
		t.Errorf("expected missing fixture 'nonexistent', got %v", out[0].MissingFixtures)
	}
}

func TestExpandBuiltinTmpPathResolves(t *testing.T) {
	src := `
def test_writes(tmp_path):
    return tmp_path
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_writes"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out[0].FixtureDeps) != 1 || !out[0].FixtureDeps[0].Builtin {
		t.Errorf("expected a builtin tmp_path dependency, got %+v", out[0].FixtureDeps)
	}
	if len(out[0].MissingFixtures) != 0 {
		t.Errorf("tmp_path should not be reported missing: %v", out[0].MissingFixtures)
	}
}

func TestExpandStaticSkipIsDetected(t *testing.T) {
	src := `
def test_x():
    return 1
test_x = tags.skip("not ready")(test_x)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_x"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !out[0].SkipStatic || out[0].SkipStaticReason != "not ready" {
		t.Errorf("expected static skip detected, got %+v", out[0])
	}
}

func TestExpandConstantSkipIfFoldsStatically(t *testing.T) {
	src := `
def test_x():
    return 1
test_x = tags.skipif(True, reason="always")(test_x)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_x"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !out[0].SkipStatic {
		t.Error("expected skipif(True) to fold to a static skip")
	}
}

func TestExpandNonBoolSkipIfConditionIsDeferred(t *testing.T) {
	src := `
def test_x():
    return 1
test_x = tags.skipif("platform-check-result", reason="dynamic")(test_x)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_x"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if out[0].SkipStatic {
		t.Error("expected a non-bool condition to be deferred, not folded")
	}
	if len(out[0].DeferredSkipIf) != 1 {
		t.Errorf("expected 1 deferred SkipIf tag, got %d", len(out[0].DeferredSkipIf))
	}
}

func TestUseFixturesSetsUpSideEffectOnly(t *testing.T) {
	src := `
def log():
    return "logger"
log = fixture(log)

def test_x():
    return 1
test_x = tags.use_fixtures("log")(test_x)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	out, err := Expand(chain, findTest(mod, "test_x"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out[0].UseFixtureDeps) != 1 || out[0].UseFixtureDeps[0].Name != "log" {
		t.Errorf("expected 'log' in UseFixtureDeps, got %+v", out[0].UseFixtureDeps)
	}
	if len(out[0].FixtureDeps) != 0 {
		t.Errorf("use_fixtures should not populate FixtureDeps, got %+v", out[0].FixtureDeps)
	}
}

func TestResolveFixtureGraphOrdersTransitiveDependencies(t *testing.T) {
	src := `
def conn():
    return "conn"
conn = fixture(conn)

def db(conn):
    return conn
db = fixture(db)
`
	mod := buildModule(t, src)
	chain := fixture.Chain{Module: mod}
	var dbFixture *discover.Fixture
	for _, f := range mod.Fixtures {
		if f.Name == "db" {
			dbFixture = f
		}
	}
	if dbFixture == nil {
		t.Fatal("db fixture not found")
	}

	seen := make(map[string][]*NormalizedFixture)
	variants, missing, err := ResolveFixtureGraph(chain, dbFixture, seen)
	if err != nil {
		t.Fatalf("ResolveFixtureGraph: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing deps, got %v", missing)
	}
	if len(variants) != 1 {
		t.Fatalf("expected exactly one unparametrized 'db' variant, got %d", len(variants))
	}
	nf := variants[0]
	if len(nf.Dependencies) != 1 || nf.Dependencies[0].Name != "conn" {
		t.Errorf("expected 'db' to depend on 'conn', got %+v", nf.Dependencies)
	}
}
