package tag

import (
	"errors"
	"testing"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"tags":    Module(),
		"fixture": FixtureBuiltin(),
		"skip":    SkipBuiltin(),
		"fail":    FailBuiltin(),
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

func exec(t *testing.T, src string) starlark.StringDict {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	globals, err := starlark.ExecFile(thread, "test.star", src, predeclared())
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	return globals
}

func TestParametrizeWrapsFunction(t *testing.T) {
	src := `
def test_x(n):
    return n

test_x = tags.parametrize("n", [1, 2, 3])(test_x)
`
	globals := exec(t, src)
	tagged, ok := globals["test_x"].(*Tagged)
	if !ok {
		t.Fatalf("test_x is %T, want *Tagged", globals["test_x"])
	}
	if !tagged.Tags.Parametrized() {
		t.Fatal("expected Parametrized() true")
	}
	if len(tagged.Tags[0].Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(tagged.Tags[0].Rows))
	}
}

func TestStackedTagsAccumulateOnSameWrapper(t *testing.T) {
	src := `
def test_x():
    return 1

test_x = tags.skip("wip")(test_x)
test_x = tags.expect_fail("known bug")(test_x)
`
	globals := exec(t, src)
	tagged, ok := globals["test_x"].(*Tagged)
	if !ok {
		t.Fatalf("test_x is %T, want *Tagged", globals["test_x"])
	}
	if len(tagged.Tags) != 2 {
		t.Fatalf("expected 2 stacked tags, got %d", len(tagged.Tags))
	}
	if tagged.Tags[0].Kind != Skip || tagged.Tags[1].Kind != ExpectFail {
		t.Errorf("unexpected tag kinds: %+v", tagged.Tags)
	}
}

func TestFixtureBareForm(t *testing.T) {
	src := `
def db():
    return 1

db = fixture(db)
`
	globals := exec(t, src)
	marker, ok := globals["db"].(*FixtureMarker)
	if !ok {
		t.Fatalf("db is %T, want *FixtureMarker", globals["db"])
	}
	if marker.Scope != "function" || marker.AutoUse {
		t.Errorf("unexpected defaults: %+v", marker)
	}
}

func TestFixtureWithOptions(t *testing.T) {
	src := `
def db():
    return 1

db = fixture(scope="session", autouse=True, name="database")(db)
`
	globals := exec(t, src)
	marker, ok := globals["db"].(*FixtureMarker)
	if !ok {
		t.Fatalf("db is %T, want *FixtureMarker", globals["db"])
	}
	if marker.Scope != "session" || !marker.AutoUse || marker.NameOverride != "database" {
		t.Errorf("unexpected marker: %+v", marker)
	}
	if marker.Name() != "database" {
		t.Errorf("Name() = %q, want database", marker.Name())
	}
}

func TestSkipBuiltinReturnsErrSkip(t *testing.T) {
	src := `
def test_x():
    skip("not ready")
`
	globals := exec(t, src)
	fn := globals["test_x"].(*starlark.Function)
	thread := &starlark.Thread{Name: "test"}
	_, err := starlark.Call(thread, fn, nil, nil)
	if err == nil {
		t.Fatal("expected an error from skip()")
	}
	var evalErr *starlark.EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected *starlark.EvalError wrapping, got %T: %v", err, err)
	}
	var skipErr *ErrSkip
	if !errors.As(err, &skipErr) {
		t.Fatalf("expected errors.As to find *ErrSkip in %v", err)
	}
	if skipErr.Reason != "not ready" {
		t.Errorf("Reason = %q, want %q", skipErr.Reason, "not ready")
	}
}

func TestFailBuiltinReturnsErrFail(t *testing.T) {
	src := `
def test_x():
    fail("deliberate")
`
	globals := exec(t, src)
	fn := globals["test_x"].(*starlark.Function)
	thread := &starlark.Thread{Name: "test"}
	_, err := starlark.Call(thread, fn, nil, nil)
	var failErr *ErrFail
	if !errors.As(err, &failErr) {
		t.Fatalf("expected errors.As to find *ErrFail in %v", err)
	}
	if failErr.Reason != "deliberate" {
		t.Errorf("Reason = %q, want %q", failErr.Reason, "deliberate")
	}
}

func TestWrapRejectsNonFunction(t *testing.T) {
	_, err := Wrap(starlark.String("not a function"), Tag{Kind: Skip})
	if err == nil {
		t.Fatal("expected an error wrapping a non-function value")
	}
}
