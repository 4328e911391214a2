package diagnostic

import (
	"testing"
)

func TestCleanTraceback(t *testing.T) {
	raw := "Traceback (most recent call last):\n  File \"test.star\", line 3, in test_x\n    assert.eq(1, 2)\n    ^^^^^^^^^^^^^^^\n"
	got := CleanTraceback(raw)
	want := "File \"test.star\", line 3, in test_x\n  assert.eq(1, 2)"
	if got != want {
		t.Errorf("CleanTraceback =\n%q\nwant\n%q", got, want)
	}
}

func TestExtractLocation(t *testing.T) {
	raw := `Traceback (most recent call last):
  File "conftest.star", line 10, in <toplevel>
  File "test_foo.star", line 3, in test_x
    fail("boom")`
	loc, ok := ExtractLocation(raw)
	if !ok {
		t.Fatal("expected a location")
	}
	if loc.Path != "conftest.star" || loc.Line != 10 {
		t.Errorf("ExtractLocation = %+v, want conftest.star:10", loc)
	}
}

func TestExtractLocationSingleFrame(t *testing.T) {
	raw := `File "test_foo.star", line 5, in test_x`
	loc, ok := ExtractLocation(raw)
	if !ok {
		t.Fatal("expected a location")
	}
	if loc.Path != "test_foo.star" || loc.Line != 5 {
		t.Errorf("ExtractLocation = %+v, want test_foo.star:5", loc)
	}
}

func TestSortByLocation(t *testing.T) {
	ds := []Diagnostic{
		{Location: Location{Path: "b.star", Line: 1}},
		{Location: Location{Path: "a.star", Line: 5}},
		{Location: Location{Path: "a.star", Line: 2}},
	}
	SortByLocation(ds)
	want := []string{"a.star:2", "a.star:5", "b.star:1"}
	for i, w := range want {
		if got := ds[i].Location.String(); got != w {
			t.Errorf("ds[%d] = %q, want %q", i, got, w)
		}
	}
}

func TestRepairMissingFixtures(t *testing.T) {
	d := &Diagnostic{MissingFixtures: []string{"db", "tmp_path", "client"}}
	RepairMissingFixtures(d, `test_x() missing 2 required positional arguments: 'db' and 'client'`)
	if len(d.MissingFixtures) != 2 || d.MissingFixtures[0] != "db" || d.MissingFixtures[1] != "client" {
		t.Errorf("MissingFixtures = %v, want [db client]", d.MissingFixtures)
	}
}

func TestRepairMissingFixturesNoMatch(t *testing.T) {
	d := &Diagnostic{MissingFixtures: []string{"db"}}
	RepairMissingFixtures(d, "some unrelated error")
	if len(d.MissingFixtures) != 1 || d.MissingFixtures[0] != "db" {
		t.Errorf("MissingFixtures changed unexpectedly: %v", d.MissingFixtures)
	}
}
