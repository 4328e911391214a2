// Package tag implements the decorator-free tag taxonomy that test and
// fixture functions carry: parametrize, skip, skipif, use_fixtures,
// expect_fail and fixture scope/autouse/name configuration.
//
// Starlark has no decorator syntax, so `@tags.parametrize(...)` over a def
// is written as a plain call below the def: `f = tags.parametrize(...)(f)`.
// Each tag builtin below returns a decorator builtin; calling it on a
// bare *starlark.Function wraps it into a *Tagged value, and calling it on
// an already-*Tagged value extends that value's tag set.
package tag

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Kind enumerates the tags a function may carry.
type Kind int

const (
	Parametrize Kind = iota
	Skip
	SkipIf
	UseFixtures
	ExpectFail
	Custom
)

// Tag is one entry in a function's tag multiset.
type Tag struct {
	Kind Kind

	// Parametrize
	ParamNames []string
	Rows       [][]starlark.Value

	// Skip / SkipIf / ExpectFail
	Reason    string
	Condition starlark.Value // nil for Skip/ExpectFail, set for SkipIf

	// UseFixtures
	FixtureNames []string

	// Custom
	Name string
	Args starlark.Tuple
}

// Tags is an ordered multiset of Tag values attached to a function.
type Tags []Tag

// Parametrized reports whether the tag set carries at least one
// Parametrize tag.
func (t Tags) Parametrized() bool {
	for _, tg := range t {
		if tg.Kind == Parametrize {
			return true
		}
	}
	return false
}

// Tagged wraps a Starlark function together with the tags accumulated by
// calling tag wrappers over it (the decorator-call-chain substitute).
type Tagged struct {
	Fn   *starlark.Function
	Tags Tags
}

var _ starlark.Callable = (*Tagged)(nil)
var _ starlark.Value = (*Tagged)(nil)

func (t *Tagged) String() string        { return fmt.Sprintf("<tagged %s>", t.Fn.Name()) }
func (t *Tagged) Type() string          { return "tagged_function" }
func (t *Tagged) Freeze()               { t.Fn.Freeze() }
func (t *Tagged) Truth() starlark.Bool  { return starlark.True }
func (t *Tagged) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: tagged_function") }
func (t *Tagged) Name() string          { return t.Fn.Name() }

func (t *Tagged) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.Call(thread, t.Fn, args, kwargs)
}

// Wrap applies one Tag on top of v, which is either a bare *starlark.Function
// or an already-*Tagged value, returning the resulting *Tagged value. This is
// the operation every tag-wrapper builtin performs when called on a function.
func Wrap(v starlark.Value, t Tag) (*Tagged, error) {
	switch fn := v.(type) {
	case *starlark.Function:
		return &Tagged{Fn: fn, Tags: Tags{t}}, nil
	case *Tagged:
		fn.Tags = append(fn.Tags, t)
		return fn, nil
	default:
		return nil, fmt.Errorf("tag wrapper applied to non-function value %s", v.Type())
	}
}

// ErrSkip is returned by the skip() builtin to abort a running test. The
// runner classifies it the way spec describes classifying a framework skip
// exception or pytest's Skipped.
type ErrSkip struct {
	Reason string
}

func (e *ErrSkip) Error() string {
	if e.Reason == "" {
		return "test skipped"
	}
	return "test skipped: " + e.Reason
}

// ErrFail is raised by the fail() builtin, a deliberate test failure
// distinct from an assertion error, mirroring karva's FailError.
type ErrFail struct {
	Reason string
}

func (e *ErrFail) Error() string { return e.Reason }

// wrapperBuiltin builds a starlark.Callable that, when called with the
// wrapper's configured Tag, returns a second callable (the actual
// decorator) which applies that Tag to its single function argument.
func wrapperBuiltin(name string, build func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		t, err := build(args, kwargs)
		if err != nil {
			return nil, err
		}
		applied := t
		return starlark.NewBuiltin(name+"_decorator", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) != 1 || len(kwargs) != 0 {
				return nil, fmt.Errorf("%s decorator takes exactly one function argument", name)
			}
			return Wrap(args[0], applied)
		}), nil
	})
}

func parametrizeBuiltin() *starlark.Builtin {
	return wrapperBuiltin("parametrize", func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error) {
		if len(args) != 2 {
			return Tag{}, fmt.Errorf("parametrize() takes exactly 2 positional arguments (names, rows)")
		}
		names, err := paramNames(args[0])
		if err != nil {
			return Tag{}, err
		}
		rows, err := paramRows(args[1], len(names))
		if err != nil {
			return Tag{}, err
		}
		return Tag{Kind: Parametrize, ParamNames: names, Rows: rows}, nil
	})
}

func paramNames(v starlark.Value) ([]string, error) {
	if s, ok := v.(starlark.String); ok {
		return []string{string(s)}, nil
	}
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("parametrize() names must be a string or iterable of strings")
	}
	defer iter.Done()
	var names []string
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := x.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("parametrize() names must be strings")
		}
		names = append(names, string(s))
	}
	return names, nil
}

func paramRows(v starlark.Value, arity int) ([][]starlark.Value, error) {
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("parametrize() rows must be iterable")
	}
	defer iter.Done()
	var rows [][]starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		if arity == 1 {
			rows = append(rows, []starlark.Value{x})
			continue
		}
		rowIter := starlark.Iterate(x)
		if rowIter == nil {
			return nil, fmt.Errorf("parametrize() row must be iterable when arity > 1")
		}
		var row []starlark.Value
		var y starlark.Value
		for rowIter.Next(&y) {
			row = append(row, y)
		}
		rowIter.Done()
		if len(row) != arity {
			return nil, fmt.Errorf("parametrize() row has %d values, want %d", len(row), arity)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func skipBuiltin() *starlark.Builtin {
	return wrapperBuiltin("skip", func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error) {
		var reason starlark.String
		if err := starlark.UnpackArgs("skip", args, kwargs, "reason?", &reason); err != nil {
			return Tag{}, err
		}
		return Tag{Kind: Skip, Reason: string(reason)}, nil
	})
}

func skipIfBuiltin() *starlark.Builtin {
	return wrapperBuiltin("skipif", func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error) {
		var cond starlark.Value
		var reason starlark.String
		if err := starlark.UnpackArgs("skipif", args, kwargs, "condition", &cond, "reason?", &reason); err != nil {
			return Tag{}, err
		}
		return Tag{Kind: SkipIf, Condition: cond, Reason: string(reason)}, nil
	})
}

func useFixturesBuiltin() *starlark.Builtin {
	return wrapperBuiltin("use_fixtures", func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error) {
		names := make([]string, 0, len(args))
		for _, a := range args {
			s, ok := a.(starlark.String)
			if !ok {
				return Tag{}, fmt.Errorf("use_fixtures() arguments must be strings")
			}
			names = append(names, string(s))
		}
		return Tag{Kind: UseFixtures, FixtureNames: names}, nil
	})
}

func expectFailBuiltin() *starlark.Builtin {
	return wrapperBuiltin("expect_fail", func(args starlark.Tuple, kwargs []starlark.Tuple) (Tag, error) {
		var reason starlark.String
		if err := starlark.UnpackArgs("expect_fail", args, kwargs, "reason?", &reason); err != nil {
			return Tag{}, err
		}
		return Tag{Kind: ExpectFail, Reason: string(reason)}, nil
	})
}

// Module returns the `tags` Starlark module object predeclared into every
// test/conftest file's global namespace.
func Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "tags",
		Members: starlark.StringDict{
			"parametrize":  parametrizeBuiltin(),
			"skip":         skipBuiltin(),
			"skipif":       skipIfBuiltin(),
			"use_fixtures": useFixturesBuiltin(),
			"expect_fail":  expectFailBuiltin(),
		},
	}
}

// SkipBuiltin exposes skip(reason) as a callable a test body can invoke to
// abort itself early, the nearest Starlark-native analogue to raising a
// skip exception.
func SkipBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("skip", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var reason starlark.String
		if err := starlark.UnpackArgs("skip", args, kwargs, "reason?", &reason); err != nil {
			return nil, err
		}
		return nil, &ErrSkip{Reason: string(reason)}
	})
}

// FailBuiltin exposes fail(reason) for an explicit test failure.
func FailBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("fail", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var reason starlark.String
		if err := starlark.UnpackArgs("fail", args, kwargs, "reason?", &reason); err != nil {
			return nil, err
		}
		return nil, &ErrFail{Reason: string(reason)}
	})
}

// FixtureMarker wraps a function marked with the fixture() wrapper,
// carrying scope/autouse/name options. Playing the role spec.md assigns to
// "any decorator resolving to a fixture marker" (§4.1), reached here by
// running the decorator-equivalent call instead of parsing its AST shape.
type FixtureMarker struct {
	Fn      *starlark.Function
	Scope   string // "function" (default), "module", "package", "session"
	AutoUse bool
	NameOverride string // overrides Fn.Name() when non-empty
	Params  []starlark.Value
}

var _ starlark.Value = (*FixtureMarker)(nil)
var _ starlark.Callable = (*FixtureMarker)(nil)

func (f *FixtureMarker) String() string        { return fmt.Sprintf("<fixture %s>", f.Fn.Name()) }
func (f *FixtureMarker) Type() string          { return "fixture_function" }
func (f *FixtureMarker) Freeze()               { f.Fn.Freeze() }
func (f *FixtureMarker) Truth() starlark.Bool  { return starlark.True }
func (f *FixtureMarker) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: fixture_function") }
func (f *FixtureMarker) Name() string {
	if f.NameOverride != "" {
		return f.NameOverride
	}
	return f.Fn.Name()
}

func (f *FixtureMarker) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.Call(thread, f.Fn, args, kwargs)
}

// FixtureBuiltin exposes fixture(scope=, autouse=, name=, params=) — called
// bare (`fixture(f)` via `f = fixture(f)`) or with options
// (`f = fixture(scope="module")(f)`), matching both `@fixture` and
// `@fixture(...)` decorator shapes from spec.md §4.1.
func FixtureBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("fixture", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		// Bare form: fixture(some_function)
		if len(args) == 1 && len(kwargs) == 0 {
			if fn, ok := args[0].(*starlark.Function); ok {
				return &FixtureMarker{Fn: fn, Scope: "function"}, nil
			}
		}

		var scope starlark.String = "function"
		var autouse starlark.Bool
		var name starlark.String
		var params starlark.Value
		if err := starlark.UnpackArgs("fixture", args, kwargs,
			"scope?", &scope, "autouse?", &autouse, "name?", &name, "params?", &params); err != nil {
			return nil, err
		}

		var paramValues []starlark.Value
		if params != nil {
			iter := starlark.Iterate(params)
			if iter == nil {
				return nil, fmt.Errorf("fixture() params must be iterable")
			}
			defer iter.Done()
			var x starlark.Value
			for iter.Next(&x) {
				paramValues = append(paramValues, x)
			}
		}

		return starlark.NewBuiltin("fixture_decorator", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) != 1 || len(kwargs) != 0 {
				return nil, fmt.Errorf("fixture decorator takes exactly one function argument")
			}
			fn, ok := args[0].(*starlark.Function)
			if !ok {
				return nil, fmt.Errorf("fixture decorator applied to non-function value %s", args[0].Type())
			}
			return &FixtureMarker{
				Fn:      fn,
				Scope:   string(scope),
				AutoUse: bool(autouse),
				NameOverride: string(name),
				Params:  paramValues,
			}, nil
		}), nil
	})
}
