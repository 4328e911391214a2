package fixture

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/discover"
	"github.com/albertocavalcante/karva/internal/karva/runtime"
)

// Request is the `request` fixture argument: a generator fixture takes it
// and calls request.add_finalizer(fn) before returning its value, standing
// in for Python's yield-based teardown suspension (SPEC_FULL §0.2). When
// the fixture is parametrized (fixture(params=[...])), Param carries the
// current parameter value, read via request.param per pytest convention.
type Request struct {
	fixtureName string
	scope       discover.Scope
	finalizers  *runtime.FinalizerCache
	Param       starlark.Value
}

var _ starlark.Value = (*Request)(nil)
var _ starlark.HasAttrs = (*Request)(nil)

func NewRequest(fixtureName string, scope discover.Scope, fc *runtime.FinalizerCache) *Request {
	return &Request{fixtureName: fixtureName, scope: scope, finalizers: fc}
}

func (r *Request) String() string        { return fmt.Sprintf("<request for %s>", r.fixtureName) }
func (r *Request) Type() string          { return "request" }
func (r *Request) Freeze()               {}
func (r *Request) Truth() starlark.Bool  { return starlark.True }
func (r *Request) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: request") }

func (r *Request) Attr(name string) (starlark.Value, error) {
	if name == "param" {
		if r.Param == nil {
			return starlark.None, nil
		}
		return r.Param, nil
	}
	if name != "add_finalizer" {
		return nil, nil
	}
	return starlark.NewBuiltin("add_finalizer", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var fn starlark.Callable
		if err := starlark.UnpackArgs("add_finalizer", args, kwargs, "fn", &fn); err != nil {
			return nil, err
		}
		r.finalizers.Add(runtime.Finalizer{
			Fn: func() error {
				_, err := starlark.Call(thread, fn, nil, nil)
				return err
			},
			Scope:       r.scope,
			FixtureName: r.fixtureName,
		})
		return starlark.None, nil
	}), nil
}

func (r *Request) AttrNames() []string { return []string{"add_finalizer", "param"} }
