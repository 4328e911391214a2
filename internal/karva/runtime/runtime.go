// Package runtime implements the scoped fixture value cache and finalizer
// stack the runner drives, grounded on karva_core's fixture_cache.rs and
// finalizer_cache.rs.
package runtime

import (
	"go.starlark.net/starlark"

	"github.com/albertocavalcante/karva/internal/karva/discover"
)

// Finalizer is a closure registered via request.add_finalizer, to be run at
// scope exit. This replaces the suspended-generator handle spec.md
// describes: Starlark functions cannot suspend, so teardown is plain
// function-call deferral instead (see SPEC_FULL §0.2).
type Finalizer struct {
	Fn          func() error
	Scope       discover.Scope
	FixtureName string
	Def         interface{} // untyped slot for the fixture's definition; request.add_finalizer leaves it nil
}

// FixtureCache is a per-scope map from fixture name (including any
// parametrization suffix) to its computed value.
type FixtureCache struct {
	values [4]map[string]starlark.Value
}

// NewFixtureCache constructs an empty cache for all four scopes.
func NewFixtureCache() *FixtureCache {
	c := &FixtureCache{}
	for i := range c.values {
		c.values[i] = make(map[string]starlark.Value)
	}
	return c
}

func (c *FixtureCache) Get(scope discover.Scope, name string) (starlark.Value, bool) {
	v, ok := c.values[scope][name]
	return v, ok
}

func (c *FixtureCache) Set(scope discover.Scope, name string, v starlark.Value) {
	c.values[scope][name] = v
}

// ClearScope drops every cached value at scope.
func (c *FixtureCache) ClearScope(scope discover.Scope) {
	c.values[scope] = make(map[string]starlark.Value)
}

// FinalizerCache is a per-scope LIFO stack of registered finalizers.
type FinalizerCache struct {
	stacks [4][]Finalizer
}

// NewFinalizerCache constructs an empty finalizer cache for all four scopes.
func NewFinalizerCache() *FinalizerCache {
	return &FinalizerCache{}
}

// Add pushes a finalizer onto its scope's stack, in registration order —
// the same order a generator's yield points would have occurred in, which
// is exactly what LIFO teardown needs.
func (c *FinalizerCache) Add(f Finalizer) {
	c.stacks[f.Scope] = append(c.stacks[f.Scope], f)
}

// FinalizerError pairs a failing finalizer with its error, for the runner
// to turn into a warning-level diagnostic.
type FinalizerError struct {
	Finalizer Finalizer
	Err       error
}

// RunAndClearScope drains scope's finalizer stack in strict LIFO order,
// calling each closure exactly once, and clears the stack. Any error
// returned by a finalizer is collected (not raised) and returned to the
// caller to render as a diagnostic — mirroring karva's policy that a
// misbehaving finalizer produces a diagnostic, not a crash.
func (c *FinalizerCache) RunAndClearScope(scope discover.Scope) []FinalizerError {
	stack := c.stacks[scope]
	c.stacks[scope] = nil

	var errs []FinalizerError
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		if err := f.Fn(); err != nil {
			errs = append(errs, FinalizerError{Finalizer: f, Err: err})
		}
	}
	return errs
}
