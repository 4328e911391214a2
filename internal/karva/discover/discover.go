// Package discover defines the tree of packages, modules, fixtures and test
// functions produced by collection.
package discover

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/albertocavalcante/karva/internal/karva/modpath"
	"github.com/albertocavalcante/karva/internal/karva/tag"
)

// Scope is a fixture's cache lifetime.
type Scope int

const (
	ScopeFunction Scope = iota
	ScopeModule
	ScopePackage
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeModule:
		return "module"
	case ScopePackage:
		return "package"
	case ScopeSession:
		return "session"
	default:
		return "unknown"
	}
}

// ParseScope validates a scope string from fixture(scope="...").
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "", "function":
		return ScopeFunction, true
	case "module":
		return ScopeModule, true
	case "package":
		return ScopePackage, true
	case "session":
		return ScopeSession, true
	default:
		return 0, false
	}
}

// ModuleKind distinguishes a conftest module from an ordinary test module.
type ModuleKind int

const (
	KindTest ModuleKind = iota
	KindConfig
)

// Fixture is a discovered fixture function definition.
type Fixture struct {
	Name       string
	Scope      Scope
	AutoUse    bool
	Params     []starlark.Value
	Fn         *starlark.Function
	Def        *syntax.DefStmt
	IsGenerator bool // carries a `request` parameter (§0.2)
	ModulePath modpath.Path
}

// TestFunction is a discovered test function definition (pre-normalization).
type TestFunction struct {
	Name       string
	Tags       tag.Tags
	Fn         *starlark.Function
	Def        *syntax.DefStmt
	ModulePath modpath.Path
}

// Module is one parsed source file.
type Module struct {
	Path      modpath.Path
	Kind      ModuleKind
	Source    []byte
	ParseErr  error // non-nil if this module failed to parse
	Tests     []*TestFunction
	Fixtures  []*Fixture
	Globals   starlark.StringDict
}

// Package is a tree node: a directory containing modules and sub-packages,
// with an optional conftest module. Invariant: every child's path has this
// package's path as a proper prefix — enforced at insertion, never via a
// back-pointer (spec §9: "avoid owning parent references on package
// nodes").
type Package struct {
	Path     string
	Conftest *Module
	Modules  map[string]*Module
	Packages map[string]*Package
}

// NewPackage constructs an empty package rooted at path.
func NewPackage(path string) *Package {
	return &Package{
		Path:     path,
		Modules:  make(map[string]*Module),
		Packages: make(map[string]*Package),
	}
}

// Empty reports whether the package has no tests, fixtures, or non-empty
// children — used by the shrink pass.
func (p *Package) Empty() bool {
	if p.Conftest != nil && len(p.Conftest.Fixtures) > 0 {
		return false
	}
	for _, m := range p.Modules {
		if len(m.Tests) > 0 || len(m.Fixtures) > 0 {
			return false
		}
	}
	return len(p.Modules) == 0 && len(p.Packages) == 0
}

// Shrink removes modules with zero tests and zero fixtures, removes
// packages that become empty, and nulls a dangling conftest reference.
func (p *Package) Shrink() {
	for path, sub := range p.Packages {
		sub.Shrink()
		if sub.Empty() {
			delete(p.Packages, path)
		}
	}
	for path, m := range p.Modules {
		if m.Kind == KindTest && len(m.Tests) == 0 && len(m.Fixtures) == 0 {
			delete(p.Modules, path)
		}
	}
	if p.Conftest != nil && len(p.Conftest.Fixtures) == 0 {
		p.Conftest = nil
	}
}
