// Package modpath maps filesystem paths to dotted module names relative to
// a project root.
package modpath

import (
	"path/filepath"
	"strings"
)

// Path pairs a filesystem path with its dotted module name.
type Path struct {
	Abs    string
	Dotted string
}

// Of computes the module path for abs relative to root. Dotted is empty
// when abs lies outside root.
func Of(root, abs string) Path {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		if rel == "." {
			return Path{Abs: abs, Dotted: moduleNameFromBase(abs)}
		}
		return Path{Abs: abs, Dotted: ""}
	}

	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	segments := strings.Split(rel, string(filepath.Separator))
	return Path{Abs: abs, Dotted: strings.Join(segments, ".")}
}

func moduleNameFromBase(abs string) string {
	base := filepath.Base(abs)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsConfig reports whether the module path names a configuration module.
func IsConfig(abs string) bool {
	return filepath.Base(abs) == "conftest.star"
}

// SourceExt is the only file extension the collector considers.
const SourceExt = ".star"
