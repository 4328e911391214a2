// Package builtin implements the built-in fixtures spec §4.6 names:
// tmp_path, temp_path, temp_dir, tmpdir — all aliases for a per-test
// temporary directory, Function scope, created but never auto-removed.
package builtin

import (
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Names lists every alias spec §4.6 resolves to the same built-in.
var Names = []string{"tmp_path", "temp_path", "temp_dir", "tmpdir"}

// TmpDirFactory creates (with os.MkdirAll) a directory under base named
// after a sanitized qualified test name and returns its path; an existing
// directory of that name is reused. Value wraps such a path as the
// Starlark struct a test sees.
type TmpDirFactory struct {
	Base string
}

func NewTmpDirFactory(base string) *TmpDirFactory {
	return &TmpDirFactory{Base: base}
}

func (f *TmpDirFactory) Dir(testName string) (string, error) {
	if f.Base == "" {
		f.Base = os.TempDir()
	}
	dir := filepath.Join(f.Base, sanitize(testName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Value wraps a directory path as the Starlark value a test sees when it
// requests tmp_path (etc.) as a fixture argument.
func Value(dir string) starlark.Value {
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"path": starlark.String(dir),
	})
}
