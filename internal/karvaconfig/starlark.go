package karvaconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.starlark.net/starlark"
)

// DefaultStarlarkTimeout bounds how long a karva.star config file's
// configure() may run before being cancelled, matching the teacher's
// sandboxing convention exactly.
const DefaultStarlarkTimeout = 5 * time.Second

var (
	ErrConfigureNotFound    = errors.New("karva.star must define a configure() function")
	ErrConfigureReturnType  = errors.New("configure() must return a dict")
)

// LoadStarlarkConfig execs path in a sandboxed thread (no filesystem or
// network access beyond reading this file itself) with a hard timeout,
// requiring a configure() function that returns a dict of settings.
func LoadStarlarkConfig(path string, timeout time.Duration) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	thread := &starlark.Thread{Name: "karva.star"}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("config load timed out")
		case <-done:
		}
	}()

	globals, err := starlark.ExecFile(thread, path, src, configPredeclared())
	if err != nil {
		return Config{}, err
	}

	configureVal, ok := globals["configure"]
	if !ok {
		return Config{}, ErrConfigureNotFound
	}
	configure, ok := configureVal.(starlark.Callable)
	if !ok {
		return Config{}, ErrConfigureNotFound
	}

	result, err := starlark.Call(thread, configure, nil, nil)
	if err != nil {
		return Config{}, err
	}
	dict, ok := result.(*starlark.Dict)
	if !ok {
		return Config{}, ErrConfigureReturnType
	}

	return dictToConfig(dict)
}

// configPredeclared exposes a small, deliberately inert set of builtins —
// no filesystem or network access — matching the teacher's own sandboxing
// stance for config evaluation.
func configPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"getenv": starlark.NewBuiltin("getenv", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackArgs("getenv", args, kwargs, "name", &name); err != nil {
				return nil, err
			}
			return starlark.String(os.Getenv(name)), nil
		}),
		"host_os": starlark.String(runtime.GOOS),
		"num_cpu": starlark.MakeInt(runtime.NumCPU()),
	}
}

func dictToConfig(d *starlark.Dict) (Config, error) {
	cfg := DefaultConfig()
	if v, found, _ := d.Get(starlark.String("num_workers")); found {
		cfg.Karva.NumWorkers = stringOf(v)
	}
	if v, found, _ := d.Get(starlark.String("test_prefix")); found {
		cfg.Karva.TestPrefix = stringOf(v)
	}
	if v, found, _ := d.Get(starlark.String("fail_fast")); found {
		cfg.Karva.FailFast = boolOf(v)
	}
	if v, found, _ := d.Get(starlark.String("respect_ignore_files")); found {
		cfg.Karva.RespectIgnoreFiles = boolOf(v)
	}
	if v, found, _ := d.Get(starlark.String("show_output")); found {
		cfg.Karva.ShowOutput = boolOf(v)
	}
	if v, found, _ := d.Get(starlark.String("output_format")); found {
		cfg.Karva.OutputFormat = stringOf(v)
	}
	return cfg, nil
}

func stringOf(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	return fmt.Sprint(v)
}

func boolOf(v starlark.Value) bool {
	b, ok := v.(starlark.Bool)
	return ok && bool(b)
}
