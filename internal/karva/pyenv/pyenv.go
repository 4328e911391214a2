// Package pyenv wraps acquisition/release of the embedded interpreter's
// thread state and stdout/stderr redirection in a scoped-acquisition
// helper, so teardown runs on every exit path including panics — per
// spec §9's "Global interpreter" note.
package pyenv

import (
	"fmt"
	"io"
	"os"

	"go.starlark.net/starlark"
)

// Scope owns one *starlark.Thread plus the interpreter-local print sink
// used in place of process-wide stdout/stderr redirection (the redirect is
// interpreter-local per spec §5, not the worker's own telemetry stdio).
type Scope struct {
	Thread *starlark.Thread
	sink   io.Writer
}

// Acquire builds a fresh thread for one worker/test run. showOutput
// controls whether user `print()` calls reach the worker's real stdout or
// a discarded sink, per spec §5's stdout/stderr redirection rule.
func Acquire(name string, showOutput bool, stdout io.Writer) *Scope {
	s := &Scope{sink: io.Discard}
	if showOutput {
		s.sink = stdout
	}
	s.Thread = &starlark.Thread{
		Name:  name,
		Print: func(thread *starlark.Thread, msg string) { fmt.Fprintln(s.sink, msg) },
	}
	return s
}

// Run calls fn with the scope's thread, guaranteeing release runs even if
// fn panics — the scoped-acquisition helper spec §9 asks for.
func (s *Scope) Run(fn func(thread *starlark.Thread) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during scoped interpreter run: %v", r)
		}
	}()
	return fn(s.Thread)
}

// DefaultStdout is os.Stdout, kept as a seam so workers can redirect their
// own process stdio independently of interpreter-local redirection.
var DefaultStdout io.Writer = os.Stdout
