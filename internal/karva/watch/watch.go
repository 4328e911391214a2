// Package watch implements --watch mode: watch every directory under a
// root for Starlark file changes and signal a re-run, adapted from the
// teacher's internal/starlark/tester.Watcher — simplified to whole-tree
// re-run rather than per-file dependency-affected tracking, since
// SPEC_FULL's fixture/conftest graph makes "affected tests" an
// open-ended static-analysis problem the runner doesn't otherwise need.
package watch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Event reports a Starlark source file change.
type Event struct {
	File string
	Op   fsnotify.Op
}

// Watcher recursively watches rootDir for *.star changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	Events    chan Event
	Errors    chan error
	done      chan struct{}
}

// New creates a Watcher rooted at rootDir, adding every directory
// (fsnotify watches directories, not trees) up front.
func New(rootDir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != rootDir {
				return filepath.SkipDir
			}
			return fsWatcher.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		Events:    make(chan Event, 100),
		Errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".star") {
				continue
			}
			w.Events <- Event{File: event.Name, Op: event.Op}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
