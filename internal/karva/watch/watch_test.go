package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsStarFileModification(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "test_a.star")
	if err := os.WriteFile(target, []byte("def test_x():\n    return 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(target, []byte("def test_x():\n    return 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events:
		if ev.File != target {
			t.Errorf("Event.File = %q, want %q", ev.File, target)
		}
	case err := <-w.Errors:
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a .star file change event")
	}
}

func TestWatcherIgnoresNonStarFiles(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(target, []byte("updated"), 0o644); err != nil {
		t.Fatal(err)
	}
	// followed by a real .star change, which must still surface, proving
	// the .txt write above was silently filtered rather than queued.
	starFile := filepath.Join(root, "test_a.star")
	if err := os.WriteFile(starFile, []byte("def test_x():\n    return 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events:
		if ev.File != starFile {
			t.Errorf("expected the .star event, got %q (the .txt write should have been filtered)", ev.File)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the .star file change event")
	}
}

func TestWatcherSkipsDotDirectories(t *testing.T) {
	root := t.TempDir()
	dotDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(dotDir, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	hidden := filepath.Join(dotDir, "config.star")
	if err := os.WriteFile(hidden, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events:
		t.Errorf("expected no event from a dot-directory write, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// expected: nothing arrives, since .git was never watched
	}
}

func TestCloseStopsTheWatcher(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
