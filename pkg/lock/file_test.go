package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileManager(t *testing.T, path string) *FileManager {
	t.Helper()
	m, err := NewFileManager(FileManagerOptions{
		Path:      path,
		NodeName:  "frontier00001",
		RunID:     "run-1",
		ProcessID: 4242,
		Clock:     func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestFileManagerAcquireCreatesDirectoryAndLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "checknode", "lock")
	m := newTestFileManager(t, path)

	lease, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	node, pid, at, err := Holder(path)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if node != "frontier00001" || pid != 4242 || at.Unix() != 1700000000 {
		t.Fatalf("unexpected holder node=%s pid=%d at=%s", node, pid, at)
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected lock file removed, got %v", err)
	}
}

func TestFileManagerSecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	first := newTestFileManager(t, path)
	second := newTestFileManager(t, path)

	lease, err := first.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer lease.Release(context.Background())

	if _, err := second.Acquire(context.Background()); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}

func TestFileLeaseReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	m := newTestFileManager(t, path)

	lease, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("first release: %v", err)
	}

	// A newer run takes the lock; the stale lease must not remove it.
	other := newTestFileManager(t, path)
	if _, err := other.Acquire(context.Background()); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected newer lock to survive stale release: %v", err)
	}
}

func TestFileManagerReleaseHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	m := newTestFileManager(t, path)
	if err := m.ReleaseHeld(); err != nil {
		t.Fatalf("release without lease: %v", err)
	}
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.ReleaseHeld(); err != nil {
		t.Fatalf("release held: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected lock file removed, got %v", err)
	}
}

func TestFileManagerReportsUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	m := newTestFileManager(t, filepath.Join(dir, "lock"))
	_, err := m.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected error for unwritable directory")
	}
	if errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected IO error, not contention: %v", err)
	}
}

func TestNewFileManagerRejectsRelativePath(t *testing.T) {
	if _, err := NewFileManager(FileManagerOptions{Path: "lock"}); err == nil {
		t.Fatal("expected error for relative path")
	}
}
