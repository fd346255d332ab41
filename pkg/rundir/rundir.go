// Package rundir owns the on-disk layout checknode keeps under its run
// directory: the lock marker, the run-state token, the booted marker and the
// journal cache.
package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State is the single-line token persisted in the state file.
type State string

const (
	StateRunning State = "running"
	StatePass    State = "pass"
	StateFail    State = "fail"
)

// Valid reports whether s is one of the known tokens.
func (s State) Valid() bool {
	switch s {
	case StateRunning, StatePass, StateFail:
		return true
	}
	return false
}

// Layout resolves the well-known paths beneath the run directory.
type Layout struct {
	root string
}

// New returns the layout rooted at dir.
func New(dir string) (Layout, error) {
	cleaned := strings.TrimSpace(dir)
	if cleaned == "" {
		return Layout{}, errors.New("run directory must not be empty")
	}
	if !filepath.IsAbs(cleaned) {
		return Layout{}, fmt.Errorf("run directory must be absolute: %s", dir)
	}
	return Layout{root: filepath.Clean(cleaned)}, nil
}

func (l Layout) Root() string { return l.root }
func (l Layout) LockPath() string { return filepath.Join(l.root, "lock") }
func (l Layout) StatePath() string { return filepath.Join(l.root, "state") }
func (l Layout) BootedPath() string { return filepath.Join(l.root, "booted") }
func (l Layout) JournalDir() string { return filepath.Join(l.root, "journalcache") }
func (l Layout) JournalPath() string { return filepath.Join(l.JournalDir(), "last-run.jsonl") }

// Prepare creates the run directory and journal cache. It is idempotent.
func (l Layout) Prepare() error {
	if err := os.MkdirAll(l.JournalDir(), 0o755); err != nil {
		return fmt.Errorf("create run directory %s: %w", l.root, err)
	}
	return nil
}

// SetState overwrites the state file with s. The token is written to a
// temporary file and renamed so readers never observe a partial value.
func (l Layout) SetState(s State) error {
	if !s.Valid() {
		return fmt.Errorf("invalid run state %q", s)
	}
	tmp, err := os.CreateTemp(l.root, ".state-*")
	if err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.WriteString(string(s) + "\n")
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmpName, l.StatePath()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run state: %w", err)
	}
	return nil
}

// ReadState returns the persisted state token.
func (l Layout) ReadState() (State, error) {
	data, err := os.ReadFile(l.StatePath())
	if err != nil {
		return "", err
	}
	s := State(strings.TrimSpace(string(data)))
	if !s.Valid() {
		return "", fmt.Errorf("unexpected run state %q", s)
	}
	return s, nil
}

// MarkBooted touches the booted marker.
func (l Layout) MarkBooted() error {
	f, err := os.OpenFile(l.BootedPath(), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("mark booted: %w", err)
	}
	return f.Close()
}

// Booted reports whether the booted marker exists.
func (l Layout) Booted() bool {
	_, err := os.Stat(l.BootedPath())
	return err == nil
}
