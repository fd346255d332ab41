package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileManagerOptions configures the node-local lock file.
type FileManagerOptions struct {
	Path      string
	NodeName  string
	RunID     string
	ProcessID int
	Clock     func() time.Time
}

// FileManager provides host-wide mutual exclusion through a lock file created
// with O_EXCL. The file's presence is the lock; its contents only describe the
// holder for operators.
type FileManager struct {
	path     string
	identity holder
	now      func() time.Time

	mu   sync.Mutex
	held *fileLease
}

type holder struct {
	Node       string `json:"node,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquired_at"`
}

// NewFileManager builds a FileManager for the provided lock path.
func NewFileManager(opts FileManagerOptions) (*FileManager, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("lock file path must not be empty")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("lock file path must be absolute: %s", opts.Path)
	}
	pid := opts.ProcessID
	if pid <= 0 {
		pid = os.Getpid()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &FileManager{
		path:     path,
		identity: holder{Node: opts.NodeName, RunID: opts.RunID, PID: pid},
		now:      clock,
	}, nil
}

// Path returns the lock file location.
func (m *FileManager) Path() string {
	return m.path
}

// Acquire creates the run directory if needed and then the lock file. An
// existing lock file yields ErrNotAcquired.
func (m *FileManager) Acquire(ctx context.Context) (Lease, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrNotAcquired
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	annotation := m.identity
	annotation.AcquiredAt = m.now().UTC().Format(time.RFC3339Nano)
	payload, _ := json.Marshal(annotation)
	_, writeErr := f.Write(append(payload, '\n'))
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(m.path)
		return nil, fmt.Errorf("annotate lock file: %w", err)
	}

	lease := &fileLease{path: m.path}
	m.mu.Lock()
	m.held = lease
	m.mu.Unlock()
	return lease, nil
}

// ReleaseHeld releases the lease acquired through this manager, if any. It is
// meant for emergency exit paths that cannot reach the lease itself.
func (m *FileManager) ReleaseHeld() error {
	m.mu.Lock()
	lease := m.held
	m.mu.Unlock()
	if lease == nil {
		return nil
	}
	return lease.Release(context.Background())
}

// Holder reports who currently holds the lock at path, for diagnostics.
func Holder(path string) (node string, pid int, acquiredAt time.Time, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, time.Time{}, err
	}
	var h holder
	if err := json.Unmarshal(data, &h); err != nil {
		return "", 0, time.Time{}, fmt.Errorf("decode lock file: %w", err)
	}
	at, _ := time.Parse(time.RFC3339Nano, h.AcquiredAt)
	return h.Node, h.PID, at, nil
}

type fileLease struct {
	path string

	mu       sync.Mutex
	released bool
}

// Release removes the lock file. Later calls are no-ops, so a lock created by
// a newer run is never removed by a stale lease.
func (l *fileLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	l.released = true
	return nil
}

var _ Manager = (*FileManager)(nil)
var _ Lease = (*fileLease)(nil)
