package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olcf/frontier-checknode/pkg/probe"
)

// ProbeRunner captures the probe execution contract.
type ProbeRunner interface {
	Run(ctx context.Context, path string) probe.Result
}

// Report is the ordered set of results for one pass, in sorted probe-name order.
type Report struct {
	Results  []probe.Result
	Duration time.Duration
	DryRun   bool
	// Planned lists every discovered probe, including those not executed in dry-run mode.
	Planned []string
}

// Failures returns the failing results, preserving report order.
func (r Report) Failures() []probe.Result {
	failed := make([]probe.Result, 0)
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Observer receives per-probe notifications as the suite progresses.
type Observer interface {
	ProbeSkipped(name, reason string)
	ProbeStarting(name, path string, dryRun bool)
	ProbeFinished(probe.Result)
}

// Driver discovers probes in a directory and runs them one at a time.
type Driver struct {
	dir      string
	runner   ProbeRunner
	dryRun   bool
	observer Observer
	readDir  func(string) ([]os.DirEntry, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithDryRun makes Run announce probes without executing them.
func WithDryRun(enabled bool) Option {
	return func(d *Driver) {
		d.dryRun = enabled
	}
}

// WithObserver attaches progress callbacks.
func WithObserver(obs Observer) Option {
	return func(d *Driver) {
		if obs != nil {
			d.observer = obs
		}
	}
}

// NewDriver constructs a Driver for the probe directory.
func NewDriver(dir string, runner ProbeRunner, opts ...Option) (*Driver, error) {
	cleaned := strings.TrimSpace(dir)
	if cleaned == "" {
		return nil, errors.New("probe directory must not be empty")
	}
	if runner == nil {
		return nil, errors.New("probe runner must not be nil")
	}
	d := &Driver{
		dir:      cleaned,
		runner:   runner,
		observer: noopObserver{},
		readDir:  os.ReadDir,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Discover lists the probe directory, sorted by name. Directories are skipped.
func (d *Driver) Discover() ([]string, error) {
	entries, err := d.readDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list probe directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			d.observer.ProbeSkipped(entry.Name(), "directory")
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Run executes every discovered probe serially. A failing or timed out probe
// never stops the suite; only cancellation of ctx does, in which case the
// partial report is returned together with ctx's error.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	names, err := d.Discover()
	if err != nil {
		return Report{}, err
	}

	start := time.Now()
	report := Report{
		Results: make([]probe.Result, 0, len(names)),
		DryRun:  d.dryRun,
		Planned: names,
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		path := filepath.Join(d.dir, name)
		d.observer.ProbeStarting(name, path, d.dryRun)
		if d.dryRun {
			continue
		}

		res := d.runner.Run(ctx, path)
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		report.Results = append(report.Results, res)
		d.observer.ProbeFinished(res)
	}

	report.Duration = time.Since(start)
	return report, nil
}

type noopObserver struct{}

func (noopObserver) ProbeSkipped(string, string) {}
func (noopObserver) ProbeStarting(string, string, bool) {}
func (noopObserver) ProbeFinished(probe.Result) {}
