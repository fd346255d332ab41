// Package boot decides whether the host has finished booting before probes run.
package boot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olcf/frontier-checknode/pkg/command"
)

// DefaultReadyPrefix is what `systemctl list-jobs` prints once the boot
// transaction has drained.
const DefaultReadyPrefix = "No jobs running"

// Marker records that the host completed booting.
type Marker interface {
	MarkBooted() error
}

// Gate runs the boot check command and touches the booted marker.
type Gate struct {
	command []string
	prefix  string
	runner  command.Runner
	marker  Marker
}

// NewGate constructs a Gate. An empty prefix selects DefaultReadyPrefix.
func NewGate(cmd []string, prefix string, runner command.Runner, marker Marker) (*Gate, error) {
	if len(cmd) == 0 {
		return nil, errors.New("boot check command must not be empty")
	}
	if runner == nil {
		return nil, errors.New("command runner must not be nil")
	}
	if marker == nil {
		return nil, errors.New("boot marker must not be nil")
	}
	if prefix == "" {
		prefix = DefaultReadyPrefix
	}
	return &Gate{
		command: append([]string(nil), cmd...),
		prefix:  prefix,
		runner:  runner,
		marker:  marker,
	}, nil
}

// Check reports whether probes may run. In boot mode the check command is
// skipped: the caller is the boot sequence itself. A command failure counts
// as still booting and is returned alongside false.
func (g *Gate) Check(ctx context.Context, bootMode bool) (bool, error) {
	if !bootMode {
		out, err := g.runner.Run(ctx, g.command)
		if err != nil {
			return false, fmt.Errorf("boot check: %w", err)
		}
		if !strings.HasPrefix(strings.TrimSpace(string(out)), g.prefix) {
			return false, nil
		}
	}
	if err := g.marker.MarkBooted(); err != nil {
		return true, fmt.Errorf("mark booted: %w", err)
	}
	return true, nil
}
