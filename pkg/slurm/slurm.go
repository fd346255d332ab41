// Package slurm drives the local node's Slurm integration through scontrol
// and systemctl.
package slurm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olcf/frontier-checknode/pkg/command"
	"github.com/olcf/frontier-checknode/pkg/reconcile"
)

// Client reads and updates the scheduler's view of a single node.
type Client struct {
	node     string
	scontrol string
	runner   command.Runner
}

// NewClient builds a Client for node using the scontrol binary at scontrol.
func NewClient(node, scontrol string, runner command.Runner) (*Client, error) {
	if strings.TrimSpace(node) == "" {
		return nil, errors.New("node name must not be empty")
	}
	if strings.TrimSpace(scontrol) == "" {
		scontrol = "scontrol"
	}
	if runner == nil {
		return nil, errors.New("command runner must not be nil")
	}
	return &Client{node: node, scontrol: scontrol, runner: runner}, nil
}

// NodeState implements reconcile.Scheduler.
func (c *Client) NodeState(ctx context.Context) (reconcile.NodeState, error) {
	out, err := c.runner.Run(ctx, []string{c.scontrol, "--oneliner", "show", "node", c.node})
	if err != nil {
		return reconcile.NodeState{}, err
	}
	return ParseNode(string(out))
}

// Drain implements reconcile.Scheduler.
func (c *Client) Drain(ctx context.Context, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("drain reason must not be empty")
	}
	_, err := c.runner.Run(ctx, []string{c.scontrol, "update", "NodeName=" + c.node, "State=DRAIN", "Reason=" + reason})
	return err
}

// Undrain implements reconcile.Scheduler.
func (c *Client) Undrain(ctx context.Context) error {
	_, err := c.runner.Run(ctx, []string{c.scontrol, "update", "NodeName=" + c.node, "State=IDLE"})
	return err
}

// ParseNode extracts the normalized state and reason from one line of
// `scontrol --oneliner show node` output.
func ParseNode(out string) (reconcile.NodeState, error) {
	line := strings.TrimSpace(out)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return reconcile.NodeState{}, errors.New("empty scontrol output")
	}

	var raw string
	found := false
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "State=") {
			raw = strings.TrimPrefix(field, "State=")
			found = true
			break
		}
	}
	if !found {
		return reconcile.NodeState{}, fmt.Errorf("no State field in scontrol output: %q", line)
	}

	return reconcile.NodeState{
		State:  normalizeState(raw),
		Reason: parseReason(line),
	}, nil
}

func normalizeState(raw string) string {
	parts := strings.Split(strings.ToUpper(raw), "+")
	base := strings.TrimRight(parts[0], "*~#!%$@^-")
	flags := make(map[string]bool, len(parts))
	for _, p := range parts {
		flags[strings.TrimRight(p, "*~#!%$@^-")] = true
	}

	switch {
	case flags["DRAIN"] || flags["DRAINED"] || flags["DRAINING"]:
		return "drained"
	case flags["MAINT"] || flags["MAINTENANCE"]:
		return "maintenance"
	case flags["RESERVED"]:
		return "reserved"
	case flags["PLANNED"]:
		return "planned"
	}
	return strings.ToLower(base)
}

// parseReason returns everything after " Reason=" up to the end of the line
// with the [user@time] annotation removed. Reason is the last field scontrol
// prints, and its value routinely contains spaces.
func parseReason(line string) string {
	idx := strings.Index(line, " Reason=")
	var value string
	switch {
	case idx >= 0:
		value = line[idx+len(" Reason="):]
	case strings.HasPrefix(line, "Reason="):
		value = strings.TrimPrefix(line, "Reason=")
	default:
		return ""
	}
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "]") {
		if open := strings.LastIndex(value, " ["); open >= 0 && strings.Contains(value[open:], "@") {
			value = strings.TrimSpace(value[:open])
		}
	}
	switch strings.ToLower(value) {
	case "(null)", "none":
		return ""
	}
	return value
}

// Daemon starts and stops the scheduler client daemon with systemctl.
type Daemon struct {
	systemctl string
	unit      string
	runner    command.Runner
}

// NewDaemon constructs a Daemon controller for unit.
func NewDaemon(systemctl, unit string, runner command.Runner) (*Daemon, error) {
	if strings.TrimSpace(unit) == "" {
		return nil, errors.New("daemon unit must not be empty")
	}
	if strings.TrimSpace(systemctl) == "" {
		systemctl = "systemctl"
	}
	if runner == nil {
		return nil, errors.New("command runner must not be nil")
	}
	return &Daemon{systemctl: systemctl, unit: unit, runner: runner}, nil
}

// Start implements reconcile.Daemon.
func (d *Daemon) Start(ctx context.Context) error {
	_, err := d.runner.Run(ctx, []string{d.systemctl, "start", d.unit})
	return err
}

// Stop implements reconcile.Daemon.
func (d *Daemon) Stop(ctx context.Context) error {
	_, err := d.runner.Run(ctx, []string{d.systemctl, "stop", d.unit})
	return err
}

var _ reconcile.Scheduler = (*Client)(nil)
var _ reconcile.Daemon = (*Daemon)(nil)
