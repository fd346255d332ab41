package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/olcf/frontier-checknode/pkg/rundir"
	"github.com/olcf/frontier-checknode/pkg/verdict"
)

// Scheduler is the read/write surface of the job scheduler for the local node.
type Scheduler interface {
	NodeState(ctx context.Context) (NodeState, error)
	Drain(ctx context.Context, reason string) error
	Undrain(ctx context.Context) error
}

// Daemon controls the scheduler client daemon on the host.
type Daemon interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StateWriter persists the local run-state token.
type StateWriter interface {
	SetState(rundir.State) error
}

// Result describes what Reconcile decided and what happened when it acted.
// Scheduler and daemon failures are best-effort and only reported here.
type Result struct {
	Decision     Decision
	Node         NodeState
	NodeErr      error
	StateErr     error
	SchedulerErr error
	DaemonErr    error
	// Applied is true when a scheduler mutation was issued successfully.
	Applied bool
}

// Reconciler applies the decision table against the live scheduler.
type Reconciler struct {
	policy    Policy
	scheduler Scheduler
	daemon    Daemon
	state     StateWriter
}

// NewReconciler wires a Reconciler.
func NewReconciler(policy Policy, scheduler Scheduler, daemon Daemon, state StateWriter) (*Reconciler, error) {
	if policy.ManagedTag == "" {
		return nil, errors.New("reconcile policy requires a managed tag")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler must not be nil")
	}
	if daemon == nil {
		return nil, errors.New("daemon controller must not be nil")
	}
	if state == nil {
		return nil, errors.New("state writer must not be nil")
	}
	return &Reconciler{policy: policy, scheduler: scheduler, daemon: daemon, state: state}, nil
}

// Policy returns the precedence configuration in use.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Reconcile persists the verdict locally and brings the scheduler's view of
// the node in line with it.
func (r *Reconciler) Reconcile(ctx context.Context, v verdict.Verdict, flags Flags) Result {
	if v.Passed {
		return r.reconcilePassing(ctx, flags)
	}
	return r.reconcileFailing(ctx, v, flags)
}

func (r *Reconciler) reconcileFailing(ctx context.Context, v verdict.Verdict, flags Flags) Result {
	var res Result
	if err := r.state.SetState(rundir.StateFail); err != nil {
		res.StateErr = err
	}

	in := Input{Passed: false, Reason: verdict.CompositeReason(r.policy.ManagedTag, v), Flags: flags}
	r.readNode(ctx, &in, &res)
	res.Decision = r.policy.Decide(in)

	if res.Decision.Action == ActionDrain {
		if err := r.scheduler.Drain(ctx, res.Decision.Reason); err != nil {
			res.SchedulerErr = fmt.Errorf("drain node: %w", err)
		} else {
			res.Applied = true
		}
	}

	switch res.Decision.Daemon {
	case DaemonStop:
		if err := r.daemon.Stop(ctx); err != nil {
			res.DaemonErr = fmt.Errorf("stop scheduler daemon: %w", err)
		}
	default:
		if err := r.daemon.Start(ctx); err != nil {
			res.DaemonErr = fmt.Errorf("start scheduler daemon: %w", err)
		}
	}
	return res
}

func (r *Reconciler) reconcilePassing(ctx context.Context, flags Flags) Result {
	var res Result
	if err := r.daemon.Start(ctx); err != nil {
		res.DaemonErr = fmt.Errorf("start scheduler daemon: %w", err)
	}
	if err := r.state.SetState(rundir.StatePass); err != nil {
		res.StateErr = err
	}

	in := Input{Passed: true, Flags: flags}
	r.readNode(ctx, &in, &res)
	res.Decision = r.policy.Decide(in)

	if res.Decision.Action == ActionUndrain {
		if err := r.scheduler.Undrain(ctx); err != nil {
			res.SchedulerErr = fmt.Errorf("undrain node: %w", err)
		} else {
			res.Applied = true
		}
	}
	return res
}

// readNode queries the scheduler unless the mode forbids contacting it.
func (r *Reconciler) readNode(ctx context.Context, in *Input, res *Result) {
	if in.Flags.CheckOnly || in.Flags.LocalOnly {
		return
	}
	node, err := r.scheduler.NodeState(ctx)
	if err != nil {
		res.NodeErr = fmt.Errorf("read node state: %w", err)
		return
	}
	in.Node = node
	in.NodeKnown = true
	res.Node = node
}
