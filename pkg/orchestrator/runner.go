package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olcf/frontier-checknode/pkg/config"
	"github.com/olcf/frontier-checknode/pkg/lock"
	"github.com/olcf/frontier-checknode/pkg/observability"
	"github.com/olcf/frontier-checknode/pkg/reconcile"
	"github.com/olcf/frontier-checknode/pkg/rundir"
	"github.com/olcf/frontier-checknode/pkg/suite"
	"github.com/olcf/frontier-checknode/pkg/verdict"
)

// ErrAborted is returned when a terminal signal cancels the pass. The signal
// cause is wrapped alongside it.
var ErrAborted = errors.New("run aborted")

// RunState owns the run directory and the persisted run-state token.
type RunState interface {
	Prepare() error
	SetState(rundir.State) error
}

// BootGate decides whether the host is ready for probes.
type BootGate interface {
	Check(ctx context.Context, bootMode bool) (bool, error)
}

// SuiteRunner executes the probe suite once.
type SuiteRunner interface {
	Run(ctx context.Context) (suite.Report, error)
}

// StateReconciler brings the scheduler in line with a verdict.
type StateReconciler interface {
	Reconcile(ctx context.Context, v verdict.Verdict, flags reconcile.Flags) reconcile.Result
}

// OutcomeStatus represents the final decision of a single pass.
type OutcomeStatus string

const (
	OutcomeAlreadyRunning OutcomeStatus = "already_running"
	OutcomeStillBooting   OutcomeStatus = "still_booting"
	OutcomeDryRun         OutcomeStatus = "dry_run"
	OutcomeHealthy        OutcomeStatus = "healthy"
	OutcomeUnhealthy      OutcomeStatus = "unhealthy"
	OutcomeAborted        OutcomeStatus = "aborted"
)

// Outcome summarises the steps performed during RunOnce.
type Outcome struct {
	Status       OutcomeStatus
	Message      string
	RunID        string
	DryRun       bool
	LockAcquired bool
	Report       suite.Report
	Verdict      *verdict.Verdict
	// Reason is the composite drain reason; empty unless the node is unhealthy.
	Reason    string
	Reconcile *reconcile.Result
}

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o.Status {
	case OutcomeHealthy, OutcomeDryRun:
		return 0
	}
	return 1
}

// Runner executes one checknode pass.
type Runner struct {
	cfg        *config.Config
	state      RunState
	locker     lock.Manager
	gate       BootGate
	suite      SuiteRunner
	aggregator verdict.Aggregator
	reconciler StateReconciler
	reporter   Reporter
	flags      reconcile.Flags
	bootMode   bool
	runID      string
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithReporter attaches an observability reporter to the runner.
func WithReporter(rep Reporter) Option {
	return func(r *Runner) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

// WithFlags sets the check-only, local-only and force-undrain modes.
func WithFlags(flags reconcile.Flags) Option {
	return func(r *Runner) {
		r.flags = flags
	}
}

// WithBootMode tells the runner it is invoked from the boot sequence.
func WithBootMode(enabled bool) Option {
	return func(r *Runner) {
		r.bootMode = enabled
	}
}

// WithRunID pins the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if strings.TrimSpace(id) != "" {
			r.runID = id
		}
	}
}

// WithTimeSource injects a custom time source, enabling deterministic tests.
func WithTimeSource(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRunner constructs a Runner with the provided dependencies.
func NewRunner(cfg *config.Config, state RunState, locker lock.Manager, gate BootGate, suiteRunner SuiteRunner, reconciler StateReconciler, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if state == nil {
		return nil, errors.New("run state must not be nil")
	}
	if locker == nil {
		return nil, errors.New("lock manager must not be nil")
	}
	if gate == nil {
		return nil, errors.New("boot gate must not be nil")
	}
	if suiteRunner == nil {
		return nil, errors.New("suite runner must not be nil")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler must not be nil")
	}

	runner := &Runner{
		cfg:        cfg,
		state:      state,
		locker:     locker,
		gate:       gate,
		suite:      suiteRunner,
		aggregator: verdict.NewAggregator(cfg.Reasons.Delimiter),
		reconciler: reconciler,
		reporter:   NoopReporter{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	if runner.runID == "" {
		runner.runID = uuid.NewString()
	}
	return runner, nil
}

// RunID returns the identifier attached to every event of this pass.
func (r *Runner) RunID() string {
	return r.runID
}

// RunOnce executes the pass and returns the resulting outcome. The lock is
// released on every return path, including cancellation by a terminal signal.
func (r *Runner) RunOnce(ctx context.Context) (out Outcome, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out.RunID = r.runID
	out.DryRun = r.cfg.DryRun

	defer func() {
		if out.Status != "" {
			r.recordOutcome(ctx, out)
		}
	}()

	lease, acquired, err := r.acquireLock(ctx)
	if err != nil {
		return out, err
	}
	if !acquired {
		out.Status = OutcomeAlreadyRunning
		out.Message = "checknode is already running"
		return out, nil
	}
	out.LockAcquired = true
	defer r.releaseLease(lease, &err)

	if err := r.state.Prepare(); err != nil {
		return out, fmt.Errorf("prepare run directory: %w", err)
	}
	if !r.cfg.DryRun {
		if err := r.state.SetState(rundir.StateRunning); err != nil {
			return out, fmt.Errorf("write run state: %w", err)
		}
	}

	booted, gateErr := r.gate.Check(ctx, r.bootMode)
	r.recordBootGate(ctx, booted, gateErr)
	if !booted {
		if aborted, abortErr := r.abortIfCancelled(ctx, &out); aborted {
			return out, abortErr
		}
		out.Status = OutcomeStillBooting
		out.Message = "node is still booting"
		if gateErr != nil {
			out.Message = fmt.Sprintf("node is still booting: %v", gateErr)
		}
		return out, nil
	}

	report, suiteErr := r.suite.Run(ctx)
	out.Report = report
	if aborted, abortErr := r.abortIfCancelled(ctx, &out); aborted {
		return out, abortErr
	}
	if suiteErr != nil {
		return out, fmt.Errorf("run probe suite: %w", suiteErr)
	}
	r.recordSuite(ctx, report)

	if r.cfg.DryRun {
		out.Status = OutcomeDryRun
		out.Message = fmt.Sprintf("dry run, %d probes planned", len(report.Planned))
		return out, nil
	}

	v := r.aggregator.Aggregate(report)
	out.Verdict = &v
	if !v.Passed {
		out.Reason = verdict.CompositeReason(r.cfg.Reasons.ManagedTag, v)
	}
	r.recordVerdict(ctx, v, out.Reason)

	res := r.reconciler.Reconcile(ctx, v, r.flags)
	out.Reconcile = &res
	r.recordDecision(ctx, res)
	if aborted, abortErr := r.abortIfCancelled(ctx, &out); aborted {
		return out, abortErr
	}

	if v.Passed {
		out.Status = OutcomeHealthy
		out.Message = res.Decision.Message
	} else {
		out.Status = OutcomeUnhealthy
		out.Message = out.Reason
	}
	if res.StateErr != nil {
		return out, fmt.Errorf("write run state: %w", res.StateErr)
	}
	return out, nil
}

func (r *Runner) acquireLock(ctx context.Context) (lock.Lease, bool, error) {
	start := r.now()
	lease, err := r.locker.Acquire(ctx)
	duration := r.now().Sub(start)

	switch {
	case err == nil:
		r.recordLockAttempt(ctx, duration, "success", nil)
		return lease, true, nil
	case errors.Is(err, lock.ErrNotAcquired):
		r.recordLockAttempt(ctx, duration, "contended", err)
		return nil, false, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.recordLockAttempt(ctx, duration, "canceled", err)
		return nil, false, err
	default:
		r.recordLockAttempt(ctx, duration, "error", err)
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
}

// abortIfCancelled turns a cancelled run context into an aborted outcome.
func (r *Runner) abortIfCancelled(ctx context.Context, out *Outcome) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	cause := context.Cause(ctx)
	out.Status = OutcomeAborted
	out.Message = cause.Error()
	return true, fmt.Errorf("%w: %w", ErrAborted, cause)
}

func (r *Runner) releaseLease(lease lock.Lease, errPtr *error) {
	if lease == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	releaseErr := lease.Release(releaseCtx)
	result := "success"
	level := observability.LevelDebug
	fields := map[string]interface{}{}
	if releaseErr != nil {
		result = "error"
		level = observability.LevelError
		fields["error"] = releaseErr.Error()
	}
	fields["result"] = result

	r.reporter.RecordEvent(context.Background(), observability.Event{
		Level:  level,
		Node:   r.cfg.NodeName,
		Event:  "lock_released",
		Fields: fields,
	})

	if releaseErr != nil && errPtr != nil && *errPtr == nil {
		*errPtr = fmt.Errorf("release lock: %w", releaseErr)
	}
}

func (r *Runner) recordLockAttempt(ctx context.Context, duration time.Duration, result string, attemptErr error) {
	level := observability.LevelDebug
	switch result {
	case "contended":
		level = observability.LevelWarn
	case "error", "canceled":
		level = observability.LevelError
	}
	fields := map[string]interface{}{
		"result":      result,
		"duration_ms": duration.Milliseconds(),
	}
	if attemptErr != nil {
		fields["error"] = attemptErr.Error()
	}

	r.reporter.RecordMetric(observability.Metric{
		Name:        "lock_attempts_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      map[string]string{"result": result},
		Description: "Number of run lock acquisition attempts grouped by result.",
	})

	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.cfg.NodeName,
		Event:  "lock_attempt",
		Fields: fields,
	})
}

func (r *Runner) recordBootGate(ctx context.Context, booted bool, gateErr error) {
	level := observability.LevelDebug
	fields := map[string]interface{}{
		"boot_mode": r.bootMode,
		"booted":    booted,
	}
	if !booted || gateErr != nil {
		level = observability.LevelWarn
	}
	if gateErr != nil {
		fields["error"] = gateErr.Error()
	}
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:  level,
		Node:   r.cfg.NodeName,
		Event:  "boot_gate",
		Fields: fields,
	})
}

func (r *Runner) recordSuite(ctx context.Context, report suite.Report) {
	r.reporter.RecordEvent(ctx, observability.Event{
		Level: observability.LevelInfo,
		Node:  r.cfg.NodeName,
		Event: "suite_complete",
		Fields: map[string]interface{}{
			"planned":     len(report.Planned),
			"executed":    len(report.Results),
			"failed":      len(report.Failures()),
			"dry_run":     report.DryRun,
			"duration_ms": report.Duration.Milliseconds(),
		},
	})
}

func (r *Runner) recordVerdict(ctx context.Context, v verdict.Verdict, reason string) {
	level := observability.LevelInfo
	fields := map[string]interface{}{
		"passed":      v.Passed,
		"error_count": v.ErrorCount,
	}
	if !v.Passed {
		level = observability.LevelWarn
		fields["reason"] = reason
		fields["failed"] = strings.Join(v.Failed, ",")
	}
	r.reporter.RecordEvent(ctx, observability.Event{
		Level:   level,
		Node:    r.cfg.NodeName,
		Event:   "verdict",
		Message: reason,
		Fields:  fields,
	})
}

func (r *Runner) recordDecision(ctx context.Context, res reconcile.Result) {
	d := res.Decision
	path := "failing"
	if d.Passed {
		path = "passing"
	}
	level := observability.LevelInfo
	if d.Warn {
		level = observability.LevelWarn
	}
	fields := map[string]interface{}{
		"path":     path,
		"rule":     string(d.Rule),
		"action":   string(d.Action),
		"daemon":   string(d.Daemon),
		"category": d.Category.String(),
		"applied":  res.Applied,
		"state":    res.Node.State,
		"current":  res.Node.Reason,
	}
	if d.Action == reconcile.ActionDrain {
		fields["reason"] = d.Reason
	}
	for key, e := range map[string]error{
		"node_error":      res.NodeErr,
		"scheduler_error": res.SchedulerErr,
		"daemon_error":    res.DaemonErr,
		"state_error":     res.StateErr,
	} {
		if e != nil {
			fields[key] = e.Error()
			level = observability.LevelError
		}
	}

	r.reporter.RecordMetric(observability.Metric{
		Name:        "reconcile_decisions_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      map[string]string{"path": path, "action": string(d.Action), "rule": string(d.Rule)},
		Description: "Number of reconciliation decisions grouped by path, action and rule.",
	})

	r.reporter.RecordEvent(ctx, observability.Event{
		Level:   level,
		Node:    r.cfg.NodeName,
		Event:   "reconcile_decision",
		Message: d.Message,
		Fields:  fields,
	})
}

func (r *Runner) recordOutcome(ctx context.Context, out Outcome) {
	level := observability.LevelInfo
	switch out.Status {
	case OutcomeUnhealthy, OutcomeAlreadyRunning, OutcomeStillBooting, OutcomeAborted:
		level = observability.LevelError
	}

	fields := map[string]interface{}{
		"status":        string(out.Status),
		"dry_run":       out.DryRun,
		"lock_acquired": out.LockAcquired,
		"exit_code":     out.ExitCode(),
	}

	r.reporter.RecordMetric(observability.Metric{
		Name:        "run_outcomes_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      map[string]string{"status": string(out.Status)},
		Description: "Number of checknode passes grouped by outcome status.",
	})

	r.reporter.RecordEvent(context.WithoutCancel(ctx), observability.Event{
		Level:   level,
		Node:    r.cfg.NodeName,
		Event:   "run_outcome",
		Message: out.Message,
		Fields:  fields,
	})
}
