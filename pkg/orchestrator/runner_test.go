package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/olcf/frontier-checknode/pkg/config"
	"github.com/olcf/frontier-checknode/pkg/lock"
	"github.com/olcf/frontier-checknode/pkg/observability"
	"github.com/olcf/frontier-checknode/pkg/probe"
	"github.com/olcf/frontier-checknode/pkg/reconcile"
	"github.com/olcf/frontier-checknode/pkg/rundir"
	"github.com/olcf/frontier-checknode/pkg/suite"
	"github.com/olcf/frontier-checknode/pkg/verdict"
)

type fakeLease struct {
	mu       sync.Mutex
	releases int
	err      error
}

func (l *fakeLease) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return l.err
}

type fakeLocker struct {
	lease *fakeLease
	err   error
	calls int
}

func (f *fakeLocker) Acquire(context.Context) (lock.Lease, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.lease, nil
}

type fakeRunState struct {
	prepared int
	states   []rundir.State
	err      error
}

func (f *fakeRunState) Prepare() error {
	f.prepared++
	return nil
}

func (f *fakeRunState) SetState(s rundir.State) error {
	f.states = append(f.states, s)
	return f.err
}

type fakeGate struct {
	booted bool
	err    error
	modes  []bool
}

func (f *fakeGate) Check(_ context.Context, bootMode bool) (bool, error) {
	f.modes = append(f.modes, bootMode)
	return f.booted, f.err
}

type fakeSuite struct {
	report suite.Report
	err    error
	before func()
	calls  int
}

func (f *fakeSuite) Run(ctx context.Context) (suite.Report, error) {
	f.calls++
	if f.before != nil {
		f.before()
	}
	if ctx.Err() != nil {
		return f.report, ctx.Err()
	}
	return f.report, f.err
}

type fakeReconciler struct {
	verdicts []verdict.Verdict
	flags    []reconcile.Flags
	result   reconcile.Result
	during   func()
}

func (f *fakeReconciler) Reconcile(_ context.Context, v verdict.Verdict, flags reconcile.Flags) reconcile.Result {
	f.verdicts = append(f.verdicts, v)
	f.flags = append(f.flags, flags)
	if f.during != nil {
		f.during()
	}
	res := f.result
	res.Decision.Passed = v.Passed
	return res
}

type recordingReporter struct {
	mu      sync.Mutex
	events  []observability.Event
	metrics []observability.Metric
}

func (r *recordingReporter) RecordEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingReporter) RecordMetric(m observability.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func (r *recordingReporter) event(name string) (observability.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Event == name {
			return e, true
		}
	}
	return observability.Event{}, false
}

func testConfig() *config.Config {
	return &config.Config{
		NodeName: "frontier00001",
		Reasons:  config.ReasonsConfig{ManagedTag: "checknode", Delimiter: "; "},
	}
}

func exit(code int) *int { return &code }

type harness struct {
	lease      *fakeLease
	locker     *fakeLocker
	state      *fakeRunState
	gate       *fakeGate
	suite      *fakeSuite
	reconciler *fakeReconciler
	reporter   *recordingReporter
}

func newHarness(results ...probe.Result) *harness {
	lease := &fakeLease{}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return &harness{
		lease:      lease,
		locker:     &fakeLocker{lease: lease},
		state:      &fakeRunState{},
		gate:       &fakeGate{booted: true},
		suite:      &fakeSuite{report: suite.Report{Results: results, Planned: names}},
		reconciler: &fakeReconciler{},
		reporter:   &recordingReporter{},
	}
}

func (h *harness) runner(t *testing.T, cfg *config.Config, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithReporter(h.reporter), WithRunID("run-1")}, opts...)
	r, err := NewRunner(cfg, h.state, h.locker, h.gate, h.suite, h.reconciler, opts...)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func TestRunOnceHealthy(t *testing.T) {
	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)}, probe.Result{Name: "b_check", ExitCode: exit(0)})
	h.reconciler.result = reconcile.Result{Decision: reconcile.Decision{Rule: reconcile.RuleUndrain, Action: reconcile.ActionUndrain, Message: "undraining node"}, Applied: true}
	flags := reconcile.Flags{ForceUndrain: true}

	out, err := h.runner(t, testConfig(), WithFlags(flags), WithBootMode(true)).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Status != OutcomeHealthy || out.ExitCode() != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.RunID != "run-1" || !out.LockAcquired || out.Reason != "" {
		t.Fatalf("unexpected outcome metadata: %+v", out)
	}
	if h.lease.releases != 1 {
		t.Fatalf("expected one release, got %d", h.lease.releases)
	}
	if len(h.state.states) != 1 || h.state.states[0] != rundir.StateRunning {
		t.Fatalf("expected running state before probes, got %v", h.state.states)
	}
	if len(h.gate.modes) != 1 || !h.gate.modes[0] {
		t.Fatalf("expected boot mode to reach the gate, got %v", h.gate.modes)
	}
	if len(h.reconciler.flags) != 1 || h.reconciler.flags[0] != flags {
		t.Fatalf("expected flags to reach reconciler, got %v", h.reconciler.flags)
	}
	if !h.reconciler.verdicts[0].Passed {
		t.Fatal("expected passing verdict")
	}
	if ev, ok := h.reporter.event("run_outcome"); !ok || ev.Fields["status"] != string(OutcomeHealthy) {
		t.Fatalf("expected run_outcome event, got %+v", h.reporter.events)
	}
}

func TestRunOnceUnhealthyBuildsCompositeReason(t *testing.T) {
	h := newHarness(
		probe.Result{Name: "a_check", ExitCode: exit(0)},
		probe.Result{Name: "gpu_check", ExitCode: exit(1)},
		probe.Result{Name: "net_check", TimedOut: true},
	)
	h.reconciler.result = reconcile.Result{Decision: reconcile.Decision{Rule: reconcile.RuleDrain, Action: reconcile.ActionDrain}}

	out, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Status != OutcomeUnhealthy || out.ExitCode() != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	want := "checknode: 2 errors: gpu_check rc=1; net_check timeout"
	if out.Reason != want {
		t.Fatalf("expected reason %q, got %q", want, out.Reason)
	}
	v := h.reconciler.verdicts[0]
	if v.Passed || v.ErrorCount != 2 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	var decisions int
	for _, m := range h.reporter.metrics {
		if m.Name == "reconcile_decisions_total" {
			decisions++
			if m.Labels["path"] != "failing" || m.Labels["rule"] != string(reconcile.RuleDrain) {
				t.Fatalf("unexpected decision labels: %v", m.Labels)
			}
		}
	}
	if decisions != 1 {
		t.Fatalf("expected one decision metric, got %d", decisions)
	}
}

func TestRunOnceAlreadyRunning(t *testing.T) {
	h := newHarness()
	h.locker.err = lock.ErrNotAcquired

	out, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Status != OutcomeAlreadyRunning || out.ExitCode() != 1 || out.LockAcquired {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if h.suite.calls != 0 || len(h.state.states) != 0 || h.state.prepared != 0 {
		t.Fatal("nothing may run without the lock")
	}
	if h.lease.releases != 0 {
		t.Fatal("must not release a lock it does not hold")
	}
}

func TestRunOnceLockErrorIsReturned(t *testing.T) {
	h := newHarness()
	h.locker.err = errors.New("read-only file system")

	out, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != "" {
		t.Fatalf("expected no status on initialization failure, got %s", out.Status)
	}
}

func TestRunOnceStillBooting(t *testing.T) {
	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)})
	h.gate.booted = false

	out, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Status != OutcomeStillBooting || out.ExitCode() != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if h.suite.calls != 0 || len(h.reconciler.verdicts) != 0 {
		t.Fatal("probes must not run while booting")
	}
	if h.lease.releases != 1 {
		t.Fatalf("expected lock release, got %d", h.lease.releases)
	}
}

func TestRunOnceDryRunWritesNoStateAndSkipsReconcile(t *testing.T) {
	h := newHarness()
	h.suite.report = suite.Report{DryRun: true, Planned: []string{"a_check", "b_check"}}
	cfg := testConfig()
	cfg.DryRun = true

	out, err := h.runner(t, cfg).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if out.Status != OutcomeDryRun || out.ExitCode() != 0 || !out.DryRun {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(h.state.states) != 0 {
		t.Fatalf("dry run wrote state %v", h.state.states)
	}
	if len(h.reconciler.verdicts) != 0 {
		t.Fatal("dry run must not reconcile")
	}
}

func TestRunOnceAbortedBySignalReleasesLock(t *testing.T) {
	cause := errors.New("terminated by signal terminated (15)")
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)})
	h.suite.before = func() { cancel(cause) }

	out, err := h.runner(t, testConfig()).RunOnce(ctx)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, cause) {
		t.Fatalf("expected aborted error wrapping cause, got %v", err)
	}
	if out.Status != OutcomeAborted || out.ExitCode() != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if h.lease.releases != 1 {
		t.Fatalf("expected lock release on abort, got %d", h.lease.releases)
	}
	if len(h.reconciler.verdicts) != 0 {
		t.Fatal("aborted run must not reconcile")
	}
	if _, ok := h.reporter.event("run_outcome"); !ok {
		t.Fatal("expected outcome event for aborted run")
	}
}

func TestRunOnceSignalDuringReconcileIsNotHealthy(t *testing.T) {
	cause := errors.New("terminated by signal interrupt (2)")
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)})
	h.reconciler.during = func() { cancel(cause) }

	out, err := h.runner(t, testConfig()).RunOnce(ctx)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, cause) {
		t.Fatalf("expected aborted error wrapping cause, got %v", err)
	}
	if out.Status != OutcomeAborted || out.ExitCode() == 0 {
		t.Fatalf("expected non-zero aborted outcome, got %+v", out)
	}
	if len(h.reconciler.verdicts) != 1 {
		t.Fatalf("expected one reconcile call, got %d", len(h.reconciler.verdicts))
	}
	if h.lease.releases != 1 {
		t.Fatalf("expected lock release on abort, got %d", h.lease.releases)
	}
}

func TestRunOnceReleaseErrorSurfaces(t *testing.T) {
	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)})
	h.lease.err = errors.New("permission denied")

	out, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected release error")
	}
	if out.Status != OutcomeHealthy {
		t.Fatalf("unexpected status %s", out.Status)
	}
}

func TestRunOnceStateWriteFailureSurfaces(t *testing.T) {
	h := newHarness(probe.Result{Name: "a_check", ExitCode: exit(0)})
	h.reconciler.result = reconcile.Result{StateErr: errors.New("disk full")}

	_, err := h.runner(t, testConfig()).RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected state write error")
	}
}

func TestNewRunnerGeneratesRunID(t *testing.T) {
	h := newHarness()
	r, err := NewRunner(testConfig(), h.state, h.locker, h.gate, h.suite, h.reconciler)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if len(r.RunID()) != 36 {
		t.Fatalf("expected uuid run id, got %q", r.RunID())
	}
	if _, err := NewRunner(nil, h.state, h.locker, h.gate, h.suite, h.reconciler); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestStructuredReporterStampsRunContext(t *testing.T) {
	var got []observability.Event
	logger := observability.LoggerFunc(func(_ context.Context, e observability.Event) error {
		got = append(got, e)
		return nil
	})
	rep := NewStructuredReporter("n1", "run-9", logger, nil)
	EventLogger(rep).Log(context.Background(), observability.Event{Event: "signal_ignored", Component: "signals"})
	rep.RecordEvent(context.Background(), observability.Event{Event: "verdict", Fields: map[string]interface{}{"run_id": "other"}})

	if len(got) != 2 {
		t.Fatalf("expected two events, got %d", len(got))
	}
	if got[0].Node != "n1" || got[0].Component != "signals" || got[0].Fields["run_id"] != "run-9" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Component != "orchestrator" || got[1].Fields["run_id"] != "other" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestSuiteObserverRecordsProbeMetrics(t *testing.T) {
	rep := &recordingReporter{}
	obs := NewSuiteObserver(rep)
	obs.ProbeFinished(probe.Result{Name: "gpu_check", ExitCode: exit(3)})
	obs.ProbeFinished(probe.Result{Name: "net_check", TimedOut: true})

	results := make([]string, 0)
	for _, m := range rep.metrics {
		if m.Name == "probe_runs_total" {
			results = append(results, m.Labels["result"])
		}
	}
	if len(results) != 2 || results[0] != "fail" || results[1] != "timeout" {
		t.Fatalf("unexpected probe results: %v", results)
	}
	if ev, ok := rep.event("probe_finished"); !ok || ev.Fields["exit_code"] != 3 || ev.Level != observability.LevelWarn {
		t.Fatalf("unexpected probe event: %+v", ev)
	}
}
