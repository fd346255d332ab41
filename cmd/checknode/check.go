package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/olcf/frontier-checknode/pkg/boot"
	"github.com/olcf/frontier-checknode/pkg/command"
	"github.com/olcf/frontier-checknode/pkg/config"
	"github.com/olcf/frontier-checknode/pkg/lock"
	"github.com/olcf/frontier-checknode/pkg/observability"
	"github.com/olcf/frontier-checknode/pkg/orchestrator"
	"github.com/olcf/frontier-checknode/pkg/probe"
	"github.com/olcf/frontier-checknode/pkg/reconcile"
	"github.com/olcf/frontier-checknode/pkg/rundir"
	"github.com/olcf/frontier-checknode/pkg/signals"
	"github.com/olcf/frontier-checknode/pkg/slurm"
	"github.com/olcf/frontier-checknode/pkg/suite"
)

func runCheck(parent context.Context, cmd *cobra.Command, opts options, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return wrapExit(exitFailed, "failed to load configuration", err)
	}
	runID := uuid.NewString()

	layout, err := rundir.New(cfg.RunDir)
	if err != nil {
		return wrapExit(exitFailed, "invalid run directory", err)
	}

	var journal bytes.Buffer
	metrics := observability.NewPrometheusCollector()
	logger := observability.MultiLogger{
		observability.NewJSONLogger(&journal),
		consoleLogger(stderr, cfg.Verbose),
	}
	reporter := orchestrator.NewStructuredReporter(cfg.NodeName, runID, logger, metrics)

	locker, err := lock.NewFileManager(lock.FileManagerOptions{
		Path:     layout.LockPath(),
		NodeName: cfg.NodeName,
		RunID:    runID,
	})
	if err != nil {
		return wrapExit(exitFailed, "configure lock", err)
	}

	runner, err := buildRunner(cfg, layout, locker, reporter, runID, opts)
	if err != nil {
		return wrapExit(exitFailed, "initialise checknode", err)
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	classifier := signals.New(orchestrator.EventLogger(reporter), cfg.NodeName, cancel,
		signals.WithForceExit(func(os.Signal) {
			_ = locker.ReleaseHeld()
			os.Exit(exitFailed)
		}))
	classifier.Start()
	defer classifier.Stop()

	out, runErr := runner.RunOnce(ctx)

	if out.LockAcquired {
		if err := writeJournal(layout, journal.Bytes()); err != nil {
			reporter.RecordEvent(context.Background(), observability.Event{
				Level:   observability.LevelWarn,
				Event:   "journal_write_failed",
				Message: err.Error(),
			})
		}
	}
	if path := strings.TrimSpace(cfg.Metrics.Textfile); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			reporter.RecordEvent(context.Background(), observability.Event{
				Level:   observability.LevelWarn,
				Event:   "metrics_write_failed",
				Message: err.Error(),
			})
		}
	}

	if cfg.DryRun && runErr == nil {
		printPlan(cmd.OutOrStdout(), out)
	}

	if runErr != nil {
		if errors.Is(runErr, orchestrator.ErrAborted) {
			return silentExit(exitFailed)
		}
		return wrapExit(exitFailed, "", runErr)
	}
	if code := out.ExitCode(); code != exitOK {
		return silentExit(code)
	}
	return nil
}

func buildRunner(cfg *config.Config, layout rundir.Layout, locker lock.Manager, reporter orchestrator.Reporter, runID string, opts options) (*orchestrator.Runner, error) {
	env := cfg.BaseEnvironment()
	env["CHECKNODE_RUN_ID"] = runID

	cli := command.NewExecRunner(map[string]string{"SLURM_CONF": cfg.SlurmConf}, cfg.SchedulerTimeout())

	gate, err := boot.NewGate(cfg.BootCheckCommand, config.DefaultBootCheckPrefix, cli, layout)
	if err != nil {
		return nil, err
	}
	driver, err := suite.NewDriver(cfg.TestDir, probe.NewRunner(cfg.ProbeTimeout(), env),
		suite.WithDryRun(cfg.DryRun),
		suite.WithObserver(orchestrator.NewSuiteObserver(reporter)))
	if err != nil {
		return nil, err
	}
	scheduler, err := slurm.NewClient(cfg.NodeName, cfg.Scheduler.Scontrol, cli)
	if err != nil {
		return nil, err
	}
	daemon, err := slurm.NewDaemon(cfg.Scheduler.Systemctl, cfg.Scheduler.DaemonUnit, cli)
	if err != nil {
		return nil, err
	}
	policy := reconcile.Policy{
		ManagedTag:         cfg.Reasons.ManagedTag,
		Overridable:        cfg.Reasons.Overridable,
		RebootSentinel:     cfg.Reasons.RebootSentinel,
		LeaveAloneStates:   cfg.Scheduler.LeaveAloneStates,
		StopDaemonPatterns: cfg.Reasons.StopDaemonPatterns,
	}
	rec, err := reconcile.NewReconciler(policy, scheduler, daemon, layout)
	if err != nil {
		return nil, err
	}

	return orchestrator.NewRunner(cfg, layout, locker, gate, driver, rec,
		orchestrator.WithReporter(reporter),
		orchestrator.WithRunID(runID),
		orchestrator.WithBootMode(opts.bootMode),
		orchestrator.WithFlags(reconcile.Flags{
			CheckOnly:    opts.checkOnly,
			LocalOnly:    opts.localOnly,
			ForceUndrain: opts.forceUndrain,
		}))
}

// consoleLogger narrates everything in verbose mode. Otherwise only error
// events reach stderr, one short line each.
func consoleLogger(w io.Writer, verbose bool) observability.Logger {
	if verbose {
		return observability.NewTextLogger(w, "checknode")
	}
	return observability.LevelFilter{
		Min: observability.LevelError,
		Next: observability.LoggerFunc(func(_ context.Context, e observability.Event) error {
			_, err := io.WriteString(w, briefLine(e)+"\n")
			return err
		}),
	}
}

func briefLine(e observability.Event) string {
	msg := e.Message
	if msg == "" {
		msg = e.Event
	}
	keys := make([]string, 0)
	for k := range e.Fields {
		if k == "error" || strings.HasSuffix(k, "_error") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg += fmt.Sprintf(": %v", e.Fields[k])
	}
	return msg
}

func writeJournal(layout rundir.Layout, data []byte) error {
	if err := os.MkdirAll(layout.JournalDir(), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.WriteFile(layout.JournalPath(), data, 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func printPlan(w io.Writer, out orchestrator.Outcome) {
	for _, name := range out.Report.Planned {
		fmt.Fprintf(w, "%s ... dry run, not running\n", name)
	}
}
