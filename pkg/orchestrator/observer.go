package orchestrator

import (
	"context"

	"github.com/olcf/frontier-checknode/pkg/observability"
	"github.com/olcf/frontier-checknode/pkg/probe"
	"github.com/olcf/frontier-checknode/pkg/suite"
)

// SuiteObserver narrates probe progress through a Reporter.
type SuiteObserver struct {
	reporter Reporter
}

// NewSuiteObserver builds a suite.Observer that reports through rep.
func NewSuiteObserver(rep Reporter) *SuiteObserver {
	if rep == nil {
		rep = NoopReporter{}
	}
	return &SuiteObserver{reporter: rep}
}

// ProbeSkipped implements suite.Observer.
func (o *SuiteObserver) ProbeSkipped(name, reason string) {
	o.reporter.RecordEvent(context.Background(), observability.Event{
		Level:     observability.LevelInfo,
		Component: "suite",
		Event:     "probe_skipped",
		Message:   reason,
		Fields:    map[string]interface{}{"probe": name},
	})
}

// ProbeStarting implements suite.Observer.
func (o *SuiteObserver) ProbeStarting(name, path string, dryRun bool) {
	msg := "beginning run of " + name
	if dryRun {
		msg = "dry run, not executing " + name
	}
	o.reporter.RecordEvent(context.Background(), observability.Event{
		Level:     observability.LevelInfo,
		Component: "suite",
		Event:     "probe_starting",
		Message:   msg,
		Fields:    map[string]interface{}{"probe": name, "path": path, "dry_run": dryRun},
	})
}

// ProbeFinished implements suite.Observer.
func (o *SuiteObserver) ProbeFinished(res probe.Result) {
	result := "pass"
	level := observability.LevelInfo
	fields := map[string]interface{}{
		"probe":       res.Name,
		"duration_ms": res.Duration.Milliseconds(),
		"timed_out":   res.TimedOut,
		"stdout":      res.Stdout,
		"stderr":      res.Stderr,
	}
	if res.ExitCode != nil {
		fields["exit_code"] = *res.ExitCode
	}
	switch {
	case res.TimedOut:
		result = "timeout"
	case res.LaunchErr != nil:
		result = "launch_failed"
		fields["error"] = res.LaunchErr.Error()
	case res.Failed():
		result = "fail"
	}
	if result != "pass" {
		level = observability.LevelWarn
	}

	o.reporter.RecordMetric(observability.Metric{
		Name:        "probe_runs_total",
		Type:        observability.MetricCounter,
		Value:       1,
		Labels:      map[string]string{"probe": res.Name, "result": result},
		Description: "Number of probe executions grouped by probe and result.",
	})
	o.reporter.RecordMetric(observability.Metric{
		Name:        "probe_duration_seconds",
		Type:        observability.MetricHistogram,
		Value:       res.Duration.Seconds(),
		Labels:      map[string]string{"probe": res.Name},
		Description: "Wall-clock duration of probe executions.",
		Unit:        "seconds",
	})

	o.reporter.RecordEvent(context.Background(), observability.Event{
		Level:     level,
		Component: "suite",
		Event:     "probe_finished",
		Message:   res.Name + " " + result,
		Fields:    fields,
	})
}

var _ suite.Observer = (*SuiteObserver)(nil)
