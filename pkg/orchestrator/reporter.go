package orchestrator

import (
	"context"

	"github.com/olcf/frontier-checknode/pkg/observability"
)

// Reporter is where the runner sends its journal events and metric samples.
type Reporter interface {
	RecordEvent(context.Context, observability.Event)
	RecordMetric(observability.Metric)
}

// ReporterFuncs adapts a pair of callbacks; tests use it to capture output.
type ReporterFuncs struct {
	OnEvent  func(context.Context, observability.Event)
	OnMetric func(observability.Metric)
}

// RecordEvent implements Reporter.
func (r ReporterFuncs) RecordEvent(ctx context.Context, event observability.Event) {
	if r.OnEvent != nil {
		r.OnEvent(ctx, event)
	}
}

// RecordMetric implements Reporter.
func (r ReporterFuncs) RecordMetric(metric observability.Metric) {
	if r.OnMetric != nil {
		r.OnMetric(metric)
	}
}

// NoopReporter is the default when NewRunner gets no WithReporter option.
type NoopReporter struct{}

// RecordEvent implements Reporter.
func (NoopReporter) RecordEvent(context.Context, observability.Event) {}

// RecordMetric implements Reporter.
func (NoopReporter) RecordMetric(observability.Metric) {}

// StructuredReporter fills in node, component and run_id on events that lack
// them, so every journal line of one invocation can be grepped by run id.
type StructuredReporter struct {
	node      string
	component string
	runID     string
	logger    observability.Logger
	metrics   observability.MetricsCollector
}

// NewStructuredReporter builds the reporter for a single invocation.
func NewStructuredReporter(nodeName, runID string, logger observability.Logger, metrics observability.MetricsCollector) *StructuredReporter {
	return &StructuredReporter{
		node:      nodeName,
		component: "orchestrator",
		runID:     runID,
		logger:    logger,
		metrics:   metrics,
	}
}

// RecordEvent implements Reporter.
func (r *StructuredReporter) RecordEvent(ctx context.Context, event observability.Event) {
	if r == nil || r.logger == nil {
		return
	}
	cloned := event.Clone()
	if cloned.Node == "" {
		cloned.Node = r.node
	}
	if cloned.Component == "" {
		cloned.Component = r.component
	}
	if r.runID != "" {
		cloned.WithDefault("run_id", r.runID)
	}
	_ = r.logger.Log(ctx, cloned)
}

// RecordMetric implements Reporter.
func (r *StructuredReporter) RecordMetric(metric observability.Metric) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.Collect(metric)
}

// EventLogger lets packages that only know observability.Logger, such as the
// signal classifier, write into the run journal.
func EventLogger(rep Reporter) observability.Logger {
	return observability.LoggerFunc(func(ctx context.Context, event observability.Event) error {
		rep.RecordEvent(ctx, event)
		return nil
	})
}

var _ Reporter = ReporterFuncs{}
var _ Reporter = NoopReporter{}
var _ Reporter = (*StructuredReporter)(nil)
