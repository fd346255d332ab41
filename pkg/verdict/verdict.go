// Package verdict reduces a suite report into a single health verdict and
// renders the drain reason checknode applies for it.
package verdict

import (
	"fmt"
	"strings"

	"github.com/olcf/frontier-checknode/pkg/probe"
	"github.com/olcf/frontier-checknode/pkg/suite"
)

// Verdict is the aggregated health of one pass.
type Verdict struct {
	Passed      bool
	ErrorCount  int
	ErrorReason string
	// Failed names the failing probes in report order.
	Failed []string
}

// Aggregator folds reports into verdicts.
type Aggregator struct {
	delimiter string
}

// NewAggregator returns an Aggregator joining per-probe tags with delimiter.
func NewAggregator(delimiter string) Aggregator {
	if delimiter == "" {
		delimiter = "; "
	}
	return Aggregator{delimiter: delimiter}
}

// Aggregate computes the verdict. The reason is order-preserving so that two
// runs with the same failures produce byte-identical strings.
func (a Aggregator) Aggregate(report suite.Report) Verdict {
	failures := report.Failures()
	if len(failures) == 0 {
		return Verdict{Passed: true}
	}
	tags := make([]string, 0, len(failures))
	names := make([]string, 0, len(failures))
	for _, res := range failures {
		tags = append(tags, Tag(res))
		names = append(names, res.Name)
	}
	return Verdict{
		Passed:      false,
		ErrorCount:  len(failures),
		ErrorReason: strings.Join(tags, a.delimiter),
		Failed:      names,
	}
}

// Tag is the short failure description for one probe.
func Tag(res probe.Result) string {
	switch {
	case res.TimedOut:
		return res.Name + " timeout"
	case res.ExitCode == nil:
		return res.Name + " launch-failed"
	default:
		return fmt.Sprintf("%s rc=%d", res.Name, *res.ExitCode)
	}
}

// CompositeReason renders the drain reason for a failing verdict:
//
//	checknode: 2 errors: gpu_check rc=1; net_check timeout
func CompositeReason(tag string, v Verdict) string {
	noun := "errors"
	if v.ErrorCount == 1 {
		noun = "error"
	}
	return fmt.Sprintf("%s: %d %s: %s", tag, v.ErrorCount, noun, v.ErrorReason)
}
