package reconcile

// Action is the scheduler mutation chosen for a pass.
type Action string

const (
	ActionNone    Action = "none"
	ActionDrain   Action = "drain"
	ActionUndrain Action = "undrain"
)

// DaemonAction is the scheduler daemon control paired with a decision.
type DaemonAction string

const (
	DaemonStart DaemonAction = "start"
	DaemonStop  DaemonAction = "stop"
)

// Rule names the row of the decision table that produced a decision.
type Rule string

const (
	RuleCheckOnly            Rule = "check_only"
	RuleLocalOnly            Rule = "local_only"
	RuleSchedulerUnreachable Rule = "scheduler_unreachable"
	RuleReasonUnchanged      Rule = "reason_unchanged"
	RuleReasonOwnedElsewhere Rule = "reason_owned_elsewhere"
	RuleDrain                Rule = "drain"
	RuleStateLeftAlone       Rule = "state_left_alone"
	RuleRebootNeedsForce     Rule = "reboot_requires_force"
	RuleUndrain              Rule = "undrain"
	RuleForcedUndrain        Rule = "forced_undrain"
)

// NodeState is the scheduler's view of the local node, read fresh each pass.
type NodeState struct {
	State  string
	Reason string
}

// Flags are the mode switches of an invocation.
type Flags struct {
	CheckOnly    bool
	LocalOnly    bool
	ForceUndrain bool
}

// Input is everything the decision table looks at.
type Input struct {
	Passed bool
	// Reason is the composite drain reason; only meaningful when Passed is false.
	Reason string
	Node   NodeState
	// NodeKnown is false when the scheduler could not be read.
	NodeKnown bool
	Flags     Flags
}

// Decision is the outcome of the decision table.
type Decision struct {
	Passed   bool
	Action   Action
	Daemon   DaemonAction
	Rule     Rule
	Category Category
	// Reason is the drain reason to apply when Action is ActionDrain.
	Reason  string
	Message string
	// Warn marks decisions an operator has to act on.
	Warn bool
}

// ExitCode is 0 for a healthy node and 1 otherwise.
func (d Decision) ExitCode() int {
	if d.Passed {
		return 0
	}
	return 1
}

// Decide evaluates the precedence table; the first matching row wins. It has
// no side effects.
func (p Policy) Decide(in Input) Decision {
	if in.Passed {
		return p.decidePassing(in)
	}
	return p.decideFailing(in)
}

func (p Policy) decideFailing(in Input) Decision {
	d := Decision{
		Passed:   false,
		Action:   ActionNone,
		Daemon:   DaemonStart,
		Reason:   in.Reason,
		Category: p.Classify(in.Node.Reason),
	}
	if p.stopsDaemon(in.Reason) {
		d.Daemon = DaemonStop
	}

	switch {
	case in.Flags.CheckOnly:
		d.Rule = RuleCheckOnly
		d.Message = "check-only mode, not draining node"
	case in.Flags.LocalOnly:
		d.Rule = RuleLocalOnly
		d.Message = "local-only mode, scheduler not contacted"
	case !in.NodeKnown:
		d.Rule = RuleSchedulerUnreachable
		d.Message = "scheduler state unavailable, not draining node"
		d.Warn = true
	case in.Node.Reason == in.Reason:
		d.Rule = RuleReasonUnchanged
		d.Message = "reason unchanged"
	case !d.Category.Overridable():
		d.Rule = RuleReasonOwnedElsewhere
		d.Message = "not changing existing reason"
		d.Warn = true
	default:
		d.Rule = RuleDrain
		d.Action = ActionDrain
		d.Message = "draining node"
	}
	return d
}

func (p Policy) decidePassing(in Input) Decision {
	d := Decision{
		Passed:   true,
		Action:   ActionNone,
		Daemon:   DaemonStart,
		Category: p.Classify(in.Node.Reason),
	}

	switch {
	case in.Flags.CheckOnly:
		d.Rule = RuleCheckOnly
		d.Message = "check-only mode, leaving scheduler state alone"
	case in.Flags.LocalOnly:
		d.Rule = RuleLocalOnly
		d.Message = "local-only mode, scheduler not contacted"
	case !in.NodeKnown:
		d.Rule = RuleSchedulerUnreachable
		d.Message = "scheduler state unavailable, not undraining node"
		d.Warn = true
	case p.leaveAlone(in.Node.State):
		d.Rule = RuleStateLeftAlone
		d.Message = "node state " + in.Node.State + " left alone"
	case d.Category == CategoryRebootSentinel && !in.Flags.ForceUndrain:
		d.Rule = RuleRebootNeedsForce
		d.Message = "node rebooted unexpectedly; use --force-undrain to return it to service"
		d.Warn = true
	case !d.Category.Overridable() && !in.Flags.ForceUndrain:
		d.Rule = RuleReasonOwnedElsewhere
		d.Message = "not clearing existing reason"
	case !d.Category.Overridable():
		d.Rule = RuleForcedUndrain
		d.Action = ActionUndrain
		d.Message = "force-undrain overriding existing reason"
	default:
		d.Rule = RuleUndrain
		d.Action = ActionUndrain
		d.Message = "undraining node"
	}
	return d
}
