package reconcile

import "strings"

// Category classifies the drain reason currently recorded by the scheduler.
type Category int

const (
	// CategoryEmpty means no reason is set (empty, "none" or "(null)").
	CategoryEmpty Category = iota
	// CategorySelfManaged is a reason checknode itself applied.
	CategorySelfManaged
	// CategoryKnownBenign is a scheduler reason the site allows checknode to replace.
	CategoryKnownBenign
	// CategoryRebootSentinel marks an unexpected reboot; only a forced undrain clears it.
	CategoryRebootSentinel
	// CategoryExternal is owned by an administrator or another subsystem.
	CategoryExternal
)

func (c Category) String() string {
	switch c {
	case CategoryEmpty:
		return "empty"
	case CategorySelfManaged:
		return "self-managed"
	case CategoryKnownBenign:
		return "known-benign"
	case CategoryRebootSentinel:
		return "reboot-sentinel"
	default:
		return "externally-owned"
	}
}

// Overridable reports whether checknode may replace or clear a reason of this category.
func (c Category) Overridable() bool {
	switch c {
	case CategoryEmpty, CategorySelfManaged, CategoryKnownBenign:
		return true
	}
	return false
}

// Policy is the site-specific precedence configuration.
type Policy struct {
	ManagedTag         string
	Overridable        []string
	RebootSentinel     string
	LeaveAloneStates   []string
	StopDaemonPatterns []string
}

// Classify maps a scheduler reason onto a Category.
func (p Policy) Classify(reason string) Category {
	trimmed := strings.TrimSpace(reason)
	switch strings.ToLower(trimmed) {
	case "", "none", "(null)":
		return CategoryEmpty
	}
	if p.RebootSentinel != "" && trimmed == p.RebootSentinel {
		return CategoryRebootSentinel
	}
	if p.ManagedTag != "" && strings.HasPrefix(trimmed, p.ManagedTag+":") {
		return CategorySelfManaged
	}
	for _, entry := range p.Overridable {
		if entry != "" && strings.HasPrefix(trimmed, entry) {
			return CategoryKnownBenign
		}
	}
	return CategoryExternal
}

func (p Policy) leaveAlone(state string) bool {
	for _, s := range p.LeaveAloneStates {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

func (p Policy) stopsDaemon(reason string) bool {
	lower := strings.ToLower(reason)
	for _, pattern := range p.StopDaemonPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
