package assessment

import (
	"fmt"
	"strings"
)

// IntegrityMode decides how prioritized ids that were never selected are handled.
type IntegrityMode string

const (
	// IntegrityDrop silently removes unselected and duplicate ids.
	IntegrityDrop IntegrityMode = "drop"
	// IntegrityReject refuses the whole update with ErrUnselectedValue.
	IntegrityReject IntegrityMode = "reject"
	// IntegrityPermissive stores the list as given.
	IntegrityPermissive IntegrityMode = "permissive"
)

// ParseIntegrityMode normalizes a configured mode, defaulting to IntegrityDrop.
func ParseIntegrityMode(value string) (IntegrityMode, error) {
	switch mode := IntegrityMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return IntegrityDrop, nil
	case IntegrityDrop, IntegrityReject, IntegrityPermissive:
		return mode, nil
	default:
		return "", fmt.Errorf("integrity must be one of drop, reject, permissive (got %q)", value)
	}
}

// Policy holds the gating thresholds. The legacy wizard disagreed with the
// service on these numbers, so both sets are exposed and the choice is config.
type Policy struct {
	MinSelections  int
	MinPrioritized int
	MinReflections int
	Integrity      IntegrityMode
}

// DefaultPolicy requires at least one item per stage.
func DefaultPolicy() Policy {
	return Policy{
		MinSelections:  1,
		MinPrioritized: 1,
		MinReflections: 1,
		Integrity:      IntegrityDrop,
	}
}

// LegacyPolicy mirrors the stricter thresholds of the older wizard flow.
func LegacyPolicy() Policy {
	return Policy{
		MinSelections:  5,
		MinPrioritized: 3,
		MinReflections: 1,
		Integrity:      IntegrityDrop,
	}
}

func (p Policy) normalized() Policy {
	if p.MinSelections < 1 {
		p.MinSelections = 1
	}
	if p.MinPrioritized < 1 {
		p.MinPrioritized = 1
	}
	if p.MinReflections < 1 {
		p.MinReflections = 1
	}
	if p.Integrity == "" {
		p.Integrity = IntegrityDrop
	}
	return p
}

// Counts summarizes collection sizes for gating and reconciliation.
type Counts struct {
	Selected    int
	Prioritized int
	Reflections int
}

// CanEnter reports whether the step's gating predicate holds.
func (p Policy) CanEnter(step Step, counts Counts, premium bool) bool {
	p = p.normalized()
	switch step {
	case StepIntroduction, StepSelection:
		return true
	case StepPrioritization:
		return counts.Selected >= p.MinSelections
	case StepReflection:
		return counts.Prioritized >= p.MinPrioritized
	case StepInsights:
		return premium && counts.Reflections >= p.MinReflections
	default:
		return false
	}
}

// Reconcile infers the furthest step reached from the shape of the data.
// The first matching row wins; the result is then walked back until its gate
// holds so a stricter policy never strands the user on a locked step.
func (p Policy) Reconcile(counts Counts, premium bool) Step {
	var step Step
	switch {
	case counts.Prioritized > 0 && counts.Reflections > 0:
		if premium {
			step = StepInsights
		} else {
			step = StepReflection
		}
	case counts.Prioritized > 0:
		step = StepReflection
	case counts.Selected > 0:
		step = StepPrioritization
	default:
		step = StepIntroduction
	}
	for step > StepSelection && !p.CanEnter(step, counts, premium) {
		step--
	}
	return step
}
