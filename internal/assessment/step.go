package assessment

import "fmt"

// Step identifies a wizard screen. Steps are 1-indexed.
type Step int

const (
	StepIntroduction   Step = 1
	StepSelection      Step = 2
	StepPrioritization Step = 3
	StepReflection     Step = 4
	// StepInsights only exists for users holding the ai_insights entitlement.
	StepInsights Step = 5
)

const (
	standardStepCount = 4
	premiumStepCount  = 5
)

// String returns the display name for the step.
func (s Step) String() string {
	switch s {
	case StepIntroduction:
		return "Introduction"
	case StepSelection:
		return "Selection"
	case StepPrioritization:
		return "Prioritization"
	case StepReflection:
		return "Reflection"
	case StepInsights:
		return "AI Insights"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// TotalSteps returns the number of steps available for the entitlement tier.
func TotalSteps(premium bool) int {
	if premium {
		return premiumStepCount
	}
	return standardStepCount
}

// Direction describes which way a step transition moved.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)
