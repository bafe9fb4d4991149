package assessment

// EventName is the wire name of an assessment event.
type EventName string

const (
	EventInitialized           EventName = "initialized"
	EventProgressLoaded        EventName = "progressLoaded"
	EventProgressSaved         EventName = "progressSaved"
	EventStepChanged           EventName = "stepChanged"
	EventNavigationBlocked     EventName = "navigationBlocked"
	EventValueToggled          EventName = "valueToggled"
	EventPrioritizationChanged EventName = "prioritizationChanged"
	EventReflectionSaved       EventName = "reflectionSaved"
	EventError                 EventName = "error"
	EventAssessmentReset       EventName = "assessmentReset"
)

// EventNames lists every event the machine publishes.
func EventNames() []EventName {
	return []EventName{
		EventInitialized, EventProgressLoaded, EventProgressSaved, EventStepChanged,
		EventNavigationBlocked, EventValueToggled, EventPrioritizationChanged,
		EventReflectionSaved, EventError, EventAssessmentReset,
	}
}

// Error contexts carried by ErrorEvent.
const (
	ContextInitialization = "initialization"
	ContextLoadProgress   = "loadProgress"
	ContextSaveProgress   = "saveProgress"
	ContextRestart        = "restart"
)

// ReasonRequirementNotMet is the only navigation block reason today.
const ReasonRequirementNotMet = "requirementNotMet"

// Event is implemented by every payload published on the bus.
type Event interface {
	Name() EventName
}

// Initialized fires once Initialize finished, after ProgressLoaded.
type Initialized struct {
	IsPremium   bool
	CurrentStep Step
	TotalSteps  int
}

// ProgressLoaded reports the outcome of loading and reconciling stored progress.
type ProgressLoaded struct {
	CurrentStep       Step
	SelectedValues    int
	PrioritizedValues int
}

// ProgressSaved fires after the persister wrote a snapshot.
type ProgressSaved struct {
	Version uint64
}

// StepChanged fires after every successful step transition.
type StepChanged struct {
	Step      Step
	Direction Direction
}

// NavigationBlocked fires when a forward transition failed its gate.
// TargetStep is zero for NextStep refusals.
type NavigationBlocked struct {
	Reason      string
	CurrentStep Step
	TargetStep  Step
}

// ValueToggled reports a membership change in the selection.
type ValueToggled struct {
	ValueID    string
	IsSelected bool
	Count      int
}

// PrioritizationChanged carries the new ordering. MovedValueID, NewIndex and
// Direction are only set for single-step moves.
type PrioritizationChanged struct {
	PrioritizedValues []string
	MovedValueID      string
	NewIndex          int
	Direction         string
}

// ReflectionSaved carries the text length, never the text.
type ReflectionSaved struct {
	ValueID    string
	TextLength int
}

// ErrorEvent surfaces a recovered failure.
type ErrorEvent struct {
	Context string
	Err     error
}

// AssessmentReset fires after Restart cleared all progress.
type AssessmentReset struct{}

func (Initialized) Name() EventName           { return EventInitialized }
func (ProgressLoaded) Name() EventName        { return EventProgressLoaded }
func (ProgressSaved) Name() EventName         { return EventProgressSaved }
func (StepChanged) Name() EventName           { return EventStepChanged }
func (NavigationBlocked) Name() EventName     { return EventNavigationBlocked }
func (ValueToggled) Name() EventName          { return EventValueToggled }
func (PrioritizationChanged) Name() EventName { return EventPrioritizationChanged }
func (ReflectionSaved) Name() EventName       { return EventReflectionSaved }
func (ErrorEvent) Name() EventName            { return EventError }
func (AssessmentReset) Name() EventName       { return EventAssessmentReset }

// Error implements error so ErrorEvent values can be logged directly.
func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return e.Context
	}
	return e.Context + ": " + e.Err.Error()
}

// Unwrap exposes the underlying failure.
func (e ErrorEvent) Unwrap() error {
	return e.Err
}
