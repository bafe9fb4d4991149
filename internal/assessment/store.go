package assessment

import (
	"context"
	"errors"
	"time"
)

// FeatureAIInsights gates the insights step and every AI-assisted call.
const FeatureAIInsights = "ai_insights"

var (
	// ErrEmptyValueID is returned when a mutation receives a blank id.
	ErrEmptyValueID = errors.New("assessment: value id is required")
	// ErrUnknownValue is returned when the catalog does not know the id.
	ErrUnknownValue = errors.New("assessment: unknown value")
	// ErrUnselectedValue is returned under IntegrityReject for prioritized ids that were not selected.
	ErrUnselectedValue = errors.New("assessment: value is not selected")
	// ErrClosed is returned by operations on a closed machine.
	ErrClosed = errors.New("assessment: machine closed")
	// ErrStaleVersion is returned by stores that already hold a newer record.
	ErrStaleVersion = errors.New("assessment: stale record version")
	// ErrOwnerChanged is returned when a queued record belongs to an account
	// that is no longer signed in.
	ErrOwnerChanged = errors.New("assessment: account changed before save")
)

// FieldMask selects which collections a Record carries.
type FieldMask uint8

const (
	FieldSelected FieldMask = 1 << iota
	FieldPrioritized
	FieldReflections

	FieldAll = FieldSelected | FieldPrioritized | FieldReflections
)

// Has reports whether every bit in other is set.
func (m FieldMask) Has(other FieldMask) bool {
	return m&other == other
}

// Record is one persisted snapshot of the assessment collections. Version is
// strictly increasing per writer; stores keep the highest version they saw.
type Record struct {
	Version uint64
	Writer  string
	// Owner is the account the record was captured for, empty when signed out.
	Owner               string
	UpdatedAt           time.Time
	Fields              FieldMask
	SelectedValues      []string
	PrioritizedValues   []string
	ReflectionResponses map[string]string
}

// Storage persists the three assessment collections. Implementations decide
// where the data lives; the machine never learns which backend served a call.
type Storage interface {
	SelectedValues(ctx context.Context) ([]string, error)
	PrioritizedValues(ctx context.Context) ([]string, error)
	ReflectionResponses(ctx context.Context) (map[string]string, error)
	// Version returns the highest stored record version, 0 when nothing is stored.
	Version(ctx context.Context) (uint64, error)
	// SaveAssessment writes record. A store holding a newer version keeps
	// it and returns ErrStaleVersion.
	SaveAssessment(ctx context.Context, record Record) error
	ClearAll(ctx context.Context) error
}

// Entitlement answers who the user is and what they may use.
type Entitlement interface {
	IsAuthenticated(ctx context.Context) bool
	HasFeature(ctx context.Context, feature string) (bool, error)
}

// Identity names the signed-in account. Stores are scoped to it, so the
// machine reloads whenever it changes.
type Identity interface {
	OwnerID(ctx context.Context) (string, bool)
}

// Catalog is the canonical values dataset.
type Catalog interface {
	Has(id string) bool
}
