package logbook

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/compass/internal/assessment"
)

func newBook(t *testing.T) *Logbook {
	t.Helper()
	book, err := New(filepath.Join(t.TempDir(), "journey.log"),
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }),
		WithNamer(strings.ToUpper),
	)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	return book
}

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	book := newBook(t)
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
	if !strings.HasPrefix(lines[0], "2026-05-01T12:00:00Z INFO") {
		t.Fatalf("unexpected line format %q", lines[0])
	}
}

func TestTailOnMissingFile(t *testing.T) {
	book := newBook(t)
	lines, total := book.Tail(4)
	if lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v %d", lines, total)
	}
	var nilBook *Logbook
	nilBook.Info("ignored")
	if lines, _ := nilBook.Tail(1); lines != nil {
		t.Fatalf("nil logbook returned lines")
	}
}

func TestAttachJournalsEvents(t *testing.T) {
	book := newBook(t)
	bus := assessment.NewBus()
	subs := book.Attach(bus)

	bus.Emit(assessment.Initialized{IsPremium: true, CurrentStep: assessment.StepIntroduction, TotalSteps: 5})
	bus.Emit(assessment.ValueToggled{ValueID: "honesty", IsSelected: true, Count: 1})
	bus.Emit(assessment.StepChanged{Step: assessment.StepPrioritization, Direction: assessment.DirectionForward})
	bus.Emit(assessment.PrioritizationChanged{PrioritizedValues: []string{"a", "honesty"}, MovedValueID: "honesty", NewIndex: 1, Direction: "down"})
	bus.Emit(assessment.NavigationBlocked{Reason: assessment.ReasonRequirementNotMet, CurrentStep: assessment.StepPrioritization})
	bus.Emit(assessment.ReflectionSaved{ValueID: "honesty", TextLength: 12})
	bus.Emit(assessment.ProgressSaved{Version: 3})
	bus.Emit(assessment.ErrorEvent{Context: assessment.ContextSaveProgress, Err: errors.New("disk full")})
	bus.OffAll(subs)
	bus.Emit(assessment.AssessmentReset{})

	lines, total := book.Tail(20)
	if total != 7 {
		t.Fatalf("total = %d, want 7: %v", total, lines)
	}
	wants := []string{
		"Started premium assessment",
		"Selected HONESTY (1 total)",
		"Moved on to",
		"Moved HONESTY down to #2",
		"WARN  Cannot leave",
		"Reflected on HONESTY (12 characters)",
		"ERROR Problem during saveProgress: disk full",
	}
	for i, want := range wants {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}
