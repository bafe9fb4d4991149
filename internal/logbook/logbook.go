// Package logbook keeps a human-readable journal of the user's way through
// the assessment. The TUI shows its tail next to the wizard.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/compass/internal/assessment"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Namer resolves a value id to a display name.
type Namer func(id string) string

// Logbook appends journey entries to a text file.
type Logbook struct {
	path  string
	clock func() time.Time
	namer Namer
	mu    sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithNamer renders value ids through namer.
func WithNamer(namer Namer) Option {
	return func(l *Logbook) {
		if namer != nil {
			l.namer = namer
		}
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: create dir: %w", err)
	}
	l := &Logbook{
		path:  path,
		clock: time.Now,
		namer: func(id string) string { return id },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, 0, maxLines)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		total++
		if len(ring) == maxLines {
			copy(ring, ring[1:])
			ring = ring[:maxLines-1]
		}
		ring = append(ring, scanner.Text())
	}
	if len(ring) == 0 {
		return nil, total
	}
	return ring, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Attach journals every bus event. Saves are not recorded; they happen on
// every change and would drown the rest.
func (l *Logbook) Attach(bus *assessment.Bus) []assessment.Subscription {
	return bus.OnAll(l.Record)
}

// Record journals a single event.
func (l *Logbook) Record(event assessment.Event) {
	switch e := event.(type) {
	case assessment.Initialized:
		tier := "standard"
		if e.IsPremium {
			tier = "premium"
		}
		l.Info("Started %s assessment at %s (%d steps)", tier, e.CurrentStep, e.TotalSteps)
	case assessment.ProgressLoaded:
		l.Info("Resumed with %d selected and %d ranked values", e.SelectedValues, e.PrioritizedValues)
	case assessment.StepChanged:
		verb := "Moved on to"
		if e.Direction == assessment.DirectionBackward {
			verb = "Went back to"
		}
		l.Info("%s %s", verb, e.Step)
	case assessment.NavigationBlocked:
		l.Warn("Cannot leave %s yet: requirements not met", e.CurrentStep)
	case assessment.ValueToggled:
		if e.IsSelected {
			l.Info("Selected %s (%d total)", l.namer(e.ValueID), e.Count)
		} else {
			l.Info("Removed %s (%d total)", l.namer(e.ValueID), e.Count)
		}
	case assessment.PrioritizationChanged:
		if e.MovedValueID != "" {
			l.Info("Moved %s %s to #%d", l.namer(e.MovedValueID), e.Direction, e.NewIndex+1)
		} else if len(e.PrioritizedValues) > 0 {
			l.Info("Ranking updated, %s is #1", l.namer(e.PrioritizedValues[0]))
		} else {
			l.Info("Ranking cleared")
		}
	case assessment.ReflectionSaved:
		if e.TextLength == 0 {
			l.Info("Cleared reflection on %s", l.namer(e.ValueID))
		} else {
			l.Info("Reflected on %s (%d characters)", l.namer(e.ValueID), e.TextLength)
		}
	case assessment.ErrorEvent:
		l.Error("Problem during %s: %v", e.Context, e.Err)
	case assessment.AssessmentReset:
		l.Info("Assessment restarted")
	}
}
