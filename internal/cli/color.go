package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// colorScheme keeps command output consistent.
// Cyan: labels. Green: done or unlocked. Yellow: pending or locked.
// Colors are disabled automatically when output is not a TTY.
type colorScheme struct {
	title *color.Color
	label *color.Color
	value *color.Color
	ok    *color.Color
	warn  *color.Color
	muted *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		title: color.New(color.FgHiWhite, color.Bold),
		label: color.New(color.FgCyan),
		value: color.New(color.FgWhite),
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		muted: color.New(color.FgHiBlack),
	}
}

// field writes "label: value" with a padded label.
func (s *colorScheme) field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %s\n", s.label.Sprintf("%-12s", label+":"), s.value.Sprint(value))
}
