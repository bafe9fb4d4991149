package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/compass/internal/assessment"
)

var (
	accentColor = lipgloss.Color("#5B8DEF")
	borderColor = lipgloss.Color("#444444")
	mutedColor  = lipgloss.Color("#888888")
	softColor   = lipgloss.Color("#AAAAAA")
	brandColor  = lipgloss.Color("#FF6B6B")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	hintStyle  = lipgloss.NewStyle().Foreground(softColor).MarginTop(1)
	cursorMark = lipgloss.NewStyle().Foreground(brandColor).Render("▸")
)

// layout splits the terminal into the main column and the progress panel.
func (a *App) layout() (int, int) {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(28, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}
	if leftWidth < 20 {
		leftWidth = width
		rightWidth = 0
	}
	return leftWidth, rightWidth
}

func (a *App) mainWidth() int {
	left, _ := a.layout()
	return left
}

// View renders the current screen.
func (a *App) View() string {
	leftWidth, rightWidth := a.layout()
	var content string
	switch {
	case !a.ready:
		content = "Loading your progress..."
	case a.screen == screenEditing:
		content = a.renderEditor()
	case a.screen == screenResults:
		content = a.renderResults()
	case a.screen == screenConfirm:
		content = a.renderConfirm()
	default:
		content = a.renderStep()
	}
	return a.renderStatusBoard(content, leftWidth, rightWidth)
}

func (a *App) renderStatusBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(brandColor).
		MarginBottom(1).
		Render("◎ COMPASS")
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(lipgloss.NewStyle().Width(max(20, leftWidth-4)).Render(mainContent))
	body := leftBox
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(a.renderProgressPanel(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(mutedColor).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	journey := a.session.Journey
	if journey == nil {
		return ""
	}
	lines, total := journey.Tail(8)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(journey.Path())
	if fileName == "." || fileName == "" {
		fileName = "journey"
	}
	head := titleStyle.Render(fmt.Sprintf("JOURNEY · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(softColor).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) renderProgressPanel(width int) string {
	current := a.machine.CurrentStep()
	total := a.machine.TotalSteps()
	lines := []string{titleStyle.Render(fmt.Sprintf("Step %d of %d", current, total))}
	for step := assessment.StepIntroduction; step <= assessment.StepInsights; step++ {
		mark := "·"
		switch {
		case int(step) > total:
			mark = "🔒"
		case step == current:
			mark = cursorMark
		case step < current:
			mark = "✓"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s", mark, step, step))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Selected:    %d", len(a.machine.SelectedValues())),
		fmt.Sprintf("Ranked:      %d", len(a.machine.PrioritizedValues())),
		fmt.Sprintf("Reflections: %d", a.machine.ReflectionCount()),
	)
	tier := "Standard"
	if a.machine.IsPremium() {
		tier = "Premium"
	}
	lines = append(lines, mutedStyle.Render("Account: "+tier))
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) renderStep() string {
	switch a.machine.CurrentStep() {
	case assessment.StepIntroduction:
		return a.renderIntroduction()
	case assessment.StepSelection:
		return a.renderSelection()
	case assessment.StepPrioritization:
		return a.renderRanking()
	case assessment.StepReflection:
		return a.renderReflection()
	case assessment.StepInsights:
		return a.renderInsights()
	}
	return ""
}

func (a *App) renderIntroduction() string {
	policy := a.machine.Policy()
	body := strings.Join([]string{
		"Your values are the principles that guide your choices.",
		"This assessment walks you through them in a few short steps:",
		"",
		fmt.Sprintf("  • choose at least %s that resonate with you", plural(policy.MinSelections, "value")),
		"  • put your chosen values in order of importance",
		fmt.Sprintf("  • reflect on at least %s in your own words", plural(policy.MinReflections, "value")),
		"",
		"Progress is saved as you go. Come back any time.",
	}, "\n")
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Discover your core values"),
		"",
		body,
		hintStyle.Render("Enter/n → begin    q → quit"),
	)
}

func (a *App) renderSelection() string {
	hint := hintStyle.Render("Space → toggle    ↑/↓ → move    n → next    p → back")
	return lipgloss.JoinVertical(lipgloss.Left, a.selection.View(), hint)
}

func (a *App) renderRanking() string {
	ranked := a.machine.PrioritizedValues()
	lines := []string{titleStyle.Render("Put your values in order"), ""}
	if len(ranked) == 0 {
		lines = append(lines, mutedStyle.Render("Nothing selected yet. Press p to choose values."))
	}
	for i, id := range ranked {
		prefix := "  "
		if i == a.rankIndex {
			prefix = cursorMark + " "
		}
		lines = append(lines, fmt.Sprintf("%s%d. %s", prefix, i+1, a.session.Catalog.Name(id)))
	}
	lines = append(lines, hintStyle.Render("↑/↓ → choose    K/J or shift+↑/↓ → move    n → next"))
	return strings.Join(lines, "\n")
}

func (a *App) renderReflection() string {
	ranked := a.machine.PrioritizedValues()
	width := a.mainWidth() - 10
	lines := []string{titleStyle.Render("Reflect on what each value means to you"), ""}
	for i, id := range ranked {
		prefix := "  "
		if i == a.reflectIx {
			prefix = cursorMark + " "
		}
		line := fmt.Sprintf("%s%d. %s", prefix, i+1, a.session.Catalog.Name(id))
		if text, ok := a.machine.Reflection(id); ok {
			line += "\n     " + mutedStyle.Render(truncate(text, max(10, width)))
		}
		lines = append(lines, line)
	}
	lines = append(lines, hintStyle.Render("↑/↓ → choose    Enter → write    n → next"))
	return strings.Join(lines, "\n")
}

func (a *App) renderEditor() string {
	name := a.session.Catalog.Name(a.editingID)
	lines := []string{titleStyle.Render(fmt.Sprintf("Reflecting on %s", name)), ""}
	if v, ok := a.session.Catalog.Get(a.editingID); ok && v.Description != "" {
		lines = append(lines, mutedStyle.Render(v.Description), "")
	}
	for _, prompt := range a.suggested {
		lines = append(lines, "  ? "+prompt)
	}
	lines = append(lines, "", a.editor.View())
	lines = append(lines, hintStyle.Render("ctrl+s → save    esc → cancel    empty text removes the reflection"))
	return strings.Join(lines, "\n")
}

func (a *App) renderInsights() string {
	lines := []string{titleStyle.Render("AI Insights"), ""}
	if len(a.insights) == 0 {
		lines = append(lines, mutedStyle.Render("No insights yet. Add more reflections for a richer picture."))
	}
	for _, insight := range a.insights {
		lines = append(lines, lipgloss.NewStyle().Bold(true).Render(insight.Title), insight.Body, "")
	}
	recommended := a.session.Advisor.RecommendedValues(a.ctx, a.machine.Snapshot(), 3)
	if len(recommended) > 0 {
		names := make([]string, 0, len(recommended))
		for _, v := range recommended {
			names = append(names, v.Name)
		}
		lines = append(lines, mutedStyle.Render("You might also explore: "+strings.Join(names, ", ")))
	}
	lines = append(lines, hintStyle.Render("Enter/n → results    p → back"))
	return strings.Join(lines, "\n")
}

func (a *App) renderResults() string {
	record := a.report.Record
	lines := []string{titleStyle.Render("Your values compass"), ""}
	for i, id := range record.PrioritizedValues {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, a.session.Catalog.Name(id)))
	}
	if len(record.PrioritizedValues) == 0 {
		lines = append(lines, mutedStyle.Render("No ranked values yet."))
	}
	lines = append(lines, "", fmt.Sprintf("%s selected · %s written",
		plural(len(record.SelectedValues), "value"),
		plural(len(record.ReflectionResponses), "reflection")))
	if len(a.report.Actions) > 0 {
		lines = append(lines, "", titleStyle.Render("Next steps"))
		for _, action := range a.report.Actions {
			if action.ValueID == "" {
				lines = append(lines, "  • "+action.Text)
				continue
			}
			lines = append(lines, fmt.Sprintf("  • %s: %s", a.session.Catalog.Name(action.ValueID), action.Text))
		}
	}
	lines = append(lines, hintStyle.Render("e → export markdown    E → export html    R → restart    p → back    q → quit"))
	return strings.Join(lines, "\n")
}

func (a *App) renderConfirm() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Foreground(brandColor).Render("Start over?"),
		"",
		"This clears every selection, ranking and reflection, including saved progress.",
		hintStyle.Render("y → restart    any other key → cancel"),
	)
}
