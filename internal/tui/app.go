// internal/tui/app.go
//
// This is the terminal wizard for compass. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: the App below, which mostly reads through to the assessment machine
// 2. Update: key presses and bus events become machine calls
// 3. View: a string rendered from the machine's current state
//
// Bus events are pushed into a channel by a listener and pulled back into the
// bubbletea loop one at a time by waitForEvent.

package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/export"
	"github.com/kingrea/compass/internal/insights"
	"github.com/kingrea/compass/internal/session"
)

// eventBuffer bounds how many bus events may wait for the UI loop. Events
// beyond it are dropped; the view always re-reads the machine anyway.
const eventBuffer = 256

// screen is what the main box shows on top of the current step.
type screen int

const (
	screenWizard  screen = iota // The step the machine is on
	screenEditing               // Textarea open on a reflection
	screenResults               // Summary after the last step
	screenConfirm               // Waiting for y/n on restart
)

type busEventMsg struct{ event assessment.Event }

type initializedMsg struct{ err error }

type restartedMsg struct{ err error }

type exportedMsg struct {
	path string
	err  error
}

// EntitlementChangedMsg is sent by the caller when the accounts file changed
// and the machine re-resolved premium access.
type EntitlementChangedMsg struct{ Premium bool }

// AppOption customizes App construction.
type AppOption func(*App)

// WithContext sets the context used for blocking machine calls.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// App is the main application model.
type App struct {
	ctx     context.Context
	session *session.Session
	machine *assessment.Machine
	events  chan assessment.Event
	subs    []assessment.Subscription
	ready   bool

	screen    screen
	selection list.Model
	rankIndex int
	reflectIx int
	editor    textarea.Model
	editingID string
	insights  []insights.Insight
	suggested []string
	report    export.Report

	statusMsg string

	width  int
	height int
}

// NewApp builds the wizard over an opened session.
func NewApp(sess *session.Session, opts ...AppOption) *App {
	selection := list.New(nil, list.NewDefaultDelegate(), 60, 20)
	selection.Title = "Choose the values that matter to you"
	selection.SetShowStatusBar(false)
	selection.SetFilteringEnabled(false)
	selection.DisableQuitKeybindings()

	editor := textarea.New()
	editor.Placeholder = "Write freely. ctrl+s saves, esc cancels."
	editor.SetWidth(60)
	editor.SetHeight(8)
	editor.CharLimit = 0

	a := &App{
		ctx:       context.Background(),
		session:   sess,
		machine:   sess.Machine,
		events:    make(chan assessment.Event, eventBuffer),
		selection: selection,
		editor:    editor,
		width:     100,
		height:    32,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.subs = sess.Bus.OnAll(a.forward)
	a.refreshSelection()
	return a
}

// Close detaches the app from the bus.
func (a *App) Close() {
	a.session.Bus.OffAll(a.subs)
	a.subs = nil
}

// forward runs on whichever goroutine emitted the event, including the UI
// loop itself, so it must never block.
func (a *App) forward(event assessment.Event) {
	select {
	case a.events <- event:
	default:
		a.session.Logger.Debug("tui event dropped", zap.String("event", string(event.Name())))
	}
}

func waitForEvent(ch <-chan assessment.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return busEventMsg{event: event}
	}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(waitForEvent(a.events), textarea.Blink, a.initialize())
}

func (a *App) initialize() tea.Cmd {
	return func() tea.Msg {
		return initializedMsg{err: a.machine.Initialize(a.ctx)}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.selection.SetSize(max(20, a.mainWidth()-4), max(8, msg.Height-14))
		a.editor.SetWidth(max(20, a.mainWidth()-6))
		return a, nil

	case initializedMsg:
		a.ready = true
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Could not start the assessment: %v", msg.err)
		}
		a.refreshSelection()
		a.enterStep()
		return a, nil

	case busEventMsg:
		a.handleEvent(msg.event)
		return a, waitForEvent(a.events)

	case EntitlementChangedMsg:
		if msg.Premium {
			a.statusMsg = "Premium unlocked: AI Insights is now available."
		} else {
			a.statusMsg = "Premium access ended."
		}
		return a, nil

	case restartedMsg:
		a.screen = screenWizard
		a.insights = nil
		a.rankIndex, a.reflectIx = 0, 0
		a.refreshSelection()
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Restart incomplete: %v", msg.err)
		} else {
			a.statusMsg = "Assessment restarted."
		}
		return a, nil

	case exportedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Export failed: %v", msg.err)
		} else {
			a.statusMsg = fmt.Sprintf("Report saved to %s", msg.path)
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	if a.screen == screenEditing {
		var cmd tea.Cmd
		a.editor, cmd = a.editor.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleEvent(event assessment.Event) {
	switch e := event.(type) {
	case assessment.NavigationBlocked:
		a.statusMsg = a.requirementText(e)
	case assessment.ErrorEvent:
		a.statusMsg = errorText(e)
	case assessment.StepChanged:
		a.enterStep()
	case assessment.ProgressSaved:
		if a.statusMsg == "" {
			a.statusMsg = "Progress saved."
		}
	case assessment.AssessmentReset, assessment.ProgressLoaded:
		a.refreshSelection()
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}
	if !a.ready {
		return a, nil
	}
	switch a.screen {
	case screenEditing:
		return a.handleEditorKey(msg)
	case screenConfirm:
		if key == "y" || key == "Y" {
			a.statusMsg = "Restarting..."
			return a, a.restart()
		}
		a.screen = screenWizard
		a.statusMsg = "Restart cancelled."
		return a, nil
	case screenResults:
		switch key {
		case "e":
			return a, a.export(export.FormatMarkdown)
		case "E":
			return a, a.export(export.FormatHTML)
		case "R":
			a.screen = screenConfirm
			return a, nil
		case "q":
			return a, tea.Quit
		case "esc", "p", "left":
			a.screen = screenWizard
			return a, nil
		}
		return a, nil
	}

	switch key {
	case "q":
		return a, tea.Quit
	case "n", "right":
		current := a.machine.CurrentStep()
		if int(current) >= a.machine.TotalSteps() {
			a.statusMsg = ""
			a.showResults()
			return a, nil
		}
		a.navigate(current+1, a.machine.NextStep())
		return a, nil
	case "p", "left":
		a.navigate(a.machine.CurrentStep()-1, a.machine.PreviousStep())
		return a, nil
	case "1", "2", "3", "4", "5":
		n, _ := strconv.Atoi(key)
		target := assessment.Step(n)
		a.navigate(target, a.machine.GoToStep(target) == target)
		return a, nil
	case "R":
		a.screen = screenConfirm
		return a, nil
	}

	switch a.machine.CurrentStep() {
	case assessment.StepSelection:
		return a.handleSelectionKey(msg)
	case assessment.StepPrioritization:
		return a.handleRankingKey(key)
	case assessment.StepReflection:
		return a.handleReflectionKey(key)
	case assessment.StepIntroduction:
		if key == "enter" {
			a.machine.NextStep()
		}
	case assessment.StepInsights:
		if key == "enter" {
			a.showResults()
		}
	}
	return a, nil
}

// navigate updates the screen after a navigation attempt without waiting for
// the bus event to come around.
func (a *App) navigate(target assessment.Step, moved bool) {
	if moved {
		a.statusMsg = ""
		a.enterStep()
		return
	}
	if target > a.machine.CurrentStep() {
		a.statusMsg = a.blockedText(target)
	}
}

func (a *App) handleSelectionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ", "space", "enter", "x":
		item, ok := a.selection.SelectedItem().(valueItem)
		if !ok {
			return a, nil
		}
		if _, err := a.machine.ToggleValue(item.value.ID); err != nil {
			a.statusMsg = err.Error()
		}
		a.refreshSelection()
		return a, nil
	}
	var cmd tea.Cmd
	a.selection, cmd = a.selection.Update(msg)
	return a, cmd
}

func (a *App) handleRankingKey(key string) (tea.Model, tea.Cmd) {
	ranked := a.machine.PrioritizedValues()
	switch key {
	case "up", "k":
		if a.rankIndex > 0 {
			a.rankIndex--
		}
	case "down", "j":
		if a.rankIndex < len(ranked)-1 {
			a.rankIndex++
		}
	case "K", "shift+up":
		if a.machine.MoveValueUp(a.rankIndex) {
			a.rankIndex--
		}
	case "J", "shift+down":
		if a.machine.MoveValueDown(a.rankIndex) {
			a.rankIndex++
		}
	}
	return a, nil
}

func (a *App) handleReflectionKey(key string) (tea.Model, tea.Cmd) {
	ranked := a.machine.PrioritizedValues()
	switch key {
	case "up", "k":
		if a.reflectIx > 0 {
			a.reflectIx--
		}
	case "down", "j":
		if a.reflectIx < len(ranked)-1 {
			a.reflectIx++
		}
	case "enter", "e":
		if len(ranked) == 0 {
			return a, nil
		}
		return a, a.openEditor(ranked[min(a.reflectIx, len(ranked)-1)], a.reflectIx)
	}
	return a, nil
}

func (a *App) openEditor(valueID string, rank int) tea.Cmd {
	a.editingID = valueID
	text, _ := a.machine.Reflection(valueID)
	a.editor.SetValue(text)
	a.suggested = a.promptsFor(valueID, rank)
	a.screen = screenEditing
	return a.editor.Focus()
}

func (a *App) promptsFor(valueID string, rank int) []string {
	if a.session.Advisor.Available(a.ctx) {
		return a.session.Advisor.SuggestedPrompts(a.ctx, valueID, rank)
	}
	if v, ok := a.session.Catalog.Get(valueID); ok && len(v.Prompts) > 0 {
		return v.Prompts
	}
	return insights.GenericPrompts()
}

func (a *App) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		id, text := a.editingID, a.editor.Value()
		if err := a.machine.SaveReflection(id, text); err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.closeEditor()
		a.statusMsg = a.reflectionStatus(id, text)
		return a, nil
	case "esc":
		a.closeEditor()
		return a, nil
	}
	var cmd tea.Cmd
	a.editor, cmd = a.editor.Update(msg)
	return a, cmd
}

// reflectionStatus summarizes a just-saved reflection. Themes and tone are
// only shown when insights are available.
func (a *App) reflectionStatus(valueID, text string) string {
	if strings.TrimSpace(text) == "" {
		return "Reflection removed."
	}
	advisor := a.session.Advisor
	analysis := advisor.AnalyzeReflection(a.ctx, valueID, text)
	status := fmt.Sprintf("Reflection saved (%d words).", analysis.WordCount)
	if !advisor.Available(a.ctx) {
		return status
	}
	themes := "none"
	if len(analysis.Themes) > 0 {
		names := make([]string, 0, len(analysis.Themes))
		for _, id := range analysis.Themes {
			names = append(names, a.session.Catalog.Name(id))
		}
		themes = strings.Join(names, ", ")
	}
	status += fmt.Sprintf(" Themes: %s. Tone: %s.", themes, analysis.Tone)
	if analysis.Actionable {
		status += " You named a next step."
	}
	return status
}

func (a *App) closeEditor() {
	a.editor.Blur()
	a.editingID = ""
	a.suggested = nil
	a.screen = screenWizard
}

// enterStep prepares per-step state after the machine moved.
func (a *App) enterStep() {
	switch a.machine.CurrentStep() {
	case assessment.StepSelection:
		a.refreshSelection()
	case assessment.StepPrioritization:
		a.syncRanking()
	case assessment.StepReflection:
		if n := len(a.machine.PrioritizedValues()); a.reflectIx >= n {
			a.reflectIx = max(0, n-1)
		}
	case assessment.StepInsights:
		a.insights = a.session.Advisor.GenerateInsights(a.ctx, a.machine.Snapshot())
	}
}

// syncRanking makes sure every selected value appears in the ranking, keeping
// the order the user already chose.
func (a *App) syncRanking() {
	ranked := a.machine.PrioritizedValues()
	merged := assessment.MergePriorities(ranked, a.machine.SelectedValues())
	if len(merged) != len(ranked) {
		if err := a.machine.SetPrioritizedValues(merged); err != nil {
			a.statusMsg = err.Error()
		}
	}
	if n := len(merged); a.rankIndex >= n {
		a.rankIndex = max(0, n-1)
	}
}

func (a *App) refreshSelection() {
	all := a.session.Catalog.All()
	items := make([]list.Item, 0, len(all))
	for _, v := range all {
		items = append(items, valueItem{value: v, selected: a.machine.IsSelected(v.ID)})
	}
	index := a.selection.Index()
	a.selection.SetItems(items)
	if index < len(items) {
		a.selection.Select(index)
	}
}

func (a *App) showResults() {
	a.report = a.session.Report(a.ctx)
	a.screen = screenResults
}

func (a *App) restart() tea.Cmd {
	return func() tea.Msg {
		return restartedMsg{err: a.machine.Restart(a.ctx)}
	}
}

func (a *App) export(format export.Format) tea.Cmd {
	a.statusMsg = "Exporting..."
	return func() tea.Msg {
		path, err := a.session.Export(a.ctx, "", format)
		return exportedMsg{path: path, err: err}
	}
}

func (a *App) requirementText(e assessment.NavigationBlocked) string {
	target := e.TargetStep
	if target == 0 {
		target = e.CurrentStep + 1
	}
	return a.blockedText(target)
}

// blockedText explains the first gate between the current step and target
// that does not hold.
func (a *App) blockedText(target assessment.Step) string {
	if int(target) > a.machine.TotalSteps() {
		if target == assessment.StepInsights {
			return "AI Insights need a premium account."
		}
		return "This is the last step. Press n to see your results."
	}
	step := a.machine.CurrentStep() + 1
	for step < target && a.machine.CanEnter(step) {
		step++
	}
	policy := a.machine.Policy()
	switch step {
	case assessment.StepPrioritization:
		return fmt.Sprintf("Select at least %s to continue.", plural(policy.MinSelections, "value"))
	case assessment.StepReflection:
		return fmt.Sprintf("Rank at least %s to continue.", plural(policy.MinPrioritized, "value"))
	case assessment.StepInsights:
		return fmt.Sprintf("Write at least %s to continue.", plural(policy.MinReflections, "reflection"))
	default:
		return "Complete this step first."
	}
}

func errorText(e assessment.ErrorEvent) string {
	switch e.Context {
	case assessment.ContextSaveProgress:
		return fmt.Sprintf("Could not save progress: %v", e.Err)
	case assessment.ContextLoadProgress:
		return "Saved progress could not be loaded; starting fresh."
	case assessment.ContextInitialization:
		return "Could not check your account; premium features are off."
	case assessment.ContextRestart:
		return fmt.Sprintf("Could not clear saved progress: %v", e.Err)
	default:
		return e.Error()
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if width <= 1 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
