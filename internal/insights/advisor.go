// Package insights produces premium guidance from a finished or in-progress
// assessment. Every call is gated on the ai_insights feature and degrades to
// generic fallbacks instead of failing.
package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/values"
)

// Kind labels an insight.
type Kind string

const (
	KindFocus      Kind = "focus"
	KindTension    Kind = "tension"
	KindConnection Kind = "connection"
	KindDepth      Kind = "depth"
	KindBreadth    Kind = "breadth"
)

// Insight is one observation about the assessment.
type Insight struct {
	Kind     Kind
	Title    string
	Body     string
	ValueIDs []string
}

// Action is one concrete next step tied to a value.
type Action struct {
	ValueID string
	Text    string
}

// Analysis summarizes a single reflection.
type Analysis struct {
	WordCount int
	// Themes are catalog value ids whose keywords appear in the text.
	Themes []string
	// Tone is "positive", "negative", "mixed" or "neutral".
	Tone string
	// Actionable reports whether the text mentions a concrete intention.
	Actionable bool
}

var genericPrompts = []string{
	"Why does this value matter to you?",
	"Describe a recent moment when you lived this value.",
	"What would change if you honoured this value more often?",
}

var genericActions = []string{
	"Pick your top value and write down one way to act on it this week.",
	"Share your top three values with someone you trust.",
	"Revisit this assessment in a month and compare your ranking.",
}

// GenericPrompts returns the prompts offered without the insights feature.
func GenericPrompts() []string {
	return append([]string(nil), genericPrompts...)
}

// GenericActions returns the actions offered without the insights feature.
func GenericActions() []string {
	return append([]string(nil), genericActions...)
}

// Advisor runs the heuristic engine over the values catalog.
type Advisor struct {
	entitlement assessment.Entitlement
	catalog     *values.Catalog
	logger      *zap.Logger
}

// Option customizes an Advisor.
type Option func(*Advisor)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Advisor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdvisor builds an advisor. A nil entitlement denies every premium call;
// a nil catalog uses values.Default.
func NewAdvisor(entitlement assessment.Entitlement, catalog *values.Catalog, opts ...Option) *Advisor {
	if catalog == nil {
		catalog = values.Default()
	}
	a := &Advisor{entitlement: entitlement, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Available reports whether premium results would be produced right now.
func (a *Advisor) Available(ctx context.Context) bool {
	return a.allowed(ctx, "available")
}

func (a *Advisor) allowed(ctx context.Context, op string) bool {
	if a.entitlement == nil {
		return false
	}
	ok, err := a.entitlement.HasFeature(ctx, assessment.FeatureAIInsights)
	if err != nil {
		a.logger.Warn("insights entitlement check failed", zap.String("op", op), zap.Error(err))
		return false
	}
	return ok
}

// run executes fn when entitled and returns fallback on denial or panic.
func run[T any](ctx context.Context, a *Advisor, op string, fallback func() T, fn func() T) (out T) {
	if !a.allowed(ctx, op) {
		return fallback()
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("insights engine failed", zap.String("op", op), zap.Any("panic", r))
			out = fallback()
		}
	}()
	return fn()
}

// GenerateInsights returns observations about record. Without the feature it
// returns nothing.
func (a *Advisor) GenerateInsights(ctx context.Context, record assessment.Record) []Insight {
	return run(ctx, a, "generate", func() []Insight { return nil }, func() []Insight {
		var out []Insight
		if in, ok := a.focusInsight(record.PrioritizedValues); ok {
			out = append(out, in)
		}
		out = append(out, a.tensionInsights(record.PrioritizedValues)...)
		out = append(out, a.connectionInsights(record)...)
		if in, ok := a.depthInsight(record); ok {
			out = append(out, in)
		}
		if in, ok := a.breadthInsight(record.SelectedValues); ok {
			out = append(out, in)
		}
		return out
	})
}

// RecommendedValues suggests up to limit unselected values that sit in the
// same categories as the user's highest priorities.
func (a *Advisor) RecommendedValues(ctx context.Context, record assessment.Record, limit int) []values.Value {
	return run(ctx, a, "recommend", func() []values.Value { return nil }, func() []values.Value {
		if limit <= 0 {
			limit = 3
		}
		chosen := make(map[string]struct{}, len(record.SelectedValues))
		for _, id := range record.SelectedValues {
			chosen[id] = struct{}{}
		}
		ranked := record.PrioritizedValues
		if len(ranked) == 0 {
			ranked = record.SelectedValues
		}
		var out []values.Value
		seen := make(map[string]struct{})
		for _, id := range ranked {
			v, ok := a.catalog.Get(id)
			if !ok {
				continue
			}
			for _, candidate := range a.catalog.ByCategory(v.Category) {
				if _, taken := chosen[candidate.ID]; taken {
					continue
				}
				if _, dup := seen[candidate.ID]; dup {
					continue
				}
				seen[candidate.ID] = struct{}{}
				out = append(out, candidate)
				if len(out) == limit {
					return out
				}
			}
		}
		return out
	})
}

// SuggestedPrompts returns reflection prompts for valueID. rank is the
// value's zero-based position in the ranking, or -1 when unranked.
func (a *Advisor) SuggestedPrompts(ctx context.Context, valueID string, rank int) []string {
	return run(ctx, a, "prompts", GenericPrompts, func() []string {
		v, ok := a.catalog.Get(valueID)
		if !ok {
			return GenericPrompts()
		}
		prompts := append([]string(nil), v.Prompts...)
		switch {
		case rank == 0:
			prompts = append(prompts, fmt.Sprintf("You ranked %s first. What would you sacrifice to protect it?", v.Name))
		case rank > 0:
			prompts = append(prompts, fmt.Sprintf("What keeps %s from being your top priority?", v.Name))
		}
		return prompts
	})
}

// AnalyzeReflection inspects one reflection. Without the feature only the
// word count is filled in.
func (a *Advisor) AnalyzeReflection(ctx context.Context, valueID, text string) Analysis {
	fallback := func() Analysis {
		return Analysis{WordCount: len(strings.Fields(text)), Tone: "neutral"}
	}
	return run(ctx, a, "analyze", fallback, func() Analysis {
		words := tokenize(text)
		analysis := Analysis{
			WordCount:  len(strings.Fields(text)),
			Themes:     a.themes(words, valueID),
			Tone:       tone(words),
			Actionable: actionable(words),
		}
		return analysis
	})
}

// ActionRecommendations returns up to limit next steps drawn from the top of
// the ranking.
func (a *Advisor) ActionRecommendations(ctx context.Context, prioritized []string, limit int) []Action {
	if limit <= 0 {
		limit = 3
	}
	fallback := func() []Action {
		out := make([]Action, 0, len(genericActions))
		for _, text := range genericActions {
			out = append(out, Action{Text: text})
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out
	}
	return run(ctx, a, "actions", fallback, func() []Action {
		var out []Action
		// Round-robin across the ranking so the top values each get one
		// action before any gets a second.
		for round := 0; len(out) < limit; round++ {
			added := false
			for _, id := range prioritized {
				v, ok := a.catalog.Get(id)
				if !ok || round >= len(v.Actions) {
					continue
				}
				out = append(out, Action{ValueID: id, Text: v.Actions[round]})
				added = true
				if len(out) == limit {
					break
				}
			}
			if !added {
				break
			}
		}
		if len(out) == 0 {
			return fallback()
		}
		return out
	})
}

func (a *Advisor) focusInsight(prioritized []string) (Insight, bool) {
	top := prioritized
	if len(top) > 5 {
		top = top[:5]
	}
	if len(top) < 2 {
		return Insight{}, false
	}
	counts := map[string]int{}
	for _, id := range top {
		if v, ok := a.catalog.Get(id); ok {
			counts[v.Category]++
		}
	}
	best, bestCount := "", 0
	for _, cat := range a.catalog.Categories() {
		if counts[cat.ID] > bestCount {
			best, bestCount = cat.ID, counts[cat.ID]
		}
	}
	if bestCount < 2 {
		return Insight{}, false
	}
	cat, _ := a.catalog.Category(best)
	var ids []string
	for _, id := range top {
		if v, ok := a.catalog.Get(id); ok && v.Category == best {
			ids = append(ids, id)
		}
	}
	return Insight{
		Kind:     KindFocus,
		Title:    fmt.Sprintf("Your priorities lean toward %s", cat.Name),
		Body:     fmt.Sprintf("%d of your top %d values belong to %s. Decisions that serve this area are likely to feel most meaningful.", bestCount, len(top), cat.Name),
		ValueIDs: ids,
	}, true
}

// tensions pairs values that commonly pull in opposite directions.
var tensions = [][2]string{
	{"independence", "belonging"},
	{"security", "courage"},
	{"achievement", "balance"},
	{"excellence", "joy"},
	{"independence", "family"},
	{"security", "curiosity"},
}

func (a *Advisor) tensionInsights(prioritized []string) []Insight {
	top := prioritized
	if len(top) > 5 {
		top = top[:5]
	}
	in := make(map[string]struct{}, len(top))
	for _, id := range top {
		in[id] = struct{}{}
	}
	var out []Insight
	for _, pair := range tensions {
		_, first := in[pair[0]]
		_, second := in[pair[1]]
		if !first || !second {
			continue
		}
		out = append(out, Insight{
			Kind:     KindTension,
			Title:    fmt.Sprintf("%s and %s can compete", a.catalog.Name(pair[0]), a.catalog.Name(pair[1])),
			Body:     "Both rank highly for you. Naming where each one wins ahead of time makes trade-offs easier.",
			ValueIDs: []string{pair[0], pair[1]},
		})
	}
	return out
}

func (a *Advisor) connectionInsights(record assessment.Record) []Insight {
	selected := make(map[string]struct{}, len(record.SelectedValues))
	for _, id := range record.SelectedValues {
		selected[id] = struct{}{}
	}
	ids := make([]string, 0, len(record.ReflectionResponses))
	for id := range record.ReflectionResponses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []Insight
	for _, id := range ids {
		for _, theme := range a.themes(tokenize(record.ReflectionResponses[id]), id) {
			if _, ok := selected[theme]; !ok {
				continue
			}
			out = append(out, Insight{
				Kind:     KindConnection,
				Title:    fmt.Sprintf("%s supports %s", a.catalog.Name(id), a.catalog.Name(theme)),
				Body:     fmt.Sprintf("Your reflection on %s also speaks to %s. Acting on one is likely to strengthen the other.", a.catalog.Name(id), a.catalog.Name(theme)),
				ValueIDs: []string{id, theme},
			})
		}
	}
	return out
}

func (a *Advisor) depthInsight(record assessment.Record) (Insight, bool) {
	var shallow []string
	for _, id := range record.PrioritizedValues {
		text, ok := record.ReflectionResponses[id]
		if ok && len(strings.Fields(text)) < 15 {
			shallow = append(shallow, id)
		}
	}
	if len(shallow) == 0 {
		return Insight{}, false
	}
	names := make([]string, 0, len(shallow))
	for _, id := range shallow {
		names = append(names, a.catalog.Name(id))
	}
	return Insight{
		Kind:     KindDepth,
		Title:    "Some reflections are brief",
		Body:     fmt.Sprintf("Consider expanding on %s with a concrete example from the last month.", strings.Join(names, ", ")),
		ValueIDs: shallow,
	}, true
}

func (a *Advisor) breadthInsight(selected []string) (Insight, bool) {
	if len(selected) == 0 {
		return Insight{}, false
	}
	covered := map[string]struct{}{}
	for _, id := range selected {
		if v, ok := a.catalog.Get(id); ok {
			covered[v.Category] = struct{}{}
		}
	}
	var missing []string
	for _, cat := range a.catalog.Categories() {
		if _, ok := covered[cat.ID]; !ok {
			missing = append(missing, cat.Name)
		}
	}
	if len(missing) == 0 || len(missing) == len(a.catalog.Categories()) {
		return Insight{}, false
	}
	return Insight{
		Kind:  KindBreadth,
		Title: "Areas you did not choose",
		Body:  fmt.Sprintf("None of your values come from %s. That can be a deliberate choice; check that it is.", strings.Join(missing, ", ")),
	}, true
}

// themes returns catalog ids other than self whose keywords appear in words,
// in catalog order.
func (a *Advisor) themes(words map[string]struct{}, self string) []string {
	var out []string
	for _, v := range a.catalog.All() {
		if v.ID == self {
			continue
		}
		for _, kw := range v.Keywords {
			if _, ok := words[strings.ToLower(kw)]; ok {
				out = append(out, v.ID)
				break
			}
		}
	}
	return out
}
