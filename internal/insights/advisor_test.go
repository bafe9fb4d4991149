package insights

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/compass/internal/assessment"
)

type entitlement struct {
	premium bool
	err     error
}

func (e entitlement) IsAuthenticated(context.Context) bool { return e.premium }

func (e entitlement) HasFeature(_ context.Context, feature string) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	return e.premium && feature == assessment.FeatureAIInsights, nil
}

func premium() *Advisor {
	return NewAdvisor(entitlement{premium: true}, nil)
}

func sampleRecord() assessment.Record {
	return assessment.Record{
		SelectedValues:    []string{"independence", "belonging", "friendship", "family", "learning"},
		PrioritizedValues: []string{"belonging", "friendship", "independence", "family", "learning"},
		ReflectionResponses: map[string]string{
			"friendship": "My friends taught me to learn and read every day.",
		},
	}
}

func TestGenerateInsightsPremium(t *testing.T) {
	out := premium().GenerateInsights(context.Background(), sampleRecord())
	kinds := map[Kind]Insight{}
	for _, in := range out {
		kinds[in.Kind] = in
	}

	require.Contains(t, kinds, KindFocus)
	assert.Contains(t, kinds[KindFocus].Title, "Connection")
	assert.ElementsMatch(t, []string{"belonging", "friendship", "family"}, kinds[KindFocus].ValueIDs)

	require.Contains(t, kinds, KindTension)
	require.Contains(t, kinds, KindConnection)
	assert.Equal(t, []string{"friendship", "learning"}, kinds[KindConnection].ValueIDs)

	require.Contains(t, kinds, KindDepth)
	assert.Equal(t, []string{"friendship"}, kinds[KindDepth].ValueIDs)
	require.Contains(t, kinds, KindBreadth)
}

func TestFallbacksWithoutEntitlement(t *testing.T) {
	ctx := context.Background()
	cases := map[string]*Advisor{
		"nil entitlement": NewAdvisor(nil, nil),
		"not premium":     NewAdvisor(entitlement{}, nil),
		"check fails":     NewAdvisor(entitlement{premium: true, err: errors.New("down")}, nil),
	}
	for name, advisor := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, advisor.Available(ctx))
			assert.Empty(t, advisor.GenerateInsights(ctx, sampleRecord()))
			assert.Empty(t, advisor.RecommendedValues(ctx, sampleRecord(), 3))
			assert.Equal(t, GenericPrompts(), advisor.SuggestedPrompts(ctx, "honesty", 0))
			analysis := advisor.AnalyzeReflection(ctx, "honesty", "I will tell my friend the truth")
			assert.Equal(t, 7, analysis.WordCount)
			assert.Empty(t, analysis.Themes)
			assert.False(t, analysis.Actionable)
			actions := advisor.ActionRecommendations(ctx, []string{"honesty"}, 2)
			require.Len(t, actions, 2)
			assert.Empty(t, actions[0].ValueID)
		})
	}
}

func TestRecommendedValues(t *testing.T) {
	rec := assessment.Record{
		SelectedValues:    []string{"health", "honesty"},
		PrioritizedValues: []string{"health", "honesty"},
	}
	out := premium().RecommendedValues(context.Background(), rec, 4)
	require.Len(t, out, 4)
	for _, v := range out {
		assert.NotContains(t, rec.SelectedValues, v.ID)
	}
	assert.Equal(t, "wellbeing", out[0].Category)
}

func TestSuggestedPrompts(t *testing.T) {
	ctx := context.Background()
	a := premium()
	top := a.SuggestedPrompts(ctx, "courage", 0)
	assert.Len(t, top, 3)
	assert.Contains(t, top[2], "first")
	assert.Len(t, a.SuggestedPrompts(ctx, "courage", -1), 2)
	assert.Equal(t, GenericPrompts(), a.SuggestedPrompts(ctx, "telepathy", 0))
}

func TestAnalyzeReflection(t *testing.T) {
	analysis := premium().AnalyzeReflection(context.Background(), "honesty",
		"I'm proud of my family but tired. I will plan more time at home.")
	assert.Equal(t, "mixed", analysis.Tone)
	assert.True(t, analysis.Actionable)
	assert.Contains(t, analysis.Themes, "family")
	assert.NotContains(t, analysis.Themes, "honesty")
}

func TestActionRecommendationsRoundRobin(t *testing.T) {
	out := premium().ActionRecommendations(context.Background(), []string{"health", "joy", "unknown"}, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "health", out[0].ValueID)
	assert.Equal(t, "joy", out[1].ValueID)
	assert.Equal(t, "health", out[2].ValueID)

	fallback := premium().ActionRecommendations(context.Background(), []string{"unknown"}, 5)
	assert.Len(t, fallback, len(GenericActions()))
}
