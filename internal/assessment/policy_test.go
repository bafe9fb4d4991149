package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyCanEnterMatchesDataPredicates(t *testing.T) {
	policy := DefaultPolicy()
	tests := []struct {
		name    string
		step    Step
		counts  Counts
		premium bool
		want    bool
	}{
		{name: "introduction always", step: StepIntroduction, want: true},
		{name: "selection always", step: StepSelection, want: true},
		{name: "prioritization needs selection", step: StepPrioritization, want: false},
		{name: "prioritization with selection", step: StepPrioritization, counts: Counts{Selected: 1}, want: true},
		{name: "reflection needs ranking", step: StepReflection, counts: Counts{Selected: 3}, want: false},
		{name: "reflection with ranking", step: StepReflection, counts: Counts{Prioritized: 1}, want: true},
		{name: "insights needs premium", step: StepInsights, counts: Counts{Prioritized: 1, Reflections: 1}, want: false},
		{name: "insights needs reflection", step: StepInsights, counts: Counts{Prioritized: 1}, premium: true, want: false},
		{name: "insights unlocked", step: StepInsights, counts: Counts{Prioritized: 1, Reflections: 1}, premium: true, want: true},
		{name: "zero step", step: 0, want: false},
		{name: "beyond insights", step: 6, counts: Counts{Selected: 9, Prioritized: 9, Reflections: 9}, premium: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.CanEnter(tt.step, tt.counts, tt.premium))
		})
	}
}

func TestPolicyLegacyThresholds(t *testing.T) {
	policy := LegacyPolicy()
	assert.False(t, policy.CanEnter(StepPrioritization, Counts{Selected: 4}, false))
	assert.True(t, policy.CanEnter(StepPrioritization, Counts{Selected: 5}, false))
	assert.False(t, policy.CanEnter(StepReflection, Counts{Prioritized: 2}, false))
	assert.True(t, policy.CanEnter(StepReflection, Counts{Prioritized: 3}, false))
}

func TestReconcileDecisionTable(t *testing.T) {
	policy := DefaultPolicy()
	tests := []struct {
		name    string
		counts  Counts
		premium bool
		want    Step
	}{
		{name: "empty", want: StepIntroduction},
		{name: "selected only", counts: Counts{Selected: 2}, want: StepPrioritization},
		{name: "prioritized without reflections", counts: Counts{Selected: 2, Prioritized: 2}, want: StepReflection},
		{name: "reflected standard", counts: Counts{Selected: 2, Prioritized: 2, Reflections: 1}, want: StepReflection},
		{name: "reflected premium", counts: Counts{Selected: 2, Prioritized: 2, Reflections: 1}, premium: true, want: StepInsights},
		{name: "reflections without ranking", counts: Counts{Selected: 1, Reflections: 3}, premium: true, want: StepPrioritization},
		{name: "ranking restored without selection", counts: Counts{Prioritized: 2}, want: StepReflection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Reconcile(tt.counts, tt.premium))
		})
	}
}

func TestReconcileWalksBackUnderStricterPolicy(t *testing.T) {
	policy := LegacyPolicy()
	assert.Equal(t, StepSelection, policy.Reconcile(Counts{Selected: 2}, false))
	assert.Equal(t, StepPrioritization, policy.Reconcile(Counts{Selected: 6, Prioritized: 2}, false))
}

func TestParseIntegrityMode(t *testing.T) {
	mode, err := ParseIntegrityMode("")
	require.NoError(t, err)
	assert.Equal(t, IntegrityDrop, mode)
	mode, err = ParseIntegrityMode(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, IntegrityReject, mode)
	_, err = ParseIntegrityMode("strict")
	assert.Error(t, err)
}

func TestMergePriorities(t *testing.T) {
	got := MergePriorities([]string{"b", "gone", "a", "b"}, []string{"a", "b", "c"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Equal(t, []string{"x"}, MergePriorities(nil, []string{"x"}))
	assert.Empty(t, MergePriorities([]string{"x"}, nil))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "Reflection", StepReflection.String())
	assert.Equal(t, "Step(9)", Step(9).String())
	assert.Equal(t, 4, TotalSteps(false))
	assert.Equal(t, 5, TotalSteps(true))
}
