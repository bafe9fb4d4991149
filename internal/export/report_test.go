package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/insights"
)

func sampleReport() Report {
	return Report{
		GeneratedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Record: assessment.Record{
			SelectedValues:    []string{"honesty", "courage", "mystery"},
			PrioritizedValues: []string{"courage", "honesty"},
			ReflectionResponses: map[string]string{
				"honesty": "Truth first.\nAlways.",
				"mystery": "Unlisted value.",
				"courage": "Speak up <b>anyway</b>.",
			},
		},
		Insights: []insights.Insight{{Title: "Lean toward Character", Body: "Both top values are about character."}},
		Actions:  []insights.Action{{ValueID: "courage", Text: "Face one fear."}, {Text: "Share your values."}},
	}
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "markdown": FormatMarkdown, "html": FormatHTML} {
		got, err := ParseFormat(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
	assert.Equal(t, ".html", FormatHTML.Extension())
	assert.Equal(t, ".md", FormatMarkdown.Extension())
}

func TestMarkdownReport(t *testing.T) {
	md := string(NewRenderer(nil).Markdown(sampleReport()))

	assert.Contains(t, md, "_Generated 1 March 2026 09:30_")
	assert.Contains(t, md, "1. **Courage**")
	assert.Contains(t, md, "2. **Honesty**")
	assert.Contains(t, md, "Honesty, Courage, mystery")
	assert.Contains(t, md, "> Truth first.\n> Always.")
	assert.Contains(t, md, "- **Lean toward Character.**")
	assert.Contains(t, md, "- [ ] Face one fear. (Courage)")
	assert.Contains(t, md, "- [ ] Share your values.\n")

	// Ranked reflections come first, unranked ones after.
	courage := strings.Index(md, "### Courage")
	honesty := strings.Index(md, "### Honesty")
	mystery := strings.Index(md, "### mystery")
	assert.True(t, courage < honesty && honesty < mystery)
}

func TestMarkdownEmptyReport(t *testing.T) {
	md := string(NewRenderer(nil).Markdown(Report{}))
	assert.Contains(t, md, "No ranking yet.")
	assert.Contains(t, md, "No values selected.")
	assert.NotContains(t, md, "## Reflections")
	assert.NotContains(t, md, "## Insights")
	assert.NotContains(t, md, "_Generated")
}

func TestHTMLReport(t *testing.T) {
	page, err := NewRenderer(nil).HTML(sampleReport())
	require.NoError(t, err)
	out := string(page)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<h1>Values Assessment</h1>")
	assert.Contains(t, out, "<strong>Courage</strong>")
	assert.Contains(t, out, "<blockquote>")
	assert.NotContains(t, out, "<b>anyway</b>", "raw html in reflections is not passed through")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.html")
	rd := NewRenderer(nil)
	require.NoError(t, rd.WriteFile(context.Background(), path, sampleReport(), FormatHTML))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<html")

	_, err = rd.Render(sampleReport(), Format("pdf"))
	assert.Error(t, err)
}
