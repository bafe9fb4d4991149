// Package export renders an assessment as a Markdown or HTML report.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/filelock"
	"github.com/kingrea/compass/internal/insights"
	"github.com/kingrea/compass/internal/values"
)

// Format selects the report encoding.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown" or "html".
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", raw)
	}
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".md"
}

// Report is everything a rendered report shows.
type Report struct {
	GeneratedAt time.Time
	Record      assessment.Record
	Insights    []insights.Insight
	Actions     []insights.Action
}

// Renderer turns reports into documents using catalog names.
type Renderer struct {
	catalog  *values.Catalog
	markdown goldmark.Markdown
}

// NewRenderer builds a renderer. A nil catalog uses values.Default.
func NewRenderer(catalog *values.Catalog) *Renderer {
	if catalog == nil {
		catalog = values.Default()
	}
	return &Renderer{
		catalog:  catalog,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Markdown renders r as a Markdown document.
func (rd *Renderer) Markdown(r Report) []byte {
	var b strings.Builder
	b.WriteString("# Values Assessment\n\n")
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", r.GeneratedAt.Format("2 January 2006 15:04"))
	}

	b.WriteString("## Your Top Values\n\n")
	if len(r.Record.PrioritizedValues) == 0 {
		b.WriteString("No ranking yet.\n\n")
	}
	for i, id := range r.Record.PrioritizedValues {
		fmt.Fprintf(&b, "%d. **%s**", i+1, rd.catalog.Name(id))
		if v, ok := rd.catalog.Get(id); ok {
			fmt.Fprintf(&b, ": %s", v.Description)
		}
		b.WriteString("\n")
	}
	if len(r.Record.PrioritizedValues) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Selected Values\n\n")
	if len(r.Record.SelectedValues) == 0 {
		b.WriteString("No values selected.\n\n")
	} else {
		names := make([]string, 0, len(r.Record.SelectedValues))
		for _, id := range r.Record.SelectedValues {
			names = append(names, rd.catalog.Name(id))
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n\n")
	}

	if len(r.Record.ReflectionResponses) > 0 {
		b.WriteString("## Reflections\n\n")
		for _, id := range reflectionOrder(r.Record) {
			fmt.Fprintf(&b, "### %s\n\n", rd.catalog.Name(id))
			for _, line := range strings.Split(strings.TrimSpace(r.Record.ReflectionResponses[id]), "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "- **%s.** %s\n", in.Title, in.Body)
		}
		b.WriteString("\n")
	}

	if len(r.Actions) > 0 {
		b.WriteString("## Next Steps\n\n")
		for _, a := range r.Actions {
			if a.ValueID != "" {
				fmt.Fprintf(&b, "- [ ] %s (%s)\n", a.Text, rd.catalog.Name(a.ValueID))
			} else {
				fmt.Fprintf(&b, "- [ ] %s\n", a.Text)
			}
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// HTML renders r as a standalone HTML page.
func (rd *Renderer) HTML(r Report) ([]byte, error) {
	var body bytes.Buffer
	if err := rd.markdown.Convert(rd.Markdown(r), &body); err != nil {
		return nil, fmt.Errorf("export: render html: %w", err)
	}
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString("Values Assessment"))
	page.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}blockquote{color:#555;border-left:3px solid #ccc;margin-left:0;padding-left:1rem}</style>\n")
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Render encodes r in format.
func (rd *Renderer) Render(r Report, format Format) ([]byte, error) {
	switch format {
	case FormatHTML:
		return rd.HTML(r)
	case FormatMarkdown, "":
		return rd.Markdown(r), nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

// WriteFile renders r and writes it to path under a file lock.
func (rd *Renderer) WriteFile(ctx context.Context, path string, r Report, format Format) error {
	data, err := rd.Render(r, format)
	if err != nil {
		return err
	}
	if err := filelock.LockAndWrite(ctx, path, data); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// reflectionOrder lists reflections in ranking order, then any others by id.
func reflectionOrder(rec assessment.Record) []string {
	seen := make(map[string]struct{}, len(rec.ReflectionResponses))
	var out []string
	for _, id := range rec.PrioritizedValues {
		if _, ok := rec.ReflectionResponses[id]; ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id := range rec.ReflectionResponses {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
