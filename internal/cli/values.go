package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/compass/internal/values"
)

// newValuesCommand creates the 'compass values' command
func newValuesCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "values",
		Short: "List the values you can choose from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listValues(cmd, values.Default(), category)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list values in this category")

	return cmd
}

func listValues(cmd *cobra.Command, catalog *values.Catalog, category string) error {
	out := cmd.OutOrStdout()
	scheme := newColorScheme()
	categories := catalog.Categories()
	if category = strings.TrimSpace(category); category != "" {
		c, ok := catalog.Category(category)
		if !ok {
			ids := make([]string, len(categories))
			for i, c := range categories {
				ids[i] = c.ID
			}
			return fmt.Errorf("unknown category %q (available: %s)", category, strings.Join(ids, ", "))
		}
		categories = []values.Category{c}
	}
	for i, c := range categories {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, scheme.title.Sprint(c.Name))
		for _, v := range catalog.ByCategory(c.ID) {
			fmt.Fprintf(out, "  %s %s %s\n", scheme.label.Sprintf("%-14s", v.ID), v.Name, scheme.muted.Sprint(v.Description))
		}
	}
	return nil
}
