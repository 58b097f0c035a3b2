package digest

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats a report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	loc := input.location()

	items, fresh := 0, 0
	for _, s := range input.Sections {
		t, n := s.counts()
		items += t
		fresh += n
	}

	fmt.Fprintf(w, "# vidwatch report\n\n")
	if !input.StartedAt.IsZero() {
		fmt.Fprintf(w, "%s: ", input.StartedAt.In(loc).Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "%d assets, %d videos, %d new\n\n", len(input.Sections), items, fresh)

	for _, s := range input.Sections {
		fmt.Fprintf(w, "## [%s](%s)\n\n", escapeMarkdown(s.Name), s.Link)
		if s.Err != nil {
			fmt.Fprintf(w, "error: %s\n\n", s.Err)
			continue
		}
		if len(s.Items) == 0 {
			fmt.Fprintf(w, "%s\n\n", noItemsMessage)
			continue
		}
		for _, it := range s.Items {
			title := escapeMarkdown(it.Title)
			if title == "" {
				title = it.ID
			}
			line := fmt.Sprintf("- [%s](%s) %s", title, it.URL, itemDate(it, loc))
			if it.IsNew {
				line += " **new**"
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	"\n", " ",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
