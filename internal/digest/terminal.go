package digest

import (
	"fmt"
	"io"
)

// TerminalFormatter prints one block per asset: a header line, one line per
// item marked "+" (new) or "-" (seen before), and a blank separator.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	loc := input.location()
	for _, s := range input.Sections {
		if _, err := fmt.Fprintln(w, f.bold(fmt.Sprintf("[%s](%s)'s new videos", s.Name, s.Link))); err != nil {
			return err
		}
		// Failures are reported on stderr by the poll loop.
		if s.Err == nil {
			if len(s.Items) == 0 {
				fmt.Fprintln(w, f.dim(noItemsMessage))
			}
			for _, it := range s.Items {
				mark := f.dim("-")
				if it.IsNew {
					mark = f.green("+")
				}
				fmt.Fprintf(w, "%s %s | %s | %s\n", mark, it.URL, itemDate(it, loc), it.Title)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
