// Package digest renders a poll report for people or for other programs.
package digest

import (
	"io"
	"time"

	"github.com/ppiankov/vidwatch/internal/poll"
	"github.com/ppiankov/vidwatch/internal/source"
)

const (
	itemDateLayout = "01-02 15:04"
	noItemsMessage = "No new videos found."
)

// Section is one asset's part of the report.
type Section struct {
	Name     string
	Link     string
	Platform string
	Items    []source.Item
	Err      error
}

// Input is the full input for a formatter. Item dates are shown in Location
// (time.Local when nil).
type Input struct {
	Sections  []Section
	StartedAt time.Time
	Location  *time.Location
}

// Formatter writes a formatted report to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
}

// FromReport converts a poll report to formatter input.
func FromReport(r poll.Report) Input {
	in := Input{StartedAt: r.StartedAt, Sections: make([]Section, 0, len(r.Results))}
	for _, res := range r.Results {
		in.Sections = append(in.Sections, Section{
			Name:     res.Asset.DisplayName(),
			Link:     res.Asset.Link,
			Platform: res.Platform,
			Items:    res.Items,
			Err:      res.Err,
		})
	}
	return in
}

// New returns the formatter for a --format value, or nil if unknown.
func New(format string, color bool) Formatter {
	switch format {
	case "", "terminal":
		return NewTerminal(color)
	case "json":
		return NewJSON()
	case "markdown", "md":
		return NewMarkdown()
	}
	return nil
}

// counts returns the number of items and how many are new.
func (s Section) counts() (total, fresh int) {
	for _, it := range s.Items {
		if it.IsNew {
			fresh++
		}
	}
	return len(s.Items), fresh
}

func (in Input) location() *time.Location {
	if in.Location == nil {
		return time.Local
	}
	return in.Location
}

// itemDate formats an item's epoch-ms date as month-day hour:minute.
func itemDate(it source.Item, loc *time.Location) string {
	t := it.PublishedAt()
	if t.IsZero() {
		return it.Date
	}
	return t.In(loc).Format(itemDateLayout)
}
