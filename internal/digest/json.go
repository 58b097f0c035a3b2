package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonReport struct {
	Meta   jsonMeta    `json:"meta"`
	Assets []jsonAsset `json:"assets"`
}

type jsonMeta struct {
	StartedAt string `json:"started_at,omitempty"`
	Assets    int    `json:"assets"`
	Items     int    `json:"items"`
	New       int    `json:"new"`
	Failures  int    `json:"failures"`
}

type jsonAsset struct {
	Name     string     `json:"name"`
	Link     string     `json:"link"`
	Platform string     `json:"platform,omitempty"`
	Error    string     `json:"error,omitempty"`
	Items    []jsonItem `json:"items"`
}

type jsonItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Date        string `json:"date"`
	PublishedAt string `json:"published_at,omitempty"`
	IsNew       bool   `json:"is_new"`
}

// JSONFormatter formats a report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	out := jsonReport{Assets: make([]jsonAsset, 0, len(input.Sections))}
	if !input.StartedAt.IsZero() {
		out.Meta.StartedAt = input.StartedAt.UTC().Format(time.RFC3339)
	}

	for _, s := range input.Sections {
		ja := jsonAsset{
			Name:     s.Name,
			Link:     s.Link,
			Platform: s.Platform,
			Items:    make([]jsonItem, 0, len(s.Items)),
		}
		if s.Err != nil {
			ja.Error = s.Err.Error()
			out.Meta.Failures++
		}
		total, fresh := s.counts()
		out.Meta.Items += total
		out.Meta.New += fresh

		for _, it := range s.Items {
			ji := jsonItem{ID: it.ID, Title: it.Title, URL: it.URL, Date: it.Date, IsNew: it.IsNew}
			if t := it.PublishedAt(); !t.IsZero() {
				ji.PublishedAt = t.UTC().Format(time.RFC3339)
			}
			ja.Items = append(ja.Items, ji)
		}
		out.Assets = append(out.Assets, ja)
	}
	out.Meta.Assets = len(out.Assets)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
