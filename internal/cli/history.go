package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/store"
)

var (
	historySince  string
	historyAsset  string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show videos recorded by earlier runs",
	Args:  cobra.NoArgs,
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "7d", "time window (e.g. 7d, 48h)")
	historyCmd.Flags().StringVar(&historyAsset, "asset", "", "only show this asset id")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
}

func historyAction(cmd *cobra.Command, _ []string) error {
	if historyFormat != "terminal" && historyFormat != "json" && historyFormat != "" {
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if cfg.Storage.Disabled {
		return errors.New("history is disabled (storage.disabled: true)")
	}
	if historyAsset != "" && cfg.AssetByID(historyAsset) == nil {
		return fmt.Errorf("unknown asset id %q (see 'vidwatch assets')", historyAsset)
	}

	sinceDur, err := parseDuration(historySince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}
	since := time.Now().Add(-sinceDur)

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd)
	items, err := db.RecentItems(ctx, since, historyAsset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		return printHistoryJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintf(out, "No videos recorded in the last %s. Run 'vidwatch poll' first.\n", formatWindow(sinceDur))
		return nil
	}

	stats, err := db.AssetStats(ctx, since)
	if err != nil {
		return err
	}
	printHistory(out, items, stats, sinceDur, time.Now())
	return nil
}

func printHistory(w io.Writer, items []store.Item, stats []store.AssetStats, since time.Duration, now time.Time) {
	fmt.Fprintf(w, "vidwatch history: last %s, %d videos from %d assets\n\n", formatWindow(since), len(items), len(stats))

	t := newTable(w)
	t.AppendHeader(table.Row{"Published", "Asset", "Platform", "Title", "URL", "First Seen"})
	for _, it := range items {
		t.AppendRow(table.Row{
			it.PublishedAt.Local().Format("01-02 15:04"),
			it.AssetName,
			it.Platform,
			it.Title,
			it.URL,
			humanize.RelTime(it.FirstSeenAt, now, "ago", "from now"),
		})
	}
	t.Render()

	if len(stats) < 2 {
		return
	}
	fmt.Fprintln(w)
	s := newTable(w)
	s.AppendHeader(table.Row{"Asset", "Platform", "Videos", "Latest Upload"})
	for _, as := range stats {
		s.AppendRow(table.Row{
			as.AssetName,
			as.Platform,
			humanize.Comma(int64(as.Items)),
			humanize.RelTime(as.LastPublished, now, "ago", "from now"),
		})
	}
	s.Render()
}

type jsonHistoryItem struct {
	AssetID     string `json:"asset_id"`
	AssetName   string `json:"asset_name"`
	Platform    string `json:"platform"`
	ItemID      string `json:"item_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	FirstSeenAt string `json:"first_seen_at"`
	RunID       string `json:"run_id,omitempty"`
}

func printHistoryJSON(w io.Writer, items []store.Item) error {
	out := make([]jsonHistoryItem, 0, len(items))
	for _, it := range items {
		out = append(out, jsonHistoryItem{
			AssetID:     it.AssetID,
			AssetName:   it.AssetName,
			Platform:    it.Platform,
			ItemID:      it.ItemID,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt.UTC().Format(time.RFC3339),
			FirstSeenAt: it.FirstSeenAt.UTC().Format(time.RFC3339),
			RunID:       it.RunID,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"items": out})
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func formatWindow(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return d.String()
}
