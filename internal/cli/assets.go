package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/source"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List watched assets and their offsets",
	Args:  cobra.NoArgs,
	RunE:  assetsAction,
}

func assetsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(cfg.Assets) == 0 {
		fmt.Fprintln(out, noAssetsMessage)
		return nil
	}

	registry, err := newRegistry(cfg, slog.Default())
	if err != nil {
		return err
	}
	printAssets(out, cfg.Assets, registry)
	return nil
}

func printAssets(w io.Writer, assets []config.Asset, registry *source.Registry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Platform", "ID", "Link", "Offsets"})
	for _, a := range assets {
		platform := "unsupported"
		if adapter, err := registry.Resolve(a.Link); err == nil {
			platform = adapter.Name()
		}

		offsets := make([]string, 0, len(a.Offsets))
		for _, o := range a.Offsets {
			offsets = append(offsets, fmt.Sprintf("%s %s", o.Date, markTime(o.Mark)))
		}
		t.AppendRow(table.Row{a.DisplayName(), platform, a.ID(), a.Link, strings.Join(offsets, "\n")})
	}
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// markTime shows an epoch-ms mark as a local timestamp. Marks that are not
// positive numbers, such as the "0" no-update mark, are shown as-is.
func markTime(mark string) string {
	ms, err := strconv.ParseInt(mark, 10, 64)
	if err != nil || ms <= 0 {
		return mark
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
