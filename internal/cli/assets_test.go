package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/source"
	"github.com/ppiankov/vidwatch/internal/watermark"
)

func TestPrintAssets(t *testing.T) {
	day, _ := watermark.ParseDate("2024-03-01")
	assets := []config.Asset{
		{Name: "alice", Link: "https://space.bilibili.com/42", Offsets: watermark.History{{Date: day, Mark: "0"}}},
		{Link: "https://www.youtube.com/@someone"},
	}
	registry := source.NewRegistry(source.Options{Logger: slog.New(slog.DiscardHandler)})

	var buf bytes.Buffer
	printAssets(&buf, assets, registry)
	out := buf.String()

	for _, want := range []string{"alice", "bilibili", assets[0].ID(), "2024-03-01 0", "NoN", "unsupported"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNewTableStyle(t *testing.T) {
	var buf bytes.Buffer
	tw := newTable(&buf)
	tw.AppendHeader(table.Row{"Latest Upload"})
	tw.AppendRow(table.Row{"x"})
	tw.Render()
	out := buf.String()

	for _, want := range []string{"╭", "╰", "LATEST UPLOAD"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Latest Upload") {
		t.Errorf("header not upper-cased:\n%s", out)
	}
}

func TestMarkTime(t *testing.T) {
	if got := markTime("0"); got != "0" {
		t.Errorf("markTime(0) = %q", got)
	}
	if got := markTime("soon"); got != "soon" {
		t.Errorf("markTime(soon) = %q", got)
	}
	if got := markTime("1700000000000"); !strings.HasPrefix(got, "2023-11-1") {
		t.Errorf("markTime = %q", got)
	}
}

func TestAssetsAction_Empty(t *testing.T) {
	dir := t.TempDir()
	useConfigDir(t, dir)
	writeConfigFile(t, dir, "assets: []\n")

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := assetsAction(cmd, nil); err != nil {
		t.Fatalf("assets: %v", err)
	}
	requireContains(t, out.String(), noAssetsMessage)
}
