package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/privacy"
	"github.com/ppiankov/vidwatch/internal/signing"
	"github.com/ppiankov/vidwatch/internal/store"
)

// staleDays flags assets whose latest recorded upload is older than this.
const staleDays = 30

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, cookies, signing script, and database",
	Args:  cobra.NoArgs,
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(w, false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(w, true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(w, false, "config.yaml: %v", err)
		return errors.New("some checks failed")
	}
	printCheck(w, true, "config.yaml (%d assets)", len(cfg.Assets))

	// Assets
	registry, err := newRegistry(cfg, slog.Default())
	if err != nil {
		printCheck(w, false, "privacy.redact: %v", err)
		return errors.New("some checks failed")
	}
	needs := map[string]bool{}
	for _, a := range cfg.Assets {
		adapter, err := registry.Resolve(a.Link)
		if err != nil {
			printCheck(w, false, "asset %s: %v", a.DisplayName(), err)
			ok = false
			continue
		}
		needs[adapter.Name()] = true
	}

	// Cookies
	for _, platform := range []string{"bilibili", "kuaishou", "ixigua", "douyin"} {
		if !needs[platform] {
			continue
		}
		if c := cfg.Cookies.For(platform); c != "" {
			printCheck(w, true, "%s cookie: %s", platform, privacy.MaskCookie(c))
		} else {
			printInfo(w, "%s cookie not set; requests may be rejected", platform)
		}
	}

	// Signing script
	scriptPath := cfg.ScriptPath(configDir)
	if _, err := signing.LoadEvaluator(scriptPath, cfg.Signing.ScriptTimeout.Duration); err != nil {
		if needs["douyin"] {
			printCheck(w, false, "douyin signing script: %v", err)
			ok = false
		} else {
			printInfo(w, "douyin signing script unavailable (only needed for douyin assets)")
		}
	} else {
		printCheck(w, true, "douyin signing script %s", scriptPath)
	}

	// Database
	if cfg.Storage.Disabled {
		printInfo(w, "history log disabled")
	} else if db, err := store.Open(cfg.Storage.Path); err != nil {
		printCheck(w, false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(w, true, "database %s", cfg.Storage.Path)
		checkHistory(cmd, w, db)
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Fprintln(w, "\nAll checks passed.")
	return nil
}

// checkHistory reports the last run and assets that have gone quiet.
func checkHistory(cmd *cobra.Command, w io.Writer, db *store.Store) {
	ctx := commandContext(cmd)

	run, found, err := db.LastRun(ctx)
	if err != nil || !found {
		return
	}
	now := time.Now()
	if run.FinishedAt.IsZero() {
		printInfo(w, "last run started %s never finished", humanize.RelTime(run.StartedAt, now, "ago", "from now"))
	} else {
		printInfo(w, "last run %s: %d assets, %d failed",
			humanize.RelTime(run.FinishedAt, now, "ago", "from now"), run.Assets, run.Failures)
	}

	stats, err := db.AssetStats(ctx, time.Time{})
	if err != nil {
		return
	}
	staleBefore := now.AddDate(0, 0, -staleDays)
	for _, as := range stats {
		if as.LastPublished.Before(staleBefore) {
			printInfo(w, "stale: %s, latest upload %s", as.AssetName, humanize.Time(as.LastPublished))
		}
	}
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
