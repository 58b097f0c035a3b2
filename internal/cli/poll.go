package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/digest"
	"github.com/ppiankov/vidwatch/internal/poll"
	"github.com/ppiankov/vidwatch/internal/privacy"
	"github.com/ppiankov/vidwatch/internal/signing"
	"github.com/ppiankov/vidwatch/internal/source"
	"github.com/ppiankov/vidwatch/internal/store"
)

const noAssetsMessage = "No assets found in config file."

var pollFormat string

// httpTransport replaces the HTTP round tripper when set.
var httpTransport http.RoundTripper

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check every asset once and print new videos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return pollAction(cmd, pollFormat)
	},
}

func init() {
	pollCmd.Flags().StringVar(&pollFormat, "format", "terminal", "output format: terminal, json, markdown")
}

// pollAction runs one pass over the configured assets, prints the report,
// saves the advanced offsets, and prunes the history log.
func pollAction(cmd *cobra.Command, format string) error {
	out := cmd.OutOrStdout()
	formatter := digest.New(format, !noColor && writesToTerminal(out))
	if formatter == nil {
		return fmt.Errorf("unknown format %q (want terminal, json, or markdown)", format)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if len(cfg.Assets) == 0 {
		fmt.Fprintln(out, noAssetsMessage)
		return nil
	}

	log := slog.Default()
	registry, err := newRegistry(cfg, log)
	if err != nil {
		return err
	}

	opts := poll.Options{
		Resolver: registry,
		Logger:   log,
		Workers:  cfg.Poll.Workers,
	}
	db := openHistory(cfg, log)
	if db != nil {
		defer func() { _ = db.Close() }()
		opts.Recorder = db
	}

	ctx := commandContext(cmd)
	report, runErr := poll.NewRunner(opts).Run(ctx, cfg)

	if err := formatter.Format(out, digest.FromReport(report)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := config.Save(configDir, cfg); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if db != nil {
		pruned, err := db.PruneOld(ctx, cfg.Storage.Retention())
		if err != nil {
			log.Warn("prune history failed", "err", err)
		} else if pruned > 0 {
			log.Debug("pruned history", "rows", pruned)
		}
	}

	log.Debug("poll finished",
		"assets", len(report.Results),
		"failures", report.Failures(),
		"elapsed", report.FinishedAt.Sub(report.StartedAt),
	)
	return nil
}

// newRegistry builds the adapters with the configured HTTP client, cookies
// redacted from debug logs, and douyin's signing script loaded on first use.
func newRegistry(cfg *config.Config, log *slog.Logger) (*source.Registry, error) {
	redactor, err := privacy.NewRedactor(cfg.Cookies.Values(), cfg.Privacy.Redact)
	if err != nil {
		return nil, fmt.Errorf("compile redact patterns: %w", err)
	}
	client := source.NewClient(source.ClientOptions{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout.Duration,
		Logger:    log,
		Redactor:  redactor,
		Transport: httpTransport,
	})

	scriptPath := cfg.ScriptPath(configDir)
	timeout := cfg.Signing.ScriptTimeout.Duration
	return source.NewRegistry(source.Options{
		Client:    client,
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    log,
		LoadXBogus: func() (source.TokenSigner, error) {
			ev, err := signing.LoadEvaluator(scriptPath, timeout)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
	}), nil
}

// openHistory opens the history log, or returns nil when it is disabled or
// unavailable. Polling never depends on it.
func openHistory(cfg *config.Config, log *slog.Logger) *store.Store {
	if cfg.Storage.Disabled {
		return nil
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		log.Warn("history log unavailable", "path", cfg.Storage.Path, "err", err)
		return nil
	}
	return db
}

func writesToTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
