// Package cli provides the command-line interface for vidwatch.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	verbose   bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "vidwatch",
	Short: "Watch video creators for new uploads",
	Long: "vidwatch polls creator pages on bilibili, kuaishou, ixigua, and douyin, " +
		"prints the videos published since the last run, and remembers where it left off.",
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging(os.Stderr, verbose, noColor)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vidwatch %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", config.DefaultDir, "config directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log HTTP requests and other debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")

	rootCmd.AddCommand(versionCmd, runCmd, pollCmd, initCmd, addCmd, assetsCmd, historyCmd, doctorCmd)
}

// Execute runs the root command. Cancelling ctx stops an in-flight poll.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setupLogging installs a tint handler on w as the default slog logger.
func setupLogging(w *os.File, debug, plain bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    plain || !isTerminal(w),
	})))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// commandContext returns cmd's context, or Background when the command was
// not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
