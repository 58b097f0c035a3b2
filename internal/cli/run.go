package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var runNoWait bool

// Replaced in tests.
var (
	runPollAction           = pollAction
	stdin         io.Reader = os.Stdin
	stdinIsTTY              = func() bool { return isTerminal(os.Stdin) }
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every asset once, print new videos, then wait for Enter",
	Args:  cobra.NoArgs,
	RunE:  runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runNoWait, "no-wait", false, "exit without waiting for Enter")
}

func runAction(cmd *cobra.Command, _ []string) error {
	if err := runPollAction(cmd, "terminal"); err != nil {
		return err
	}
	if runNoWait || !stdinIsTTY() {
		return nil
	}
	return waitForEnter(stdin, cmd.OutOrStdout())
}

// waitForEnter keeps a double-clicked console window open until the user
// has read the report.
func waitForEnter(in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "Press Enter to exit...")
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
