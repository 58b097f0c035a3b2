package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vidwatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	Args:  cobra.NoArgs,
	RunE:  initAction,
}

func initAction(cmd *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	out := cmd.OutOrStdout()
	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config directory %s already initialized.\n", configDir)
		return nil
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	fmt.Fprintf(out, "  created: %s\n", configPath)
	fmt.Fprintf(out, "Initialized %s. Add creators with 'vidwatch add <url>'.\n", configDir)
	return nil
}

const exampleConfig = `# vidwatch configuration

# Creator pages to watch. Offsets are maintained by vidwatch.
assets: []
  # - name: someone
  #   link: https://space.bilibili.com/12345678
  # - link: https://www.kuaishou.com/profile/3xabcdef
  # - link: https://www.ixigua.com/home/2497727299858013
  # - link: https://www.douyin.com/user/MS4wLjABAAAA...

# Cookie strings copied from a logged-in browser session. A *_env key names an
# environment variable that takes precedence over the literal value.
cookies:
  bilibili: ""
  kuaishou: ""
  ixigua: ""
  douyin: ""
  # douyin_env: VIDWATCH_DOUYIN_COOKIE

signing:
  # JavaScript file defining sign(query, userAgent); relative to this directory.
  douyin_script: x_bogus.js
  script_timeout: 10s

http:
  timeout: 30s

poll:
  workers: 1

storage:
  path: .vidwatch/vidwatch.db
  retain_days: 90 # 0 keeps history forever

privacy:
  redact: []
`
