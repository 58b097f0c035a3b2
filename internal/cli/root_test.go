package cli

import (
	"bytes"
	"testing"
)

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	requireContains(t, out.String(), "vidwatch dev")
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "poll", "init", "add", "assets", "history", "doctor", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestConfigFlagDefault(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("config")
	if f == nil {
		t.Fatal("--config flag missing")
	}
	if f.DefValue != ".vidwatch" {
		t.Errorf("--config default = %q, want .vidwatch", f.DefValue)
	}
}
