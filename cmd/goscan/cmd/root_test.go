package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/version"
)

// resetFlags restores every flag of cmd and its children to its default so
// that one Execute does not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommandAndCaptureOutput runs the root command with args and returns
// stdout and stderr.
func executeCommandAndCaptureOutput(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "goscan", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Same(t, rootCmd, GetRootCommand())
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := executeCommandAndCaptureOutput(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "barcodes")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	out, _, err := executeCommandAndCaptureOutput(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.String())
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"file", "batch", "replay", "bench", "serve", "config"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, stderr, err := executeCommandAndCaptureOutput(t, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown flag")
}

func TestRootCommandNoArgs(t *testing.T) {
	out, _, err := executeCommandAndCaptureOutput(t)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "Usage:"))
}

func TestRootCommandPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "mode", "formats", "try-harder", "charset", "max-workers"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCommandRejectsInvalidMode(t *testing.T) {
	dir := t.TempDir()
	_, _, err := executeCommandAndCaptureOutput(t, "file", "--mode", "NO_SUCH_MODE", dir+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decoder mode")
}
