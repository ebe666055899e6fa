package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/goscan/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
	Long: `Inspect the resolved configuration or write a default configuration file.

Configuration is read from goscan.yaml in ., $HOME, $XDG_CONFIG_HOME/goscan
(or $HOME/.config/goscan) and /etc/goscan. Environment variables use the
GOSCAN_ prefix, e.g. GOSCAN_DECODER_MODE or GOSCAN_SERVER_PORT.`,
}

var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the resolved configuration as YAML",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		if used := GetConfigLoader().ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:          "init [file]",
	Short:        "Write the default configuration to a file",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.WriteDefaultConfigFile(path); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}
