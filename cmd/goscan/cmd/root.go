package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/goscan/internal/config"
	"github.com/MeKo-Tech/goscan/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "goscan",
	Short: "Barcode scanner for images, PDFs and live camera previews",
	Long: `goscan decodes 1D and 2D barcodes (QR Code, Data Matrix, Aztec,
EAN/UPC, Code 39/93/128, ITF, Codabar) from still images, PDF documents and
camera preview frames.

This tool provides:
- Single-file and parallel batch decoding
- A replay camera that runs the live preview loop over a set of images
- An HTTP server with upload decoding and a websocket camera endpoint

Examples:
  goscan file ticket.png
  goscan batch scans/ --recursive --format csv
  goscan replay frames/*.jpg --rotation 90
  goscan serve --port 8080`,
	Version: version.String(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalConfig == nil {
			if err := initConfig(); err != nil {
				return err
			}
		}
		setupLogging(cmd)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/goscan, /etc/goscan)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Decoder flags shared by every command
	rootCmd.PersistentFlags().String("mode", "", "scan mode (ONE_D_MODE, PRODUCT_MODE, QR_CODE_MODE, DATA_MATRIX_MODE, AZTEC_MODE, PDF417_MODE)")
	rootCmd.PersistentFlags().StringSlice("formats", nil, "comma-separated barcode formats; overrides --mode")
	rootCmd.PersistentFlags().Bool("try-harder", false, "spend more time looking for a barcode")
	rootCmd.PersistentFlags().String("charset", "", "character set hint for decoded text (e.g. UTF-8, ISO-8859-1)")
	rootCmd.PersistentFlags().Int("max-workers", 0, "maximum concurrent decodes (0 = number of CPUs)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("decoder.mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("decoder.formats", rootCmd.PersistentFlags().Lookup("formats"))
	_ = viper.BindPFlag("decoder.try_harder", rootCmd.PersistentFlags().Lookup("try-harder"))
	_ = viper.BindPFlag("decoder.character_set", rootCmd.PersistentFlags().Lookup("charset"))
	_ = viper.BindPFlag("scheduler.max_workers", rootCmd.PersistentFlags().Lookup("max-workers"))
}

// setupLogging installs the JSON logger. Logs go to stderr; stdout carries
// scan results.
func setupLogging(cmd *cobra.Command) {
	var logLevel slog.Level
	if viper.GetBool("verbose") {
		logLevel = slog.LevelDebug
	} else {
		switch viper.GetString("log_level") {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the configuration with command line flags applied.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}

	// Flags are bound after the first load, so resolve again.
	var cfg config.Config
	if err := GetConfigLoader().Viper().Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling updated configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
