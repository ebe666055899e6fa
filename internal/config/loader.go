package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "goscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "GOSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader over the global viper instance, so that flags
// bound by the CLI take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader over v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first goscan config file found on the search paths, then
// applies environment variables and defaults, and validates the result.
// A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final Validate.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation is LoadWithFile without the final Validate.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile == "" {
		return l.LoadWithoutValidation()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.prepare()
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

func (l *Loader) prepare() {
	l.setupEnvironmentVariables()
	l.setDefaults()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range SearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// GOSCAN_DECODER_MODE, GOSCAN_SERVER_PORT, ...
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key with its default. Viper only consults
// the environment for keys it knows about, so every key is listed.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("decoder.mode", d.Decoder.Mode)
	l.v.SetDefault("decoder.formats", d.Decoder.Formats)
	l.v.SetDefault("decoder.try_harder", d.Decoder.TryHarder)
	l.v.SetDefault("decoder.character_set", d.Decoder.CharacterSet)

	l.v.SetDefault("scheduler.max_workers", d.Scheduler.MaxWorkers)

	l.v.SetDefault("viewport.width", d.Viewport.Width)
	l.v.SetDefault("viewport.height", d.Viewport.Height)

	l.v.SetDefault("file.max_pixels", d.File.MaxPixels)

	l.v.SetDefault("camera.width", d.Camera.Width)
	l.v.SetDefault("camera.height", d.Camera.Height)
	l.v.SetDefault("camera.rotation", d.Camera.Rotation)
	l.v.SetDefault("camera.display_rotation", d.Camera.DisplayRotation)
	l.v.SetDefault("camera.facing", d.Camera.Facing)
	l.v.SetDefault("camera.flash", d.Camera.Flash)
	l.v.SetDefault("camera.frame_interval", d.Camera.FrameInterval)
	l.v.SetDefault("camera.loop", d.Camera.Loop)

	l.v.SetDefault("finder.left", d.Finder.Left)
	l.v.SetDefault("finder.top", d.Finder.Top)
	l.v.SetDefault("finder.right", d.Finder.Right)
	l.v.SetDefault("finder.bottom", d.Finder.Bottom)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", d.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", d.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", d.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", d.Server.MaxDataPerDay)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.include", d.Batch.Include)
	l.v.SetDefault("batch.exclude", d.Batch.Exclude)
}

// WriteDefaultConfigFile writes the default configuration as YAML.
func WriteDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	cfg := DefaultConfig()
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}

// YAML renders c as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// SearchPaths returns the directories searched for a config file, in order.
func SearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "goscan"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "goscan"))
	}
	return append(paths, "/etc/goscan")
}
