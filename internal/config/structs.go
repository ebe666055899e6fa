//nolint:lll
package config

import "time"

// Config represents the complete configuration for goscan.
// It includes settings for all commands (file, batch, replay, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Decoder   DecoderConfig   `mapstructure:"decoder" yaml:"decoder" json:"decoder"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	Viewport  ViewportConfig  `mapstructure:"viewport" yaml:"viewport" json:"viewport"`
	File      FileConfig      `mapstructure:"file" yaml:"file" json:"file"`
	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera" json:"camera"`
	Finder    FinderConfig    `mapstructure:"finder" yaml:"finder" json:"finder"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// DecoderConfig selects the symbologies to look for.
type DecoderConfig struct {
	// Mode is one of the mode strings (ONE_D_MODE, PRODUCT_MODE, ...). Formats wins when both are set.
	Mode         string   `mapstructure:"mode" yaml:"mode" json:"mode"`
	Formats      []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder    bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	CharacterSet string   `mapstructure:"character_set" yaml:"character_set" json:"character_set"`
}

// SchedulerConfig bounds decode concurrency.
type SchedulerConfig struct {
	// MaxWorkers is the shared decode pool size; 0 means one per CPU.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// ViewportConfig is the size static files are scaled towards.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// FileConfig contains static file settings.
type FileConfig struct {
	MaxPixels int `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
}

// CameraConfig describes the replay camera.
type CameraConfig struct {
	// Width and Height, when set, are the only preview size the camera offers.
	Width           int           `mapstructure:"width" yaml:"width" json:"width"`
	Height          int           `mapstructure:"height" yaml:"height" json:"height"`
	Rotation        int           `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
	DisplayRotation int           `mapstructure:"display_rotation" yaml:"display_rotation" json:"display_rotation"`
	Facing          string        `mapstructure:"facing" yaml:"facing" json:"facing"`
	Flash           bool          `mapstructure:"flash" yaml:"flash" json:"flash"`
	FrameInterval   time.Duration `mapstructure:"frame_interval" yaml:"frame_interval" json:"frame_interval"`
	Loop            bool          `mapstructure:"loop" yaml:"loop" json:"loop"`
}

// FinderConfig is the finder rectangle in view coordinates. All zero means no finder.
type FinderConfig struct {
	Left   int `mapstructure:"left" yaml:"left" json:"left"`
	Top    int `mapstructure:"top" yaml:"top" json:"top"`
	Right  int `mapstructure:"right" yaml:"right" json:"right"`
	Bottom int `mapstructure:"bottom" yaml:"bottom" json:"bottom"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting, per client IP
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers   int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include   []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}
