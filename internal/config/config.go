// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/quotescope/quotescope/internal/blocker"
	"github.com/quotescope/quotescope/internal/session"
	"github.com/quotescope/quotescope/internal/sink"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig             `mapstructure:"logger" yaml:"logger"`
	Browser  session.Config           `mapstructure:"browser" yaml:"browser"`
	Blocker  blocker.Config           `mapstructure:"blocker" yaml:"blocker"`
	Sink     sink.FileConfig          `mapstructure:"sink" yaml:"sink"`
	Adapters []string                 `mapstructure:"adapters" yaml:"adapters"`
	Profiles map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ProfileConfig is one named scrape profile: how long the whole run may take
// and how patient adapters are after page load.
type ProfileConfig struct {
	// Ceiling bounds the whole scrape, navigation included. When it expires
	// the session is force-closed and a not-found placeholder is emitted.
	Ceiling time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	// GraceWindow is how long adapters wait after page load for outstanding
	// finance responses.
	GraceWindow time.Duration `mapstructure:"grace_window" yaml:"grace_window"`
}

// Profile names shipped by default.
const (
	ProfileSimple = "simple"
	ProfileFast   = "fast"
)

// Profile resolves a profile by name, falling back to the simple profile.
func (c *Config) Profile(name string) (ProfileConfig, error) {
	if name == "" {
		name = ProfileSimple
	}
	p, ok := c.Profiles[name]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

// DefaultDataDir resolves the out-of-the-box result directory under the
// user's home. Falls back to a relative path when the home directory cannot
// be determined.
func DefaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", "quotescope", "data")
	}
	return filepath.Join(home, ".quotescope", "data")
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "quotescope")
	v.SetDefault("logger.log_file", "quotescope.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.body_fetch_timeout", "15s")
	v.SetDefault("browser.max_body_fetches", 8)

	// -- Blocker --
	v.SetDefault("blocker.enabled", true)
	v.SetDefault("blocker.log_blocked", false)
	v.SetDefault("blocker.block_types", []string{"Image", "Media", "Font"})
	v.SetDefault("blocker.block_domains", []string{
		"google-analytics.com",
		"googletagmanager.com",
		"doubleclick.net",
		"facebook.net",
		"hotjar.com",
	})

	// -- Sink --
	v.SetDefault("sink.dir", DefaultDataDir())
	v.SetDefault("sink.filename_format", sink.DefaultFilenameFormat)

	// -- Adapters --
	// Registration order is the request-blocking tie-break order.
	v.SetDefault("adapters", []string{"codeweavers", "scuk", "request-blocker"})

	// -- Profiles --
	v.SetDefault("profiles.simple.ceiling", "30s")
	v.SetDefault("profiles.simple.grace_window", "10s")
	v.SetDefault("profiles.fast.ceiling", "8s")
	v.SetDefault("profiles.fast.grace_window", "2s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if len(c.Adapters) == 0 {
		return fmt.Errorf("adapters must name at least one adapter")
	}
	if c.Sink.Dir == "" {
		return fmt.Errorf("sink.dir is a required configuration field")
	}
	for name, p := range c.Profiles {
		if p.Ceiling <= 0 {
			return fmt.Errorf("profiles.%s.ceiling must be a positive duration", name)
		}
	}
	return nil
}
