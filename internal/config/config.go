// Package config loads objreg process configuration from defaults, an
// optional YAML file and OBJREG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mash-protocol/objreg/pkg/kobject"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// EnvPrefix is the prefix of environment overrides. The key helper.path is
// read from OBJREG_HELPER_PATH.
const EnvPrefix = "OBJREG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the process configuration.
type Config struct {
	Helper   HelperConfig   `mapstructure:"helper" yaml:"helper"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// HelperConfig configures the external helper program run per notification.
type HelperConfig struct {
	// Path of the program. Empty disables the helper.
	Path string `mapstructure:"path" yaml:"path"`

	// Timeout bounds one helper run. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LimitsConfig bounds a single notification message.
type LimitsConfig struct {
	MaxVars    int `mapstructure:"max_vars" yaml:"max_vars"`
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// DeliveryConfig selects how messages reach the deliverer.
type DeliveryConfig struct {
	// Async queues messages on a background dispatcher instead of
	// delivering them on the notifying goroutine.
	Async bool `mapstructure:"async" yaml:"async"`
}

// RegistryConfig configures the hierarchy manager.
type RegistryConfig struct {
	MaxNodes int `mapstructure:"max_nodes" yaml:"max_nodes"`
}

// LogConfig configures operational and event logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// File receives the CBOR event log. Empty disables it.
	File string `mapstructure:"file" yaml:"file"`
}

// StateConfig configures the persisted runtime state.
type StateConfig struct {
	// File holds the last sequence number. Empty disables persistence.
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Limits: LimitsConfig{
			MaxVars:    uevent.DefaultMaxVars,
			BufferSize: uevent.DefaultBufferSize,
		},
		Registry: RegistryConfig{
			MaxNodes: kobject.DefaultMaxNodes,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults on v. Every key must have a default
// for environment overrides to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("helper.path", d.Helper.Path)
	v.SetDefault("helper.timeout", d.Helper.Timeout)
	v.SetDefault("limits.max_vars", d.Limits.MaxVars)
	v.SetDefault("limits.buffer_size", d.Limits.BufferSize)
	v.SetDefault("delivery.async", d.Delivery.Async)
	v.SetDefault("registry.max_nodes", d.Registry.MaxNodes)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("state.file", d.State.File)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An empty file means defaults and
// environment only; a named file that is missing is an error.
func Load(file string) (Config, error) {
	v := New()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks bounds that the loader cannot express.
func (c Config) Validate() error {
	if err := uevent.ValidateHelperPath(c.Helper.Path); err != nil {
		return fmt.Errorf("%w: helper.path: %w", ErrInvalid, err)
	}
	if c.Helper.Timeout < 0 {
		return fmt.Errorf("%w: helper.timeout must not be negative", ErrInvalid)
	}
	if c.Limits.MaxVars <= 0 {
		return fmt.Errorf("%w: limits.max_vars must be positive", ErrInvalid)
	}
	if c.Limits.BufferSize <= 0 {
		return fmt.Errorf("%w: limits.buffer_size must be positive", ErrInvalid)
	}
	if c.Registry.MaxNodes <= 0 {
		return fmt.Errorf("%w: registry.max_nodes must be positive", ErrInvalid)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	return nil
}

// UeventLimits returns the message bounds.
func (c Config) UeventLimits() uevent.Limits {
	return uevent.Limits{
		MaxVars:    c.Limits.MaxVars,
		BufferSize: c.Limits.BufferSize,
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}
