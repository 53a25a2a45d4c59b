// Package config provides the configuration schema and YAML loader for
// the hark wake word server.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use Go duration
// strings like "250ms" or "2s".
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level, defaulting to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for hark.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	Pool   PoolConfig   `yaml:"pool"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// URI is the event listener address, either "tcp://host:port" or
	// "unix:///path/to/socket".
	URI string `yaml:"uri"`

	// HTTPAddr is the TCP address of the HTTP sidecar serving metrics,
	// health, and the WebSocket bridge (e.g., ":9090"). Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxSessions caps concurrent client sessions. Connections beyond the
	// cap are refused with an error event.
	MaxSessions int `yaml:"max_sessions"`
}

// EngineConfig holds detection engine settings.
type EngineConfig struct {
	// AccessKey is the Picovoice console credential. Required.
	AccessKey string `yaml:"access_key"`

	// Sensitivity is the detection sensitivity in [0, 1]. Higher values
	// reduce misses at the cost of more false alarms.
	Sensitivity float32 `yaml:"sensitivity"`

	// Language selects which keyword models are advertised.
	Language string `yaml:"language"`

	// DefaultKeyword is armed when a client streams audio without
	// selecting a keyword first.
	DefaultKeyword string `yaml:"default_keyword"`

	// ProcessTimeout bounds a single detection call. Zero disables the
	// deadline.
	ProcessTimeout Duration `yaml:"process_timeout"`
}

// PoolConfig holds engine pool settings.
type PoolConfig struct {
	// MaxIdlePerKeyword caps the idle handles cached per keyword. Zero
	// uses the built-in default; negative disables caching.
	MaxIdlePerKeyword int `yaml:"max_idle_per_keyword"`
}

// Default returns the configuration used when a field is left unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URI:         "tcp://0.0.0.0:10400",
			HTTPAddr:    ":9090",
			LogLevel:    LogInfo,
			MaxSessions: 64,
		},
		Engine: EngineConfig{
			Sensitivity:    0.5,
			Language:       "en",
			DefaultKeyword: "porcupine",
		},
		Pool: PoolConfig{},
	}
}
