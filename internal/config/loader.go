package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields with
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields the YAML explicitly zeroed
// or that decoding reset.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.URI == "" {
		cfg.Server.URI = def.Server.URI
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = def.Server.MaxSessions
	}
	if cfg.Engine.Sensitivity == 0 {
		cfg.Engine.Sensitivity = def.Engine.Sensitivity
	}
	if cfg.Engine.Language == "" {
		cfg.Engine.Language = def.Engine.Language
	}
	if cfg.Engine.DefaultKeyword == "" {
		cfg.Engine.DefaultKeyword = def.Engine.DefaultKeyword
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}

	if cfg.Engine.AccessKey == "" {
		errs = append(errs, errors.New("engine.access_key is required"))
	}
	if cfg.Engine.Sensitivity < 0 || cfg.Engine.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("engine.sensitivity %.2f is out of range [0, 1]", cfg.Engine.Sensitivity))
	}
	if cfg.Engine.ProcessTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.process_timeout %s must not be negative", cfg.Engine.ProcessTimeout))
	}

	return errors.Join(errs...)
}
