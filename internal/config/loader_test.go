package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/harkwake/hark/internal/config"
)

const validYAML = `
server:
  uri: tcp://127.0.0.1:10400
  http_addr: ":9090"
  log_level: debug
  max_sessions: 8
engine:
  access_key: test-key
  sensitivity: 0.7
  language: en
  default_keyword: jarvis
  process_timeout: 250ms
pool:
  max_idle_per_keyword: 2
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.URI != "tcp://127.0.0.1:10400" {
		t.Errorf("Server.URI = %q", cfg.Server.URI)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("Server.LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxSessions != 8 {
		t.Errorf("Server.MaxSessions = %d", cfg.Server.MaxSessions)
	}
	if cfg.Engine.Sensitivity != 0.7 {
		t.Errorf("Engine.Sensitivity = %v", cfg.Engine.Sensitivity)
	}
	if cfg.Engine.DefaultKeyword != "jarvis" {
		t.Errorf("Engine.DefaultKeyword = %q", cfg.Engine.DefaultKeyword)
	}
	if cfg.Engine.ProcessTimeout.Std() != 250*time.Millisecond {
		t.Errorf("Engine.ProcessTimeout = %s", cfg.Engine.ProcessTimeout)
	}
	if cfg.Pool.MaxIdlePerKeyword != 2 {
		t.Errorf("Pool.MaxIdlePerKeyword = %d", cfg.Pool.MaxIdlePerKeyword)
	}
}

func TestLoadFromReader_DefaultsFillUnsetFields(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("engine:\n  access_key: test-key\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	def := config.Default()
	if cfg.Server.URI != def.Server.URI {
		t.Errorf("Server.URI = %q, want default %q", cfg.Server.URI, def.Server.URI)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("Server.LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Engine.Sensitivity != 0.5 {
		t.Errorf("Engine.Sensitivity = %v, want 0.5", cfg.Engine.Sensitivity)
	}
	if cfg.Engine.DefaultKeyword != "porcupine" {
		t.Errorf("Engine.DefaultKeyword = %q, want porcupine", cfg.Engine.DefaultKeyword)
	}
	if cfg.Engine.ProcessTimeout != 0 {
		t.Errorf("Engine.ProcessTimeout = %s, want 0 (disabled)", cfg.Engine.ProcessTimeout)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("engine:\n  access_key: k\n  modle: oops\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Server.MaxSessions = -1
	cfg.Engine.Sensitivity = 1.5
	// AccessKey left empty.

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "max_sessions", "access_key", "sensitivity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/hark.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLogLevel_Level(t *testing.T) {
	if config.LogDebug.Level().String() != "DEBUG" {
		t.Errorf("LogDebug.Level() = %s", config.LogDebug.Level())
	}
	if config.LogLevel("").Level().String() != "INFO" {
		t.Errorf("empty level should default to INFO, got %s", config.LogLevel("").Level())
	}
}
