// Package bootstrap is the process composition root: it loads a YAML
// process config, validates it, and wires every internal/infrastructure
// adapter into a flowhost.Host and httpapi.Server — the way the teacher's
// cmd/streamy wired its own config loader, plugin registry, and engine
// together, generalized from a one-shot CLI invocation to a long-running
// service process.
package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rockestra/rockestra/internal/infrastructure/validation"
)

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"required,oneof=debug info warn error"`
	ReportCaller bool   `yaml:"reportCaller"`
	JSON         bool   `yaml:"json"`
}

// ConfigSourceConfig selects and configures the ConfigSnapshotProvider chain.
type ConfigSourceConfig struct {
	Kind string `yaml:"kind" validate:"required,oneof=file git postgres"`

	// Kind == "file"
	FilePath string `yaml:"filePath" validate:"required_if=Kind file"`

	// Kind == "git"
	GitRepoURL   string `yaml:"gitRepoURL" validate:"required_if=Kind git"`
	GitLocalPath string `yaml:"gitLocalPath" validate:"required_if=Kind git"`
	GitPatchPath string `yaml:"gitPatchPath" validate:"required_if=Kind git"`

	// Kind == "postgres"
	PostgresDSN string `yaml:"postgresDSN" validate:"required_if=Kind postgres"`

	// Breaker wraps whichever provider Kind selects.
	BreakerEnabled bool `yaml:"breakerEnabled"`

	// LkgPath is where the last-known-good snapshot is persisted.
	LkgPath string `yaml:"lkgPath" validate:"required"`
}

// HTTPConfig configures the ambient HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// TracingConfig configures the OTel tracer provider.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ProcessConfig is the root of the process's static YAML configuration,
// deliberately separate from the in-request patch JSON (the patch overlay
// wire format is plain encoding/json regardless of how the process itself is
// configured).
type ProcessConfig struct {
	Logging      LoggingConfig       `yaml:"logging"`
	ConfigSource ConfigSourceConfig  `yaml:"configSource"`
	HTTP         HTTPConfig          `yaml:"http"`
	Tracing      TracingConfig       `yaml:"tracing"`
}

// Load reads and validates a ProcessConfig from path.
func Load(path string) (*ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg ProcessConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := validation.GetValidator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}
