// Package config provides the top-level configuration for tracedbg.
package config

import (
	"fmt"
	"time"

	"github.com/ethpandaops/tracedbg/pkg/ethereum/execution"
)

// Config is the main configuration for a debugging session.
type Config struct {
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// MetricsAddr is the optional address to serve prometheus metrics on.
	MetricsAddr *string `yaml:"metricsAddr"`
	// Execution is the execution node to fetch traces and chain history from.
	Execution *execution.Config `yaml:"execution"`
	// ArtifactsDir is the directory holding compiled contract artifacts.
	ArtifactsDir string `yaml:"artifactsDir" default:"./build"`
	// WindowSize is the number of steps buffered before and after the current one.
	WindowSize int `yaml:"windowSize" default:"50"`
	// CodeLinesBefore/CodeLinesAfter control the source snippet in responses.
	CodeLinesBefore int `yaml:"codeLinesBefore" default:"3"`
	CodeLinesAfter  int `yaml:"codeLinesAfter" default:"6"`
	// NodeReadyTimeout bounds the startup readiness probe.
	NodeReadyTimeout time.Duration `yaml:"nodeReadyTimeout" default:"30s"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Execution == nil {
		return fmt.Errorf("execution configuration is required")
	}

	if err := c.Execution.Validate(); err != nil {
		return fmt.Errorf("invalid execution configuration: %w", err)
	}

	if c.WindowSize <= 0 {
		return fmt.Errorf("windowSize must be positive")
	}

	return nil
}
