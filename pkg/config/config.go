// Package config provides configuration loading, validation, and management for draftpilot.
// It handles JSON config files, environment-based secret lookup, and defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Default values applied when the config file omits a field.
const (
	DefaultMaxAttempts        = 3
	DefaultModelName          = "gemini-2.0-flash-001"
	DefaultModelTimeoutSec    = 120
	DefaultExecTimeoutSec     = 60
	DefaultRetrieveTimeoutSec = 300
	DefaultWorkspacePath      = "draftpilot.db"
	DefaultRunLogPath         = "runs.db"
	DefaultArchiveDir         = "generated"
)

// APIKeyEnvVar is the environment variable holding the model service API key.
// The key is never stored in the config file.
const APIKeyEnvVar = "GOOGLE_API_KEY"

// RetrievalConfig controls the external prompt-retrieval collaborator.
type RetrievalConfig struct {
	// ScriptPath is the RAG script invoked to build the initial prompt.
	// Empty means the built-in template is used with no context snippets.
	ScriptPath string `json:"script_path"`
	// PythonBin is the interpreter used to run ScriptPath.
	PythonBin string `json:"python_bin"`
	// TimeoutSec is the hard timeout for the retrieval call.
	TimeoutSec int `json:"timeout_sec"`
}

// ModelConfig controls the language-model client.
type ModelConfig struct {
	Name        string  `json:"name"`
	TimeoutSec  int     `json:"timeout_sec"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// Config is the top-level configuration for a draftpilot run.
type Config struct {
	Model       ModelConfig     `json:"model"`
	Retrieval   RetrievalConfig `json:"retrieval"`
	MaxAttempts int             `json:"max_attempts"`
	// ExecTimeoutSec bounds a single script execution so a runaway
	// generated script cannot stall the attempt loop.
	ExecTimeoutSec int    `json:"exec_timeout_sec"`
	WorkspacePath  string `json:"workspace_path"`
	RunLogPath     string `json:"run_log_path"`
	// ArchiveDir is where successfully executed scripts are saved.
	ArchiveDir  string `json:"archive_dir"`
	AutoApprove bool   `json:"auto_approve"`
	MetricsAddr string `json:"metrics_addr"`
}

// Default returns a config populated with default values.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Name:        DefaultModelName,
			TimeoutSec:  DefaultModelTimeoutSec,
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Retrieval: RetrievalConfig{
			PythonBin:  "python3",
			TimeoutSec: DefaultRetrieveTimeoutSec,
		},
		MaxAttempts:    DefaultMaxAttempts,
		ExecTimeoutSec: DefaultExecTimeoutSec,
		WorkspacePath:  DefaultWorkspacePath,
		RunLogPath:     DefaultRunLogPath,
		ArchiveDir:     DefaultArchiveDir,
	}
}

// Load reads and validates a config file, applying defaults for omitted fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks config invariants and fills defaults for zero values.
func (c *Config) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Model.Name == "" {
		c.Model.Name = DefaultModelName
	}
	if c.Model.TimeoutSec <= 0 {
		c.Model.TimeoutSec = DefaultModelTimeoutSec
	}
	if c.ExecTimeoutSec <= 0 {
		c.ExecTimeoutSec = DefaultExecTimeoutSec
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = DefaultRetrieveTimeoutSec
	}
	if c.Retrieval.PythonBin == "" {
		c.Retrieval.PythonBin = "python3"
	}
	if c.WorkspacePath == "" {
		c.WorkspacePath = DefaultWorkspacePath
	}
	if c.RunLogPath == "" {
		c.RunLogPath = DefaultRunLogPath
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = DefaultArchiveDir
	}
	if c.Retrieval.ScriptPath != "" {
		if _, err := os.Stat(c.Retrieval.ScriptPath); err != nil {
			return fmt.Errorf("retrieval script not found: %s", c.Retrieval.ScriptPath)
		}
	}
	return nil
}

// ModelTimeout returns the per-call model timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSec) * time.Second
}

// ExecTimeout returns the script execution timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSec) * time.Second
}

// RetrievalTimeout returns the retrieval hard timeout as a duration.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSec) * time.Second
}

// GetAPIKey returns the model service API key from the environment.
func GetAPIKey() (string, error) {
	if key := os.Getenv(APIKeyEnvVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s environment variable not set", APIKeyEnvVar)
}
