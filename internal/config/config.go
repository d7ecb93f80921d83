// Package config defines the configuration schema for the CEFR-J annotator
// and provides loading, validation and a tagger registry.
//
// Configuration is loaded from a YAML file (see [Load]) and validated with
// [Validate]. Tagger factories are registered in a [Registry] so the CLI can
// build the tagging oracle named in the config without core packages ever
// seeing file paths or command lines.
package config

import "time"

// LogLevel controls the verbosity of the application logger.
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

// StoreDriver selects the result store backend.
type StoreDriver string

const (
	StoreNone     StoreDriver = ""
	StoreMemory   StoreDriver = "memory"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// IsValid reports whether d is a recognised store driver.
func (d StoreDriver) IsValid() bool {
	switch d {
	case StoreNone, StoreMemory, StoreSQLite, StorePostgres:
		return true
	}
	return false
}

// NeedsDSN reports whether the driver requires a connection string.
func (d StoreDriver) NeedsDSN() bool {
	return d == StoreSQLite || d == StorePostgres
}

// Default values applied by [ApplyDefaults].
const (
	DefaultMatchTimeout   = 2 * time.Second
	DefaultTaggerName     = "treetagger"
	DefaultTaggerCommand  = "tree-tagger-english"
	DefaultTaggerTimeout  = 30 * time.Second
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
	DefaultBatchInputDir  = "./m2"
	DefaultBatchOutputDir = "./annotated"
	DefaultBatchGlob      = "*.m2"
	DefaultConcurrency    = 4
)

// Config is the root configuration structure.
type Config struct {
	LogLevel   LogLevel         `yaml:"log_level"`
	Patterns   PatternsConfig   `yaml:"patterns"`
	Tagger     TaggerEntry      `yaml:"tagger"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Batch      BatchConfig      `yaml:"batch"`
	Store      StoreConfig      `yaml:"store"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// PatternsConfig locates the grammar pattern table.
type PatternsConfig struct {
	// File is the path to the pattern table (.csv, .tsv, .yaml or .yml).
	File string `yaml:"file"`

	// IDColumn, RegexColumn and ExplanationColumn override the header names
	// of delimited tables. Empty means the default column name.
	IDColumn          string `yaml:"id_column"`
	RegexColumn       string `yaml:"regex_column"`
	ExplanationColumn string `yaml:"explanation_column"`

	// MatchTimeout bounds backtracking for a single regex evaluation.
	MatchTimeout time.Duration `yaml:"match_timeout"`
}

// TaggerEntry configures one tagging oracle. The primary entry may list
// further entries in Fallbacks; those are tried in order when the primary
// fails or its circuit breaker is open.
type TaggerEntry struct {
	// Name selects the registered factory (e.g., "treetagger", "openai").
	Name string `yaml:"name"`

	// Command and Args configure an executable-backed tagger.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Timeout bounds a single tagging call.
	Timeout time.Duration `yaml:"timeout"`

	// Model, APIKey and BaseURL configure an LLM-backed tagger.
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	Fallbacks []TaggerEntry `yaml:"fallbacks"`
}

// ResilienceConfig tunes the per-tagger circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// BatchConfig controls directory batch processing of M2 files.
type BatchConfig struct {
	InputDir    string `yaml:"input_dir"`
	OutputDir   string `yaml:"output_dir"`
	Glob        string `yaml:"glob"`
	Concurrency int    `yaml:"concurrency"`

	// FailFast aborts the whole batch on the first sentence failure instead
	// of recording the error and continuing.
	FailFast bool `yaml:"fail_fast"`

	// Compress writes .json.xz files instead of plain .json.
	Compress bool `yaml:"compress"`
}

// StoreConfig selects where per-sentence results are persisted.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig configures the metrics endpoint.
type TelemetryConfig struct {
	// MetricsAddr is the listen address for /metrics (e.g., ":9464").
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}
