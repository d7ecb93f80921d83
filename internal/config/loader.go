package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidTaggerNames lists the tagger names the CLI registers out of the box.
// Used by [Validate] to warn about unrecognised tagger names.
var ValidTaggerNames = []string{"treetagger", "openai", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML config from r and fills in defaults without
// validating. Callers that apply overrides validate afterwards.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Fields that were set explicitly are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Patterns.MatchTimeout == 0 {
		cfg.Patterns.MatchTimeout = DefaultMatchTimeout
	}
	if cfg.Tagger.Name == "" {
		cfg.Tagger.Name = DefaultTaggerName
	}
	applyTaggerDefaults(&cfg.Tagger)
	for i := range cfg.Tagger.Fallbacks {
		applyTaggerDefaults(&cfg.Tagger.Fallbacks[i])
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Batch.InputDir == "" {
		cfg.Batch.InputDir = DefaultBatchInputDir
	}
	if cfg.Batch.OutputDir == "" {
		cfg.Batch.OutputDir = DefaultBatchOutputDir
	}
	if cfg.Batch.Glob == "" {
		cfg.Batch.Glob = DefaultBatchGlob
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = DefaultConcurrency
	}
}

func applyTaggerDefaults(e *TaggerEntry) {
	if e.Name == DefaultTaggerName && e.Command == "" {
		e.Command = DefaultTaggerCommand
	}
	if e.Timeout == 0 {
		e.Timeout = DefaultTaggerTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Patterns.File == "" {
		errs = append(errs, errors.New("patterns.file is required"))
	}
	if cfg.Patterns.MatchTimeout < 0 {
		errs = append(errs, fmt.Errorf("patterns.match_timeout %s must not be negative", cfg.Patterns.MatchTimeout))
	}

	errs = append(errs, validateTagger("tagger", cfg.Tagger)...)
	for i, fb := range cfg.Tagger.Fallbacks {
		prefix := fmt.Sprintf("tagger.fallbacks[%d]", i)
		errs = append(errs, validateTagger(prefix, fb)...)
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks: nested fallbacks are not supported", prefix))
		}
	}

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	if cfg.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency %d must be positive", cfg.Batch.Concurrency))
	}

	if !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver))
	} else if cfg.Store.Driver.NeedsDSN() && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required when driver is %s", cfg.Store.Driver))
	}

	return errors.Join(errs...)
}

func validateTagger(prefix string, e TaggerEntry) []error {
	var errs []error
	if e.Name == "" {
		return append(errs, fmt.Errorf("%s.name is required", prefix))
	}
	validateTaggerName(e.Name)
	switch e.Name {
	case "treetagger":
		if e.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required for treetagger", prefix))
		}
	case "openai":
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for openai", prefix))
		}
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, e.Timeout))
	}
	return errs
}

// validateTaggerName logs a warning if name is not in [ValidTaggerNames].
// Unknown names are not an error: a caller may register its own factory.
func validateTaggerName(name string) {
	if slices.Contains(ValidTaggerNames, name) {
		return
	}
	slog.Warn("unknown tagger name, may be a typo or a custom tagger",
		"name", name,
		"known", ValidTaggerNames,
	)
}

// DecodeConfig parses and validates a YAML config held in memory.
func DecodeConfig(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
