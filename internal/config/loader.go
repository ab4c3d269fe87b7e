package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidAnalyzerNames lists known semantic analyzer backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidAnalyzerNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Verify
	if _, err := cfg.Verify.Strictness(); err != nil {
		errs = append(errs, err)
	}

	// Semantic refinement
	if cfg.Semantic.Enabled && cfg.Semantic.Provider.Name == "" {
		errs = append(errs, fmt.Errorf("semantic.provider.name is required when semantic.enabled is true"))
	}
	if cfg.Semantic.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("semantic.timeout_seconds must not be negative, got %d", cfg.Semantic.TimeoutSeconds))
	}
	if cfg.Semantic.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("semantic.max_concurrent must not be negative, got %d", cfg.Semantic.MaxConcurrent))
	}
	validateAnalyzerName(cfg.Semantic.Provider.Name)
	if cfg.Semantic.Fallback != nil {
		if cfg.Semantic.Fallback.Name == "" {
			errs = append(errs, fmt.Errorf("semantic.fallback.name is required when semantic.fallback is set"))
		}
		validateAnalyzerName(cfg.Semantic.Fallback.Name)
	}
	if !cfg.Semantic.Enabled && cfg.Semantic.Provider.Name != "" {
		slog.Warn("semantic.provider is configured but semantic.enabled is false; refinement stays off")
	}

	// Progression scheduling
	if _, err := cfg.Hifz.PlanConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Hifz.Proficiency(); err != nil {
		errs = append(errs, err)
	}

	// Review queue
	if cfg.Review.Threshold < 0 || cfg.Review.Threshold > 100 {
		errs = append(errs, fmt.Errorf("review.threshold %d is out of range [0, 100]", cfg.Review.Threshold))
	}
	if cfg.Review.Threshold > 0 && cfg.Review.Path == "" {
		slog.Warn("review.threshold is set but review.path is empty; low scores will not be queued")
	}

	return errors.Join(errs...)
}

// validateAnalyzerName logs a warning if name is non-empty and not found in
// [ValidAnalyzerNames].
func validateAnalyzerName(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidAnalyzerNames, name) {
		return
	}
	slog.Warn("unknown analyzer name — may be a typo or third-party provider",
		"name", name,
		"known", ValidAnalyzerNames,
	)
}
