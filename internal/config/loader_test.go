package config_test

import (
	"strings"
	"testing"

	"github.com/hifzlab/tasmee/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
verify:
  default_strictness: lenient
  variants_file: /etc/tasmee/variants.yaml
semantic:
  enabled: true
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  fallback:
    name: ollama
    base_url: http://localhost:11434
    model: llama3
  timeout_seconds: 10
  max_concurrent: 2
hifz:
  stage_hours:
    learn1: 24
    join1: 24
    learn2: 24
    join2: 24
    full_page: 48
  repetitions:
    learn1: 5
    join1: 10
    learn2: 5
    join2: 10
    full_page: 20
  default_proficiency: intermediate
storage:
  postgres_dsn: "postgres://localhost/tasmee"
  redis_url: "redis://localhost:6379/0"
review:
  path: /var/lib/tasmee/review.jsonl
  threshold: 70
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Semantic.Enabled || cfg.Semantic.Provider.Name != "openai" {
		t.Errorf("semantic = %+v", cfg.Semantic)
	}
	if cfg.Semantic.Fallback == nil || cfg.Semantic.Fallback.Name != "ollama" {
		t.Errorf("fallback = %+v", cfg.Semantic.Fallback)
	}
	if cfg.Review.Threshold != 70 {
		t.Errorf("review.threshold = %d", cfg.Review.Threshold)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_levle: debug
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "log_levle") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for bad log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_SemanticEnabledRequiresProvider(t *testing.T) {
	t.Parallel()
	yaml := `
semantic:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled refinement without provider, got nil")
	}
	if !strings.Contains(err.Error(), "semantic.provider.name") {
		t.Errorf("error should mention semantic.provider.name, got: %v", err)
	}
}

func TestValidate_UnknownStage(t *testing.T) {
	t.Parallel()
	yaml := `
hifz:
  stage_hours:
    revision: 24
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown stage, got nil")
	}
	if !strings.Contains(err.Error(), "revision") {
		t.Errorf("error should name the unknown stage, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
verify:
  default_strictness: harsh
review:
  threshold: 150
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "default_strictness", "threshold"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidAnalyzerNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the list is populated.
	if len(config.ValidAnalyzerNames) == 0 {
		t.Fatal("ValidAnalyzerNames should not be empty")
	}
	found := false
	for _, n := range config.ValidAnalyzerNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error(`ValidAnalyzerNames should contain "openai"`)
	}
}
