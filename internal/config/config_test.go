package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSelectionDefaults(t *testing.T) {
	t.Setenv("SELECTION_STRATEGY", "")
	t.Setenv("DIVERSITY_LAMBDA", "")
	t.Setenv("TEMPERATURE", "")
	t.Setenv("ADAPTIVE_PERCENTILE", "")
	t.Setenv("REFRAG_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SelectionStrategy != "similarity" {
		t.Fatalf("expected default strategy similarity, got %q", cfg.SelectionStrategy)
	}
	if cfg.DiversityLambda != 0.5 {
		t.Fatalf("expected default lambda 0.5, got %v", cfg.DiversityLambda)
	}
	if cfg.Temperature != 1.0 {
		t.Fatalf("expected default temperature 1.0, got %v", cfg.Temperature)
	}
	if cfg.AdaptivePercentile != 0.75 {
		t.Fatalf("expected default percentile 0.75, got %v", cfg.AdaptivePercentile)
	}
	if cfg.RetrieverBackend != "static" {
		t.Fatalf("expected default backend static, got %q", cfg.RetrieverBackend)
	}
}

func TestLoadParsesSelectionOverrides(t *testing.T) {
	t.Setenv("SELECTION_STRATEGY", "mmr")
	t.Setenv("DIVERSITY_LAMBDA", "0.3")
	t.Setenv("MIN_SCORE", "0.25")
	t.Setenv("ENSEMBLE_WEIGHTS", "0.5, 0.3, 0.2")
	t.Setenv("REFRAG_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SelectionStrategy != "mmr" {
		t.Fatalf("expected strategy override, got %q", cfg.SelectionStrategy)
	}
	if cfg.DiversityLambda != 0.3 {
		t.Fatalf("expected lambda 0.3, got %v", cfg.DiversityLambda)
	}

	minScore, err := cfg.ParseMinScore()
	if err != nil {
		t.Fatalf("ParseMinScore() error = %v", err)
	}
	if minScore == nil || *minScore != 0.25 {
		t.Fatalf("minScore = %v", minScore)
	}

	weights, err := cfg.ParseEnsembleWeights()
	if err != nil {
		t.Fatalf("ParseEnsembleWeights() error = %v", err)
	}
	if len(weights) != 3 || weights[0] != 0.5 || weights[1] != 0.3 || weights[2] != 0.2 {
		t.Fatalf("weights = %v", weights)
	}
}

func TestParseMinScoreEmptyMeansNoFloor(t *testing.T) {
	cfg := Config{MinScore: "  "}
	minScore, err := cfg.ParseMinScore()
	if err != nil {
		t.Fatalf("ParseMinScore() error = %v", err)
	}
	if minScore != nil {
		t.Fatalf("minScore = %v, want nil", *minScore)
	}

	cfg = Config{MinScore: "abc"}
	if _, err := cfg.ParseMinScore(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadAppliesYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refrag.yaml")
	overlay := []byte("selection_strategy: ensemble\nretrieve_k: 12\napi_rate_limit_rps: 25\ngeneration_enabled: true\n")
	if err := os.WriteFile(path, overlay, 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	t.Setenv("SELECTION_STRATEGY", "mmr")
	t.Setenv("RETRIEVE_K", "5")
	t.Setenv("REFRAG_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// File values win over environment values.
	if cfg.SelectionStrategy != "ensemble" {
		t.Fatalf("strategy = %q", cfg.SelectionStrategy)
	}
	if cfg.RetrieveK != 12 {
		t.Fatalf("retrieve k = %d", cfg.RetrieveK)
	}
	if cfg.RateLimitRPS != 25 {
		t.Fatalf("rps = %v", cfg.RateLimitRPS)
	}
	if !cfg.GenerationEnabled {
		t.Fatalf("generation enabled = false")
	}
	// Keys absent from the file keep their environment values.
	if cfg.APIPort != "8080" {
		t.Fatalf("api port = %q", cfg.APIPort)
	}
}

func TestLoadRejectsMalformedOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refrag.yaml")
	if err := os.WriteFile(path, []byte("retrieve_k: [not an int\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("REFRAG_CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed overlay")
	}
}
