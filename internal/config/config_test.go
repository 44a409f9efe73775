package config

import (
	"testing"
	"time"
)

func TestGetterDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "STORE_DRIVER", "LLM_PROVIDER", "EMBEDDING_DIMENSIONS",
		"LLM_TIMEOUT", "DIVERSITY_PENALTY", "PHASE_MID_START", "CANONICAL_MIN_TURNS"} {
		t.Setenv(key, "")
	}

	if got := ServerPort(); got != 8080 {
		t.Errorf("ServerPort() = %d, want 8080", got)
	}
	if got := StoreDriver(); got != "postgres" {
		t.Errorf("StoreDriver() = %q, want postgres", got)
	}
	if got := LLMProvider(); got != "openai" {
		t.Errorf("LLMProvider() = %q, want openai", got)
	}
	if got := EmbeddingDimensions(); got != 384 {
		t.Errorf("EmbeddingDimensions() = %d, want 384", got)
	}
	if got := LLMTimeout(); got != 30*time.Second {
		t.Errorf("LLMTimeout() = %v, want 30s", got)
	}
	if got := DiversityPenalty(); got != 0.3 {
		t.Errorf("DiversityPenalty() = %f, want 0.3", got)
	}
	if got := PhaseMidStart(); got != 4 {
		t.Errorf("PhaseMidStart() = %d, want 4", got)
	}
	if got := CanonicalMinTurns(); got != 0 {
		t.Errorf("CanonicalMinTurns() = %d, want 0", got)
	}
}

func TestGetterOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DIVERSITY_PENALTY", "0")
	t.Setenv("EMBEDDING_TIMEOUT", "250ms")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("SURFACE_SIMILARITY_THRESHOLD", "not-a-number")

	if got := ServerAddr(); got != ":9090" {
		t.Errorf("ServerAddr() = %q, want :9090", got)
	}
	if got := DiversityPenalty(); got != 0 {
		t.Errorf("DiversityPenalty() = %f, want 0", got)
	}
	if got := EmbeddingTimeout(); got != 250*time.Millisecond {
		t.Errorf("EmbeddingTimeout() = %v, want 250ms", got)
	}
	if got := LLMAPIKey(); got != "g-key" {
		t.Errorf("LLMAPIKey() = %q, want g-key", got)
	}
	if got := SurfaceSimilarityThreshold(); got != 0.80 {
		t.Errorf("SurfaceSimilarityThreshold() = %f, want 0.80", got)
	}
}
