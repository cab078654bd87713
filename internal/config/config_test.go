package config

import (
	"strings"
	"testing"
)

func setupChromaEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("RETRIEVER", "chroma")
	t.Setenv("CHROMA_API_KEY", "ck")
	t.Setenv("CHROMA_TENANT", "tenant")
	t.Setenv("CHROMA_DATABASE", "db")
}

func TestLoad_Defaults(t *testing.T) {
	setupChromaEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.DatabaseURL != "policy_assistant.db" {
		t.Fatalf("unexpected database url: %s", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected port: %s", cfg.HTTPPort)
	}
	if cfg.ChromaCollection != "rag_collection" {
		t.Fatalf("unexpected collection: %s", cfg.ChromaCollection)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("expected auth disabled by default, got secret %q", cfg.JWTSecret)
	}
}

func TestLoad_RequiresGeminiKey(t *testing.T) {
	setupChromaEnv(t)
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected missing key error")
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_RequiresChromaCredentials(t *testing.T) {
	setupChromaEnv(t)
	t.Setenv("CHROMA_TENANT", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected missing chroma config error")
	}
	if !strings.Contains(err.Error(), "CHROMA_TENANT") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_LocalRetrieverSkipsChromaValidation(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("RETRIEVER", "local")
	t.Setenv("CHROMA_API_KEY", "")
	t.Setenv("CHROMA_TENANT", "")
	t.Setenv("CHROMA_DATABASE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.IndexPath != "policy_index.db" {
		t.Fatalf("unexpected index path: %s", cfg.IndexPath)
	}
}

func TestLoad_RejectsUnknownRetriever(t *testing.T) {
	setupChromaEnv(t)
	t.Setenv("RETRIEVER", "pinecone")
	_, err := Load()
	if err == nil {
		t.Fatal("expected invalid retriever error")
	}
	if !strings.Contains(err.Error(), "pinecone") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_NormalizesRetrieverCase(t *testing.T) {
	setupChromaEnv(t)
	t.Setenv("RETRIEVER", "Chroma")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Retriever != RetrieverChroma {
		t.Fatalf("unexpected retriever: %s", cfg.Retriever)
	}
}
