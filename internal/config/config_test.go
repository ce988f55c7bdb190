package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("STAGE_RERANKER", "")
	t.Setenv("HYPOTHESIS_TIMEOUT", "")
	t.Setenv("RERANK_BATCH_SIZE", "")

	p := Load().Pipeline()
	if !p.Stages.Reranker || !p.Stages.Hypothesis {
		t.Fatalf("expected optional stages enabled by default, got %+v", p.Stages)
	}
	if p.Hypothesis.Timeout != 2*time.Second {
		t.Fatalf("expected hypothesis timeout 2s, got %v", p.Hypothesis.Timeout)
	}
	if p.Rerank.BatchSize != 15 {
		t.Fatalf("expected rerank batch 15, got %d", p.Rerank.BatchSize)
	}
	if p.Fusion.RRFK != 60 {
		t.Fatalf("expected rrf k 60, got %d", p.Fusion.RRFK)
	}
}

func TestLoadParsesPipelineOverrides(t *testing.T) {
	t.Setenv("STAGE_RERANKER", "false")
	t.Setenv("HYPOTHESIS_TIMEOUT", "750")
	t.Setenv("INTERPRETER_TIMEOUT", "3s")
	t.Setenv("RERANK_BATCH_SIZE", "10")
	t.Setenv("CONTRACTS", "safeway_2022, kroger_2023,")
	t.Setenv("REDIS_ADDRS", "localhost:6379")
	t.Setenv("EXPLICIT_ARTICLE_SCORE", "0.9")
	t.Setenv("EXPANSION_TOP_K", "4")
	t.Setenv("BM25_K1", "1.2")

	cfg := Load()
	p := cfg.Pipeline()
	if p.Stages.Reranker {
		t.Fatalf("expected reranker disabled")
	}
	if p.Hypothesis.Timeout != 750*time.Millisecond {
		t.Fatalf("expected millisecond timeout, got %v", p.Hypothesis.Timeout)
	}
	if p.Interpreter.Timeout != 3*time.Second {
		t.Fatalf("expected duration timeout, got %v", p.Interpreter.Timeout)
	}
	if p.Rerank.BatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", p.Rerank.BatchSize)
	}
	if len(cfg.Contracts) != 2 || cfg.Contracts[1] != "kroger_2023" {
		t.Fatalf("unexpected contracts: %v", cfg.Contracts)
	}
	if len(cfg.RedisAddrs) != 1 {
		t.Fatalf("unexpected redis addrs: %v", cfg.RedisAddrs)
	}
	if p.Interpreter.ExplicitArticleScore != 0.9 || p.Assembly.TopK != 4 {
		t.Fatalf("unexpected interpreter/assembly overrides: %+v %+v", p.Interpreter, p.Assembly)
	}
	if idx := cfg.ChunkIndex(); idx.K1 != 1.2 || idx.B != 0.75 {
		t.Fatalf("unexpected keyword index options: %+v", idx)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.StorageBackend = "localfs"
	cfg.ChunkSource = "storage"
	cfg.LLMProvider = "ollama"
	cfg.VectorBackend = "memory"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.StorageBackend = "s3"
	cfg.S3Bucket = ""
	cfg.LLMProvider = "gemini"
	cfg.GeminiAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation errors")
	}
}

func TestLoadDotEnvIgnoresMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nAPI_PORT=9999\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("API_PORT", "7000")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "debug" {
		t.Fatalf("expected LOG_LEVEL from file, got %q", got)
	}
	if got := os.Getenv("API_PORT"); got != "7000" {
		t.Fatalf("expected existing API_PORT to win, got %q", got)
	}
}
