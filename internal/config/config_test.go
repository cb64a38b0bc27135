package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agenthub.json")
	raw := `{
		"llm": {"provider": "ollama", "ollama": {"host": "http://127.0.0.1:11434", "model": "llama3.1", "timeout_seconds": 30}},
		"classifier": {"default_agent": "general"}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.TaskStore.Driver != "memory" || cfg.Storage.TaskStore.Retries != 3 {
		t.Fatalf("unexpected task store defaults: %+v", cfg.Storage.TaskStore)
	}
	if cfg.TaskQueue.Driver != "memory" || cfg.TaskQueue.Worker != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.TaskQueue)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.4 || cfg.Classifier.MemoryDepth != 5 {
		t.Fatalf("unexpected classifier defaults: %+v", cfg.Classifier)
	}
	if cfg.Classifier.DefaultAgent != "general" {
		t.Fatalf("default agent not preserved: %s", cfg.Classifier.DefaultAgent)
	}
	if cfg.Agents.Manifest != filepath.Join(dir, "agents.yaml") {
		t.Fatalf("manifest path not resolved: %s", cfg.Agents.Manifest)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir not resolved: %s", cfg.Runtime.DataDir)
	}
	if cfg.Auth.Mode != "disabled" {
		t.Fatalf("unexpected auth mode: %s", cfg.Auth.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
