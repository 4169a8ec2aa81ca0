// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testYAML = `
log:
  level: debug
  format: json
llm:
  provider: mock
  model: test-model
pipeline:
  pre_flight:
    guardrails:
      - name: pii
        config:
          entities: [email]
  input:
    guardrails:
      - name: keywords
        config:
          keywords: [forbidden]
guard:
  raise_on_execution_error: true
  stream_check_interval: 10
audit:
  enabled: true
  path: /tmp/test-audit.db
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "railguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %q", cfg.LLM.Provider)
	}
	if cfg.Guard.StreamCheckInterval != 100 {
		t.Errorf("expected default stream interval 100, got %d", cfg.Guard.StreamCheckInterval)
	}
	if cfg.Audit.Enabled {
		t.Error("audit must be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeTempConfig(t, testYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.LLM.Provider != "mock" || cfg.LLM.Model != "test-model" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	// Defaults survive for keys the file does not set.
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("expected default base url, got %q", cfg.LLM.BaseURL)
	}
	if !cfg.Guard.RaiseOnExecutionError {
		t.Error("expected raise_on_execution_error true")
	}
	if cfg.Guard.StreamCheckInterval != 10 {
		t.Errorf("expected stream interval 10, got %d", cfg.Guard.StreamCheckInterval)
	}

	pre := cfg.Pipeline.PreFlight.Guardrails
	if len(pre) != 1 || pre[0].Name != "pii" {
		t.Fatalf("unexpected pre_flight bundle: %+v", pre)
	}
	entities, ok := pre[0].Config["entities"].([]any)
	if !ok || len(entities) != 1 || entities[0] != "email" {
		t.Errorf("unexpected pii config: %v", pre[0].Config)
	}
	in := cfg.Pipeline.Input.Guardrails
	if len(in) != 1 || in[0].Name != "keywords" {
		t.Errorf("unexpected input bundle: %+v", in)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeTempConfig(t, testYAML)
	t.Setenv("RAILGUARD_LLM_MODEL", "env-model")
	t.Setenv("RAILGUARD_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("expected env override, got %q", cfg.LLM.Model)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected env override, got %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDump(t *testing.T) {
	path := writeTempConfig(t, testYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := cfg.Dump()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"pre_flight:", "name: pii", "provider: mock", "raise_on_execution_error: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestWatcherReload(t *testing.T) {
	path := writeTempConfig(t, testYAML)
	w, err := NewWatcher(path, WithWatchInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx := t.Context()
	w.Start(ctx)
	defer w.Stop()

	if w.Config().LLM.Model != "test-model" {
		t.Fatalf("unexpected initial model: %q", w.Config().LLM.Model)
	}

	// mtime granularity on some filesystems is one second.
	time.Sleep(1100 * time.Millisecond)
	updated := strings.Replace(testYAML, "test-model", "new-model", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.LLM.Model != "new-model" {
			t.Errorf("expected reloaded model, got %q", cfg.LLM.Model)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
