// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Railguard configuration with defaults, file, and
// environment layering.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	rgerrors "github.com/railguard-ai/railguard/pkg/errors"
	"github.com/railguard-ai/railguard/pkg/guardrails"
)

type Config struct {
	Log       LogConfig                 `koanf:"log" yaml:"log"`
	LLM       LLMConfig                 `koanf:"llm" yaml:"llm"`
	Telemetry TelemetryConfig           `koanf:"telemetry" yaml:"telemetry"`
	Pipeline  guardrails.PipelineConfig `koanf:"pipeline" yaml:"pipeline"`
	Guard     GuardConfig               `koanf:"guard" yaml:"guard"`
	Audit     AuditConfig               `koanf:"audit" yaml:"audit"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider" yaml:"provider"` // ollama, mock
	Model    string `koanf:"model" yaml:"model"`
	BaseURL  string `koanf:"base_url" yaml:"base_url"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter" yaml:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure" yaml:"otlp_insecure"`
}

// GuardConfig tunes pipeline execution behavior.
type GuardConfig struct {
	// RaiseOnExecutionError fails closed on check infrastructure faults.
	RaiseOnExecutionError bool `koanf:"raise_on_execution_error" yaml:"raise_on_execution_error"`

	// SuppressTripwires reports violations in results without raising
	// (inspection-only deployments).
	SuppressTripwires bool `koanf:"suppress_tripwires" yaml:"suppress_tripwires"`

	// StreamCheckInterval is the chunk interval between periodic output
	// checks on streams.
	StreamCheckInterval int `koanf:"stream_check_interval" yaml:"stream_check_interval"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Path    string `koanf:"path" yaml:"path"`
}

func Load(path string) (*Config, error) {
	// Fresh instance per load so watcher reloads never accumulate
	// stale keys.
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("telemetry.exporter", "stdout")
	k.Set("guard.stream_check_interval", 100)
	k.Set("audit.enabled", false)
	k.Set("audit.path", "railguard-audit.db")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, rgerrors.New(rgerrors.CodeConfig, "failed to load config file", err).
				WithContext("path", path)
		}
	}

	// 2. Load from ENV (RAILGUARD_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("RAILGUARD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RAILGUARD_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, rgerrors.New(rgerrors.CodeConfig, "failed to unmarshal config", err)
	}

	return &cfg, nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() (string, error) {
	out, err := yamlv3.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
