// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails implements the staged content-safety pipeline: a
// registry of pluggable checks, a concurrent stage orchestrator with
// tripwire semantics, a pre-flight masking pass, and a streaming checker.
//
// Checks run at three points relative to the model call:
//   - pre_flight: before anything else; its detections drive payload masking
//   - input: against the (masked) user input, concurrent with the model call
//   - output: against the model response, complete or streaming
//
// Example usage:
//
//	reg := guardrails.NewRegistry()
//	checks.RegisterAll(reg)
//
//	pipe, err := guardrails.NewPipeline(reg, cfg.Pipeline)
//	if err != nil {
//	    return err
//	}
//	results, err := pipe.RunStage(ctx, guardrails.StageInput, userText, guardrails.RunOptions{})
package guardrails

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// MediaTypeText is the only content type the engine recognizes today.
// Compatibility is exact string equality; no hierarchy or wildcards.
const MediaTypeText = "text/plain"

// Validator normalizes a raw value, returning a descriptive error on
// invalid input. The engine treats validators as opaque.
type Validator interface {
	Parse(value any) (any, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value any) (any, error)

func (f ValidatorFunc) Parse(value any) (any, error) { return f(value) }

// permissiveValidator accepts any value unchanged. Substituted when a
// specification omits a validator.
var permissiveValidator = ValidatorFunc(func(value any) (any, error) { return value, nil })

// Metadata describes how a check executes.
type Metadata struct {
	// Engine names the detection engine behind the check, e.g. "regex" or "llm".
	Engine string

	// UsesConversationHistory marks checks that want the conversation
	// exposed through the invocation data.
	UsesConversationHistory bool
}

// CheckFunc is the uniform check contract. Implementations must be
// effect-free beyond computing the Result and must not mutate data.
type CheckFunc func(ctx context.Context, data CheckData, config any) (Result, error)

// Specification catalogs a named check definition. Immutable once registered.
type Specification struct {
	Name        string
	Description string
	MediaType   string
	Metadata    Metadata

	configValidator  Validator
	contextValidator Validator
	check            CheckFunc
}

// SpecOption configures a Specification at registration time.
type SpecOption func(*Specification)

// WithMediaType sets the media type the check accepts. Default is text/plain.
func WithMediaType(mt string) SpecOption {
	return func(s *Specification) {
		if mt != "" {
			s.MediaType = mt
		}
	}
}

// WithConfigValidator sets the validator applied to raw configuration
// during Instantiate.
func WithConfigValidator(v Validator) SpecOption {
	return func(s *Specification) {
		if v != nil {
			s.configValidator = v
		}
	}
}

// WithContextValidator sets the validator applied to the execution context.
func WithContextValidator(v Validator) SpecOption {
	return func(s *Specification) {
		if v != nil {
			s.contextValidator = v
		}
	}
}

// WithCheckMetadata sets the specification metadata.
func WithCheckMetadata(md Metadata) SpecOption {
	return func(s *Specification) {
		s.Metadata = md
	}
}

// Instantiate validates raw configuration and binds it to the specification.
func (s *Specification) Instantiate(raw any) (*ConfiguredCheck, error) {
	cfg, err := s.configValidator.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate guardrail %q: %w", s.Name, err)
	}
	return &ConfiguredCheck{spec: s, config: cfg}, nil
}

// ValidateContext runs the context validator against an execution context
// value. Specifications without a context validator accept anything.
func (s *Specification) ValidateContext(value any) error {
	if _, err := s.contextValidator.Parse(value); err != nil {
		return fmt.Errorf("guardrail %q rejected execution context: %w", s.Name, err)
	}
	return nil
}

// Registry catalogs check specifications by name. The zero value is not
// usable; construct with NewRegistry. Tests should build isolated
// registries instead of mutating the shared default.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Specification
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Specification)}
}

// Register stores a specification under its name. Registration is
// last-write-wins, which supports hot override in tests.
func (r *Registry) Register(name, description string, check CheckFunc, opts ...SpecOption) {
	if check == nil {
		panic(fmt.Sprintf("guardrails: check function for %q is nil", name))
	}
	spec := &Specification{
		Name:             name,
		Description:      description,
		MediaType:        MediaTypeText,
		configValidator:  permissiveValidator,
		contextValidator: permissiveValidator,
		check:            check,
	}
	for _, opt := range opts {
		opt(spec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[name] = spec
}

// Get returns the specification registered under name.
func (r *Registry) Get(name string) (*Specification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the registered check names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate looks up a specification and binds validated configuration.
// An unknown name fails fast so pipelines never run partially configured.
func (r *Registry) Instantiate(name string, raw any) (*ConfiguredCheck, error) {
	spec, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("guardrail %q not found in registry", name)
	}
	return spec.Instantiate(raw)
}

// defaultRegistry is the process-wide catalog kept for ergonomic
// convenience. Prefer explicit registries injected at startup.
var defaultRegistry = NewRegistry()

// Default returns the shared default registry.
func Default() *Registry { return defaultRegistry }

// Register registers a check in the default registry.
func Register(name, description string, check CheckFunc, opts ...SpecOption) {
	defaultRegistry.Register(name, description, check, opts...)
}

// RegisterCheck registers a check whose configuration is the typed value C,
// keeping compile-time safety at the registration site. Raw configuration
// maps are decoded into C during Instantiate; type erasure happens only at
// the catalog boundary.
func RegisterCheck[C any](r *Registry, name, description string, fn func(ctx context.Context, data CheckData, cfg C) (Result, error), opts ...SpecOption) {
	wrapped := func(ctx context.Context, data CheckData, config any) (Result, error) {
		cfg, _ := config.(C)
		return fn(ctx, data, cfg)
	}
	opts = append([]SpecOption{WithConfigValidator(ConfigDecoder[C]())}, opts...)
	r.Register(name, description, wrapped, opts...)
}

// ConfigDecoder returns a Validator that decodes raw configuration maps
// into C. A value already of type C passes through; nil yields the zero C.
func ConfigDecoder[C any]() Validator {
	return ValidatorFunc(func(raw any) (any, error) {
		var cfg C
		if raw == nil {
			return cfg, nil
		}
		if typed, ok := raw.(C); ok {
			return typed, nil
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, err
		}
		return cfg, nil
	})
}
