// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Command railguard runs guarded chat turns against a configured LLM
// provider and inspects recorded audit runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/railguard-ai/railguard/pkg/audit"
	"github.com/railguard-ai/railguard/pkg/client"
	"github.com/railguard-ai/railguard/pkg/config"
	"github.com/railguard-ai/railguard/pkg/guardrails"
	"github.com/railguard-ai/railguard/pkg/guardrails/checks"
	"github.com/railguard-ai/railguard/pkg/llm"
	"github.com/railguard-ai/railguard/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		prompt     = flag.String("prompt", "", "user prompt for the chat command")
		stream     = flag.Bool("stream", false, "stream the response token by token")
	)
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	cmd := flag.Arg(0)
	switch cmd {
	case "", "chat":
		runChat(ctx, cfg, logger, *prompt, *stream)
	case "runs":
		runAuditList(ctx, cfg)
	case "config":
		runConfigDump(cfg)
	case "version":
		fmt.Println("railguard", version)
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger, prompt string, stream bool) {
	if prompt == "" {
		fatal(errors.New("chat requires -prompt"))
	}

	tel, err := telemetry.Init("railguard", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer tel.Shutdown(context.Background())

	provider, err := buildProvider(cfg)
	if err != nil {
		fatal(err)
	}

	registry := guardrails.NewRegistry()
	checks.RegisterAll(registry)

	pipeline, err := guardrails.NewPipeline(registry, cfg.Pipeline,
		guardrails.WithProvider(provider),
		guardrails.WithLogger(logger),
		guardrails.WithPipelineMetrics(tel.Metrics),
	)
	if err != nil {
		fatal(err)
	}

	opts := []client.Option{
		client.WithClientLogger(logger),
		client.WithSuppressTripwires(cfg.Guard.SuppressTripwires),
		client.WithRaiseOnExecutionError(cfg.Guard.RaiseOnExecutionError),
		client.WithStreamCheckInterval(cfg.Guard.StreamCheckInterval),
	}
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			fatal(err)
		}
		defer store.Close()
		opts = append(opts, client.WithAuditStore(store))
	}

	guarded, err := client.New(provider, pipeline, opts...)
	if err != nil {
		fatal(err)
	}

	req := llm.ChatRequest{
		Model: cfg.LLM.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
	}

	if stream {
		chatStream(ctx, guarded, req)
		return
	}

	resp, err := guarded.Chat(ctx, req)
	if err != nil {
		reportTripwire(err)
		fatal(err)
	}
	fmt.Println(resp.Content)
	if tripped := resp.GuardrailResults.Triggered(); len(tripped) > 0 {
		for _, res := range tripped {
			fmt.Fprintf(os.Stderr, "note: %s/%s flagged: %s\n",
				res.Info.Stage, res.Info.CheckName, res.Info.Reason)
		}
	}
}

func chatStream(ctx context.Context, guarded *client.GuardedClient, req llm.ChatRequest) {
	ch, err := guarded.ChatStream(ctx, req)
	if err != nil {
		reportTripwire(err)
		fatal(err)
	}
	for item := range ch {
		if item.Err != nil {
			fmt.Println()
			reportTripwire(item.Err)
			fatal(item.Err)
		}
		fmt.Print(item.Chunk.Content)
	}
	fmt.Println()
}

func runAuditList(ctx context.Context, cfg *config.Config) {
	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	runs, err := store.Runs(ctx, 50)
	if err != nil {
		fatal(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tTRIPPED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%v\n", run.RunID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.Tripped)
	}
	w.Flush()
}

func runConfigDump(cfg *config.Config) {
	out, err := cfg.Dump()
	if err != nil {
		fatal(err)
	}
	fmt.Print(out)
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "mock":
		return &llm.MockProvider{Response: "mock response"}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func reportTripwire(err error) {
	var tripwire *guardrails.TripwireError
	if errors.As(err, &tripwire) {
		fmt.Fprintf(os.Stderr, "blocked by guardrail: stage=%s check=%s reason=%s\n",
			tripwire.Result.Info.Stage,
			tripwire.Result.Info.CheckName,
			tripwire.Result.Info.Reason,
		)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: railguard [flags] [command]

Commands:
  chat      run one guarded chat turn (default)
  runs      list recorded audit runs
  config    print the effective configuration
  version   print the version

Flags:
`)
	flag.PrintDefaults()
}
