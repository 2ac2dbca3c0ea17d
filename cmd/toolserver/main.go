// Command toolserver runs the stdio JSON-RPC dispatcher exposing
// llm.summarize, image.generate, slides.create, and data.query (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deckgen/deckgen/data/catalog"
	"github.com/deckgen/deckgen/data/query"
	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/config"
	"github.com/deckgen/deckgen/internal/idempotency"
	"github.com/deckgen/deckgen/internal/jsonrpc"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/tools/deck"
	deckhttp "github.com/deckgen/deckgen/tools/deck/httpbackend"
	"github.com/deckgen/deckgen/tools/imagegen"
	imagegenhttp "github.com/deckgen/deckgen/tools/imagegen/httpbackend"
	"github.com/deckgen/deckgen/tools/summarizer"
	"github.com/deckgen/deckgen/tools/summarizer/anthropic"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "toolserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load(os.Getenv("DECKGEN_CONFIG"))
	log := telemetry.NewClueLogger()
	tracer := telemetry.NewNoopTracer()
	policy := retry.Policy{
		Attempts: cfg.Retry.Attempts,
		Base:     secondsToDuration(cfg.Retry.BaseSecs),
		Max:      secondsToDuration(cfg.Retry.MaxSecs),
	}

	var cacheStore cache.Store
	cacheTTL := time.Duration(cfg.Cache.TTLHours * float64(time.Hour))
	if cfg.Cache.Enabled {
		cacheStore = cache.NewFileStore(filepath.Join(cfg.Storage.OutDir, "cache"))
	}
	idempStore := idempotency.NewFileStore(filepath.Join(cfg.Storage.OutDir, "state", "idempotency.json"))

	summarizerBackend, err := anthropic.NewFromAPIKey(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	if err != nil {
		return fmt.Errorf("build summarizer backend: %w", err)
	}
	summarizerOpts := []summarizer.Option{summarizer.WithTelemetry(log, tracer), summarizer.WithRetryPolicy(policy)}
	if cacheStore != nil {
		summarizerOpts = append(summarizerOpts, summarizer.WithCache(cacheStore), summarizer.WithCacheTTL(cacheTTL))
	}
	summarizerTool := summarizer.New(summarizerBackend, summarizerOpts...)

	if cfg.Backends.ImageGenURL == "" {
		return fmt.Errorf("backends.imagegen_url is required")
	}
	imagegenBackend := imagegenhttp.New(cfg.Backends.ImageGenURL)
	imagegenOpts := []imagegen.Option{imagegen.WithTelemetry(log, tracer), imagegen.WithRetryPolicy(policy)}
	if cacheStore != nil {
		imagegenOpts = append(imagegenOpts, imagegen.WithCache(cacheStore), imagegen.WithCacheTTL(cacheTTL))
	}
	imagegenTool := imagegen.New(imagegenBackend, filepath.Join(cfg.Storage.OutDir, "images"), imagegenOpts...)

	if cfg.Backends.DeckURL == "" {
		return fmt.Errorf("backends.deck_url is required")
	}
	deckBackend := deckhttp.New(cfg.Backends.DeckURL)
	deckTool := deck.New(deckBackend, idempStore, deck.WithTelemetry(log, tracer), deck.WithRetryPolicy(policy))

	cat, err := catalog.New(filepath.Join(cfg.Storage.OutDir, "data"))
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	queryTool := query.New(cat, filepath.Join(cfg.Storage.OutDir, "images", "charts"),
		query.WithSQLBackend(summarizerBackend),
		query.WithInsightsBackend(summarizerBackend),
		query.WithTelemetry(log, tracer))

	registry := jsonrpc.NewRegistry()
	if err := registry.RegisterWithSchema("llm.summarize", summarizer.ParamsSchema, summarizerTool.Handle); err != nil {
		return fmt.Errorf("register llm.summarize: %w", err)
	}
	if err := registry.RegisterWithSchema("image.generate", imagegen.ParamsSchema, imagegenTool.Handle); err != nil {
		return fmt.Errorf("register image.generate: %w", err)
	}
	if err := registry.RegisterWithSchema("slides.create", deck.ParamsSchema, deckTool.Handle); err != nil {
		return fmt.Errorf("register slides.create: %w", err)
	}
	if err := registry.RegisterWithSchema("data.query", query.ParamsSchema, queryTool.Handle); err != nil {
		return fmt.Errorf("register data.query: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dispatcher := jsonrpc.NewDispatcher(registry, log)
	return dispatcher.Serve(ctx, os.Stdin, os.Stdout)
}

func secondsToDuration(s float64) (d time.Duration) {
	return time.Duration(s * float64(time.Second))
}
