// Command edge runs the HTTP edge in front of the orchestrator and data
// catalog (spec.md §6): POST /render, POST /data/upload, POST /data/ask.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/deckgen/deckgen/data/catalog"
	"github.com/deckgen/deckgen/data/query"
	"github.com/deckgen/deckgen/httpapi"
	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/config"
	"github.com/deckgen/deckgen/internal/idempotency"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/orchestrator"
	"github.com/deckgen/deckgen/tools/deck"
	deckhttp "github.com/deckgen/deckgen/tools/deck/httpbackend"
	"github.com/deckgen/deckgen/tools/imagegen"
	imagegenhttp "github.com/deckgen/deckgen/tools/imagegen/httpbackend"
	"github.com/deckgen/deckgen/tools/summarizer"
	"github.com/deckgen/deckgen/tools/summarizer/anthropic"
)

// defaultImageAspect matches the aspect ratio httpapi falls back to when a
// request doesn't specify one, so image generation is reachable end to end.
const defaultImageAspect = "16:9"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "edge:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load(os.Getenv("DECKGEN_CONFIG"))
	log := telemetry.NewClueLogger()
	tracer := telemetry.NewNoopTracer()
	policy := retry.Policy{
		Attempts: cfg.Retry.Attempts,
		Base:     time.Duration(cfg.Retry.BaseSecs * float64(time.Second)),
		Max:      time.Duration(cfg.Retry.MaxSecs * float64(time.Second)),
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

	var imageGenAdapter orchestrator.ImageGenerator
	if cfg.Backends.ImageGenURL != "" {
		imagegenBackend := imagegenhttp.New(cfg.Backends.ImageGenURL)
		imagegenOpts := []imagegen.Option{imagegen.WithTelemetry(log, tracer), imagegen.WithRetryPolicy(policy)}
		if cacheStore != nil {
			imagegenOpts = append(imagegenOpts, imagegen.WithCache(cacheStore), imagegen.WithCacheTTL(cacheTTL))
		}
		imageGenAdapter = orchestrator.ImageGeneratorAdapter{
			Tool:   imagegen.New(imagegenBackend, filepath.Join(cfg.Storage.OutDir, "images"), imagegenOpts...),
			Aspect: defaultImageAspect,
		}
	}

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

	orch := orchestrator.New(
		orchestrator.SummarizerAdapter{Tool: summarizerTool},
		imageGenAdapter,
		deckTool,
		orchestrator.WithDataQuery(orchestrator.DataQueryAdapter{Tool: queryTool}),
		orchestrator.WithTelemetry(log, tracer),
	)

	srv := httpapi.New(orch, cat, httpapi.WithTelemetry(log))

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	}
	log.Info(context.Background(), "edge listening", "addr", cfg.Server.Addr)
	return httpSrv.ListenAndServe()
}
