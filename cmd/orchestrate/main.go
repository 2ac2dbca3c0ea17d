// Command orchestrate runs the report-to-deck pipeline once against a
// local report file (spec.md §6 CLI surface).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

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

const (
	exitOK          = 0
	exitBadArgs     = 2
	exitRuntimeFail = 1
)

func main() {
	os.Exit(mainE())
}

func mainE() int {
	fs := flag.NewFlagSet("orchestrate", flag.ContinueOnError)
	requestID := fs.String("request-id", "", "idempotency key for the run")
	noCache := fs.Bool("no-cache", false, "disable the result cache")
	cacheTTLHours := fs.Float64("cache-ttl-hours", 24, "cache entry lifetime in hours")
	slideCount := fs.Int("slides", 5, "number of slides to render (1..10)")
	imageAspect := fs.String("image-aspect", "16:9", "image aspect ratio (16:9, 1:1, or 4:3)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: orchestrate <report_path> [--request-id <k>] [--no-cache] [--cache-ttl-hours <f>] [--slides <n>] [--image-aspect <ratio>]")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return exitBadArgs
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitBadArgs
	}
	reportPath := fs.Arg(0)

	reportBytes, err := os.ReadFile(reportPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrate: report not found:", err)
		return exitBadArgs
	}

	cfg := config.Load(os.Getenv("DECKGEN_CONFIG"))
	if *noCache {
		cfg.Cache.Enabled = false
	}
	cfg.Cache.TTLHours = *cacheTTLHours

	result, err := runOnce(reportBytes, *requestID, *slideCount, *imageAspect, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrate:", err)
		return exitRuntimeFail
	}

	fmt.Printf("presentation_id=%s url=%s created_slides=%d first_slide_id=%s\n",
		result.PresentationID, result.URL, result.CreatedSlides, result.FirstSlideID)
	return exitOK
}

func runOnce(reportBytes []byte, requestID string, slideCount int, imageAspect string, cfg config.Config) (orchestrator.Result, error) {
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
		return orchestrator.Result{}, fmt.Errorf("build summarizer backend: %w", err)
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
			Aspect: imageAspect,
		}
	}

	if cfg.Backends.DeckURL == "" {
		return orchestrator.Result{}, fmt.Errorf("backends.deck_url is required")
	}
	deckBackend := deckhttp.New(cfg.Backends.DeckURL)
	deckTool := deck.New(deckBackend, idempStore, deck.WithTelemetry(log, tracer), deck.WithRetryPolicy(policy))

	orch := orchestrator.New(
		orchestrator.SummarizerAdapter{Tool: summarizerTool},
		imageGenAdapter,
		deckTool,
		orchestrator.WithTelemetry(log, tracer),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	return orch.Run(ctx, orchestrator.Request{
		ReportText:      string(reportBytes),
		ClientRequestID: requestID,
		SlideCount:      slideCount,
		ImageSize:       imageAspect,
	})
}
