// Package imagegen implements the image generator tool (C7, spec.md §4.7):
// prompt → ImageArtifact, with retry wrapping and optional shared-URL
// upload. Failure is soft — callers (orchestrator) treat any error as "no
// image" and proceed.
package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/section"
)

// SafetyTier enumerates the accepted safety_tier values (spec.md §4.7).
type SafetyTier string

const (
	SafetyDefault       SafetyTier = "default"
	SafetyBlockMost     SafetyTier = "block_most"
	SafetyBlockOnlyHigh SafetyTier = "block_only_high"
	SafetyBlockNone     SafetyTier = "block_none"
)

// aspectToSize is the fixed lookup table from spec.md §4.7 step 1.
var aspectToSize = map[string][2]int{
	"16:9": {1280, 720},
	"1:1":  {1024, 1024},
	"4:3":  {1024, 768},
}

// Input is the image.generate tool's params (spec.md §4.7, §6).
type Input struct {
	Prompt       string     `json:"prompt"`
	Aspect       string     `json:"aspect"`
	Size         string     `json:"size,omitempty"`
	SafetyTier   SafetyTier `json:"safety_tier"`
	ReturnShared bool       `json:"return_shared"`
	ModelID      string     `json:"model_id"`
}

// ParamsSchema is the image.generate JSON Schema, registered with
// jsonrpc.RegisterWithSchema so unknown params are rejected (spec.md §4.1
// "forbid-extra").
const ParamsSchema = `{
	"type": "object",
	"properties": {
		"prompt": {"type": "string"},
		"aspect": {"type": "string"},
		"size": {"type": "string"},
		"safety_tier": {"type": "string", "enum": ["default", "block_most", "block_only_high", "block_none"]},
		"return_shared": {"type": "boolean"},
		"model_id": {"type": "string"}
	},
	"required": ["prompt", "aspect"],
	"additionalProperties": false
}`

// GeneratedImage is the raw bytes returned by a Backend call, before local
// persistence and optional shared upload.
type GeneratedImage struct {
	PNGBytes []byte
}

// Backend abstracts the remote image model. Width/height come from the
// aspect lookup (or an explicit override), already resolved by the caller.
type Backend interface {
	Generate(ctx context.Context, prompt string, width, height int, safety SafetyTier) (GeneratedImage, error)
}

// Uploader uploads local image bytes to a shared blob store, returning a
// public URL (spec.md §4.7 step 4). Tools that never set return_shared can
// pass a nil Uploader.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (publicURL string, err error)
}

// Tool implements image.generate.
type Tool struct {
	backend  Backend
	uploader Uploader
	outDir   string
	cache    cache.Store
	cacheTTL time.Duration
	log      telemetry.Logger
	tracer   telemetry.Tracer
	policy   retry.Policy
	nowFunc  func() time.Time
}

// defaultCacheTTL is used when WithCacheTTL is not supplied.
const defaultCacheTTL = 24 * time.Hour

// Option configures a Tool.
type Option func(*Tool)

func WithCache(store cache.Store) Option { return func(t *Tool) { t.cache = store } }

// WithCacheTTL overrides how long a cached image stays valid (spec.md
// §4.3). Defaults to 24h.
func WithCacheTTL(ttl time.Duration) Option { return func(t *Tool) { t.cacheTTL = ttl } }

func WithUploader(u Uploader) Option { return func(t *Tool) { t.uploader = u } }

func WithTelemetry(log telemetry.Logger, tracer telemetry.Tracer) Option {
	return func(t *Tool) {
		if log != nil {
			t.log = log
		}
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option { return func(t *Tool) { t.policy = p } }

// New constructs a Tool. outDir is where local PNGs are persisted
// (suggested: out/images, spec.md §6 "Persisted state layout").
func New(backend Backend, outDir string, opts ...Option) *Tool {
	t := &Tool{
		backend:  backend,
		outDir:   outDir,
		cacheTTL: defaultCacheTTL,
		log:      telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		policy:   retry.DefaultPolicy(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Generate runs the full §4.7 algorithm.
func (t *Tool) Generate(ctx context.Context, in Input) (section.ImageArtifact, error) {
	ctx, span := t.tracer.Start(ctx, "imagegen.generate")
	defer span.End()

	width, height, err := resolveSize(in.Aspect, in.Size)
	if err != nil {
		return section.ImageArtifact{}, toolerr.Wrap(toolerr.BadRequest, "invalid aspect/size", err)
	}

	var cacheKey string
	if t.cache != nil {
		key, err := cache.Key(in.ModelID, in.Prompt, in.Aspect, in.Size, in.ReturnShared)
		if err == nil {
			cacheKey = key
			if raw, ok := t.cache.Get("imagen", cacheKey, t.cacheTTL); ok {
				var artifact section.ImageArtifact
				if err := json.Unmarshal(raw, &artifact); err == nil {
					t.log.Debug(ctx, "imagen cache hit", "key", cacheKey)
					return artifact, nil
				}
			}
		}
	}

	var generated GeneratedImage
	err = retry.Do(ctx, t.policy, retry.IsRetryableToolErr, func(ctx context.Context) error {
		img, err := t.backend.Generate(ctx, in.Prompt, width, height, in.SafetyTier)
		if err != nil {
			return err
		}
		generated = img
		return nil
	})
	if err != nil {
		return section.ImageArtifact{}, fmt.Errorf("imagegen: backend call failed: %w", err)
	}

	localPath := filepath.Join(t.outDir, fmt.Sprintf("imagen_%d.png", t.nowFunc().Unix()))
	if err := os.MkdirAll(t.outDir, 0o755); err != nil {
		return section.ImageArtifact{}, fmt.Errorf("imagegen: create out dir: %w", err)
	}
	if err := os.WriteFile(localPath, generated.PNGBytes, 0o644); err != nil {
		return section.ImageArtifact{}, fmt.Errorf("imagegen: persist image: %w", err)
	}

	artifact := section.ImageArtifact{Kind: section.ImageKindLocal, Value: localPath}
	if in.ReturnShared {
		if t.uploader == nil {
			return section.ImageArtifact{}, toolerr.New(toolerr.Permanent, "return_shared requested but no uploader configured")
		}
		url, err := t.uploader.Upload(ctx, localPath)
		if err != nil {
			return section.ImageArtifact{}, toolerr.Wrap(toolerr.Transient, "shared upload failed", err)
		}
		artifact = section.ImageArtifact{Kind: section.ImageKindURL, Value: url}
	}

	if t.cache != nil && cacheKey != "" {
		if data, err := json.Marshal(artifact); err == nil {
			_ = t.cache.Set("imagen", cacheKey, data)
		}
	}
	return artifact, nil
}

// Handle adapts Generate to a jsonrpc.Handler. Result shape matches spec.md
// §6: {local_path?, url?, drive_file_id?} with at least one populated.
func (t *Tool) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var in Input
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, toolerr.Wrap(toolerr.BadRequest, "invalid image.generate params", err)
	}
	artifact, err := t.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	result := map[string]string{}
	switch artifact.Kind {
	case section.ImageKindLocal:
		result["local_path"] = artifact.Value
	case section.ImageKindURL:
		result["url"] = artifact.Value
	case section.ImageKindHandle:
		result["drive_file_id"] = artifact.Value
	}
	return result, nil
}

// resolveSize maps aspect to (width, height) via the fixed lookup, honoring
// an explicit "WxH" size override (spec.md §4.7 step 1).
func resolveSize(aspect, size string) (width, height int, err error) {
	if size != "" {
		var w, h int
		if _, err := fmt.Sscanf(size, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			return 0, 0, fmt.Errorf("invalid size override %q", size)
		}
		return w, h, nil
	}
	wh, ok := aspectToSize[aspect]
	if !ok {
		return 0, 0, fmt.Errorf("unknown aspect %q", aspect)
	}
	return wh[0], wh[1], nil
}
