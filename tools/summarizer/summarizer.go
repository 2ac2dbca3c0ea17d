// Package summarizer implements the report→sections tool (C6, spec.md
// §4.6): build a deterministic prompt, call a backend in JSON mode, parse
// and validate the result, retrying on parse/validation failure.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deckgen/deckgen/internal/cache"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/section"
)

// Input is the llm.summarize tool's params (spec.md §4.6, §6).
type Input struct {
	ReportText     string `json:"report_text"`
	MaxBullets     int    `json:"max_bullets"`
	MaxScriptChars int    `json:"max_script_chars"`
	MaxSections    int    `json:"max_sections"`
	ModelID        string `json:"model_id"`
}

// ParamsSchema is the llm.summarize JSON Schema, registered with
// jsonrpc.RegisterWithSchema so unknown params are rejected (spec.md §4.1
// "forbid-extra").
const ParamsSchema = `{
	"type": "object",
	"properties": {
		"report_text": {"type": "string"},
		"max_bullets": {"type": "integer"},
		"max_script_chars": {"type": "integer"},
		"max_sections": {"type": "integer"},
		"model_id": {"type": "string"}
	},
	"required": ["report_text"],
	"additionalProperties": false
}`

const defaultMaxBullets = 6

// defaultCacheTTL is used when WithCacheTTL is not supplied.
const defaultCacheTTL = 24 * time.Hour

// Backend abstracts the underlying model call. Complete must return raw
// text, possibly wrapped in a code fence and/or a single-element array, per
// spec.md §4.6 steps 2-4.
type Backend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Tool implements llm.summarize.
type Tool struct {
	backend  Backend
	cache    cache.Store
	cacheTTL time.Duration
	log      telemetry.Logger
	tracer   telemetry.Tracer
	policy   retry.Policy
}

// Option configures a Tool.
type Option func(*Tool)

// WithCache enables result caching (spec.md §4.3). Without it, every call
// hits the backend.
func WithCache(store cache.Store) Option {
	return func(t *Tool) { t.cache = store }
}

// WithCacheTTL overrides how long a cached summary stays valid (spec.md
// §4.3). Defaults to 24h.
func WithCacheTTL(ttl time.Duration) Option {
	return func(t *Tool) { t.cacheTTL = ttl }
}

// WithTelemetry wires structured logging and tracing.
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

// WithRetryPolicy overrides the default parse/validate retry envelope.
func WithRetryPolicy(p retry.Policy) Option {
	return func(t *Tool) { t.policy = p }
}

// New constructs a Tool calling backend.
func New(backend Backend, opts ...Option) *Tool {
	t := &Tool{
		backend:  backend,
		cacheTTL: defaultCacheTTL,
		log:      telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		policy:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Summarize runs the full §4.6 algorithm, returning a validated
// SummarizerOutput. maxSections defaults to 10 when unset.
func (t *Tool) Summarize(ctx context.Context, in Input) (section.SummarizerOutput, error) {
	ctx, span := t.tracer.Start(ctx, "summarizer.summarize")
	defer span.End()

	maxBullets := in.MaxBullets
	if maxBullets <= 0 {
		maxBullets = defaultMaxBullets
	}
	maxScriptChars := in.MaxScriptChars
	if maxScriptChars <= 0 {
		maxScriptChars = section.DefaultMaxScriptChars
	}
	maxSections := in.MaxSections
	if maxSections <= 0 || maxSections > 10 {
		maxSections = 10
	}

	var cacheKey string
	if t.cache != nil {
		key, err := cache.Key(in.ModelID, in.ReportText, maxBullets, maxScriptChars, maxSections)
		if err == nil {
			cacheKey = key
			if raw, ok := t.cache.Get("llm_summarize", cacheKey, t.cacheTTL); ok {
				var out section.SummarizerOutput
				if err := json.Unmarshal(raw, &out); err == nil {
					t.log.Debug(ctx, "llm_summarize cache hit", "key", cacheKey)
					return out, nil
				}
			}
		}
	}

	systemPrompt, userPrompt := buildPrompt(in, maxBullets, maxScriptChars, maxSections)

	var out section.SummarizerOutput
	attempt := 0
	// Only parse/validation failures are retried; a backend failure bubbles.
	retryInvalidOutput := func(err error) bool { return toolerr.KindOf(err) == toolerr.InvalidOutput }
	err := retry.Do(ctx, t.policy, retryInvalidOutput, func(ctx context.Context) error {
		attempt++
		raw, err := t.backend.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return toolerr.Wrap(toolerr.Permanent, "summarizer backend unavailable", err)
		}
		parsed, err := section.NormalizeSummarizerJSON([]byte(stripCodeFence(raw)))
		if err != nil {
			return toolerr.Wrap(toolerr.InvalidOutput, "summarizer output failed to parse", err)
		}
		for i := range parsed.Sections {
			parsed.Sections[i].TruncateScript(maxScriptChars)
		}
		if err := parsed.Validate(maxScriptChars); err != nil {
			return toolerr.Wrap(toolerr.InvalidOutput, "summarizer output failed schema validation", err)
		}
		out = parsed
		return nil
	})
	if err != nil {
		if toolerr.KindOf(err) != toolerr.InvalidOutput {
			return section.SummarizerOutput{}, err
		}
		t.log.Error(ctx, "llm_summarize exhausted retries", "attempts", attempt, "error", err.Error())
		return section.SummarizerOutput{}, toolerr.Wrap(toolerr.InvalidOutput, "summarizer failed after retries", err)
	}

	if t.cache != nil && cacheKey != "" {
		if data, err := json.Marshal(out); err == nil {
			_ = t.cache.Set("llm_summarize", cacheKey, data)
		}
	}
	return out, nil
}

// Handle adapts Summarize to a jsonrpc.Handler.
func (t *Tool) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var in Input
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, toolerr.Wrap(toolerr.BadRequest, "invalid llm.summarize params", err)
	}
	if strings.TrimSpace(in.ReportText) == "" {
		return nil, toolerr.New(toolerr.BadRequest, "report_text is required")
	}
	return t.Summarize(ctx, in)
}

func buildPrompt(in Input, maxBullets, maxScriptChars, maxSections int) (system, user string) {
	system = fmt.Sprintf(
		"You produce slide content for a presentation deck. Return a single JSON object "+
			`matching {"sections":[{"title":string,"subtitle":string,"bullets":[string],`+
			`"script":string,"image_prompt":string}]} with %d..%d sections. No prose, no `+
			"markdown, JSON only. Bullets: at most %d, each a short clause. Script: at most "+
			"%d characters, written for narration.",
		1, maxSections, maxBullets, maxScriptChars)

	example := `{"sections":[{"title":"Example Title","subtitle":"Example Subtitle",` +
		`"bullets":["First point","Second point","Third point"],"script":"Short narration.",` +
		`"image_prompt":"A professional illustration"}]}`

	user = fmt.Sprintf("--- REPORT ---\n%s\n--- END REPORT ---\n\nExample shape (values are placeholders):\n%s",
		in.ReportText, example)
	return system, user
}

// stripCodeFence removes a leading/trailing ``` fence (optionally tagged
// ```json) per spec.md §4.6 step 3.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
