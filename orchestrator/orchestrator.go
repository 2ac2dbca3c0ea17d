// Package orchestrator implements the report-to-deck driver (C11, spec.md
// §4.11): summarize a report into sections, optionally blend in per-question
// data-query sections, and render one slide per section onto a single
// presentation, tolerating partial failure.
package orchestrator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/section"
	"github.com/deckgen/deckgen/tools/deck"
)

const (
	minSlides                 = 1
	maxSlides                 = 10
	maxDataQuestionTitleChars = 120
)

// Summarizer is the narrow capability the orchestrator needs from C6.
type Summarizer interface {
	Summarize(ctx context.Context, in SummarizeInput) (section.SummarizerOutput, error)
}

// SummarizeInput mirrors tools/summarizer.Input without importing it
// directly, so the orchestrator can be tested against a fake.
type SummarizeInput struct {
	ReportText     string
	ModelID        string
	MaxBullets     int
	MaxScriptChars int
	MaxSections    int
}

// ImageGenerator is the narrow capability the orchestrator needs from C7.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (section.ImageArtifact, error)
}

// DataQuery is the narrow capability the orchestrator needs from C10, used
// only in mixed mode.
type DataQuery interface {
	Ask(ctx context.Context, datasetID, question string) (DataAnswer, error)
}

// DataAnswer is the subset of a data.query Result the orchestrator turns
// into a section.
type DataAnswer struct {
	ChartPNGPath string
	Insights     []string
}

// DeckBackend is the narrow capability the orchestrator needs from C8.
type DeckBackend interface {
	Create(ctx context.Context, in deck.Input) (deck.Result, error)
}

// Request is the orchestrator's report-to-deck input (spec.md §4.11).
type Request struct {
	ReportText      string
	ClientRequestID string
	SlideCount      int
	ModelID         string
	ImageSize       string
	DatasetID       string
	DataQuestions   []string
}

// Result is the orchestrator's output (spec.md §4.11).
type Result struct {
	PresentationID string
	URL            string
	CreatedSlides  int
	FirstSlideID   string
}

// Orchestrator implements the report-only and mixed-mode algorithms.
type Orchestrator struct {
	summarizer Summarizer
	imagegen   ImageGenerator
	deckTool   DeckBackend
	dataQuery  DataQuery
	log        telemetry.Logger
	tracer     telemetry.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithDataQuery(dq DataQuery) Option { return func(o *Orchestrator) { o.dataQuery = dq } }
func WithTelemetry(log telemetry.Logger, tracer telemetry.Tracer) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// New constructs an Orchestrator.
func New(summarizer Summarizer, imagegen ImageGenerator, deckTool DeckBackend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		summarizer: summarizer,
		imagegen:   imagegen,
		deckTool:   deckTool,
		log:        telemetry.NewNoopLogger(),
		tracer:     telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full §4.11 algorithm (report-only, or mixed mode when
// req.DataQuestions is non-empty).
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	requestID := req.ClientRequestID
	if requestID == "" {
		generated, err := randomRequestID()
		if err != nil {
			return Result{}, fmt.Errorf("orchestrator: generate request id: %w", err)
		}
		requestID = generated
	}

	slideCount := req.SlideCount
	if slideCount < minSlides {
		slideCount = minSlides
	}
	if slideCount > maxSlides {
		slideCount = maxSlides
	}

	sections, err := o.summarizer.Summarize(ctx, SummarizeInput{
		ReportText: req.ReportText, ModelID: req.ModelID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: summarize: %w", err)
	}

	allSections := append([]section.Section(nil), sections.Sections...)
	// presetImages[i] is a chart already rendered to disk for allSections[i]
	// (mixed mode); when set it is used directly instead of calling C7.
	presetImages := make([]string, len(allSections))
	if len(req.DataQuestions) > 0 {
		dataSections, chartPaths, err := o.runDataQuestions(ctx, req.DatasetID, req.DataQuestions)
		if err != nil {
			return Result{}, err
		}
		allSections = append(allSections, dataSections...)
		presetImages = append(presetImages, chartPaths...)
	}

	actual := minInt(slideCount, len(allSections))
	if actual == 0 {
		return Result{}, nil
	}

	var result Result
	for i := 1; i <= actual; i++ {
		sec := allSections[i-1]
		perSlideID := fmt.Sprintf("%s#s%d", requestID, i)

		var image section.ImageArtifact
		switch {
		case presetImages[i-1] != "":
			image = section.ImageArtifact{Kind: section.ImageKindLocal, Value: presetImages[i-1]}
		case sec.ImagePrompt != "" && o.imagegen != nil:
			img, err := o.imagegen.Generate(ctx, sec.ImagePrompt)
			if err != nil {
				o.log.Warn(ctx, "image generation failed, slide proceeds without image", "slide", i, "error", err.Error())
			} else {
				image = img
			}
		}

		in := deck.Input{
			ClientRequestID: perSlideID,
			Title:           sec.Title,
			Subtitle:        sec.Subtitle,
			Bullets:         sec.Bullets,
			Script:          sec.Script,
			Aspect:          req.ImageSize,
		}
		applyImage(&in, image)
		if i > 1 {
			in.PresentationID = result.PresentationID
		}

		deckResult, err := o.deckTool.Create(ctx, in)
		if err != nil {
			if i == 1 {
				return Result{}, fmt.Errorf("orchestrator: create slide 1: %w", err)
			}
			o.log.Error(ctx, "deck renderer failed, returning partial deck", "slide", i, "error", err.Error())
			result.CreatedSlides = i - 1
			return result, nil
		}

		if i == 1 {
			result.PresentationID = deckResult.PresentationID
			result.URL = deckResult.URL
			result.FirstSlideID = deckResult.SlideID
		}
		result.CreatedSlides = i
	}

	return result, nil
}

// runDataQuestions answers each question via C10 and turns it into a
// section whose bullets are the insights and whose title is derived from
// the question (spec.md §4.11 mixed mode). The parallel chartPaths slice
// carries each section's pre-rendered chart image path (may be empty).
func (o *Orchestrator) runDataQuestions(ctx context.Context, datasetID string, questions []string) (sections []section.Section, chartPaths []string, err error) {
	if o.dataQuery == nil {
		return nil, nil, toolerr.New(toolerr.BadRequest, "data_questions provided but no data query backend configured")
	}
	for _, q := range questions {
		ans, err := o.dataQuery.Ask(ctx, datasetID, q)
		if err != nil {
			o.log.Warn(ctx, "data question failed, skipping", "question", q, "error", err.Error())
			continue
		}
		sections = append(sections, section.Section{
			Title:   truncate(titleCaseFirst(q), maxDataQuestionTitleChars),
			Bullets: padBullets(ans.Insights),
			Script:  q,
		})
		chartPaths = append(chartPaths, ans.ChartPNGPath)
	}
	return sections, chartPaths, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func titleCaseFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - ('a' - 'A')
	}
	return string(r)
}

// padBullets ensures insights satisfy Section's 3..8 bullet bound by
// padding with a filler bullet when short; Section.Validate is the
// authority on bounds, this just keeps degenerate 1-2 bullet insight lists
// from failing validation outright.
func padBullets(insights []string) []string {
	bullets := append([]string(nil), insights...)
	for len(bullets) < 3 {
		bullets = append(bullets, "See chart for details.")
	}
	if len(bullets) > 8 {
		bullets = bullets[:8]
	}
	return bullets
}

func applyImage(in *deck.Input, image section.ImageArtifact) {
	switch image.Kind {
	case section.ImageKindLocal:
		in.ImageLocalPath = image.Value
	case section.ImageKindURL:
		in.ImageURL = image.Value
	case section.ImageKindHandle:
		in.ImageHandle = image.Value
	}
}

func randomRequestID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// BatchIdempotencyKey derives the deterministic per-item key for batch mode
// (spec.md §4.11: "req-<sha256(text)[:16]>").
func BatchIdempotencyKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "req-" + hex.EncodeToString(sum[:])[:16]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
