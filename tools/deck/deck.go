// Package deck implements the deck renderer tool (C8, spec.md §4.8):
// create-or-extend a presentation with one new slide per call, with
// idempotency-store-backed dedup on client_request_id.
package deck

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckgen/deckgen/internal/idempotency"
	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
	"github.com/deckgen/deckgen/section"
)

const maxPresentationTitleChars = 120

// Input is the slides.create tool's params (spec.md §4.8, §6).
type Input struct {
	ClientRequestID  string   `json:"client_request_id,omitempty"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle,omitempty"`
	Bullets          []string `json:"bullets"`
	Script           string   `json:"script"`
	ImageLocalPath   string   `json:"image_local_path,omitempty"`
	ImageURL         string   `json:"image_url,omitempty"`
	ImageHandle      string   `json:"image_handle,omitempty"`
	ShareImagePublic bool     `json:"share_image_public"`
	Aspect           string   `json:"aspect,omitempty"`
	PresentationID   string   `json:"presentation_id,omitempty"`
}

// ParamsSchema is the slides.create JSON Schema, registered with
// jsonrpc.RegisterWithSchema so unknown params are rejected (spec.md §4.1
// "forbid-extra").
const ParamsSchema = `{
	"type": "object",
	"properties": {
		"client_request_id": {"type": "string"},
		"title": {"type": "string"},
		"subtitle": {"type": "string"},
		"bullets": {"type": "array", "items": {"type": "string"}},
		"script": {"type": "string"},
		"image_local_path": {"type": "string"},
		"image_url": {"type": "string"},
		"image_handle": {"type": "string"},
		"share_image_public": {"type": "boolean"},
		"aspect": {"type": "string"},
		"presentation_id": {"type": "string"}
	},
	"required": ["title", "bullets", "script"],
	"additionalProperties": false
}`

// Result is the slides.create tool's output (spec.md §4.8, §6).
type Result struct {
	DeckRef        section.DeckRef `json:"-"`
	PresentationID string          `json:"presentation_id"`
	SlideID        string          `json:"slide_id"`
	URL            string          `json:"url"`
	ReusedExisting bool            `json:"reused_existing,omitempty"`
}

// SlideContent is what Backend.CreateSlide renders onto a new slide
// (spec.md §4.8 step 4: title/subtitle text boxes, bulleted list, optional
// image region). At most one of ImageLocalPath, ImageURL, ImageHandle is
// set; the backend resolves whichever source was supplied into the
// slide's image region (uploading a local path itself, if needed).
type SlideContent struct {
	Title          string
	Subtitle       string
	Bullets        []string
	ImageLocalPath string
	ImageURL       string
	ImageHandle    string
	ShareImage     bool
}

// Backend performs the actual presentation/slide mutations against the
// rendering service.
type Backend interface {
	// CreatePresentation creates a new deck titled title and returns its id,
	// a viewer URL, and the id of the auto-created first blank slide.
	CreatePresentation(ctx context.Context, title string) (presentationID, url, blankSlideID string, err error)
	// DeleteSlide removes slideID from presentationID. Best-effort: errors
	// are logged and do not fail the call (spec.md §4.8 step 3).
	DeleteSlide(ctx context.Context, presentationID, slideID string) error
	// CreateSlide appends one slide with content to presentationID.
	CreateSlide(ctx context.Context, presentationID string, content SlideContent) (slideID string, err error)
	// SetSpeakerNotes sets slideID's presenter notes to script.
	SetSpeakerNotes(ctx context.Context, presentationID, slideID, script string) error
	// AddScriptFallbackTextBox writes script into a small labeled text box
	// at the bottom of the slide, used when SetSpeakerNotes fails (spec.md
	// §4.8 step 5).
	AddScriptFallbackTextBox(ctx context.Context, presentationID, slideID, script string) error
}

// Tool implements slides.create.
type Tool struct {
	backend Backend
	store   idempotency.Store
	log     telemetry.Logger
	tracer  telemetry.Tracer
	policy  retry.Policy
}

// Option configures a Tool.
type Option func(*Tool)

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

// New constructs a Tool. store persists client_request_id → DeckRef
// (spec.md §4.4).
func New(backend Backend, store idempotency.Store, opts ...Option) *Tool {
	t := &Tool{
		backend: backend,
		store:   store,
		log:     telemetry.NewNoopLogger(),
		tracer:  telemetry.NewNoopTracer(),
		policy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create runs the full §4.8 algorithm.
func (t *Tool) Create(ctx context.Context, in Input) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "deck.create")
	defer span.End()

	if in.ClientRequestID != "" {
		if ref, ok := t.store.Lookup(in.ClientRequestID); ok {
			slideID := ""
			if n := len(ref.SlideIDs); n > 0 {
				slideID = ref.SlideIDs[n-1]
			}
			return Result{
				DeckRef: ref, PresentationID: ref.PresentationID, SlideID: slideID,
				URL: ref.URL, ReusedExisting: true,
			}, nil
		}
	}

	if err := validateImageSource(in); err != nil {
		return Result{}, err
	}

	presentationID := in.PresentationID
	url := ""
	var deckRef section.DeckRef
	var err error

	if presentationID == "" {
		title := in.Title
		if in.Subtitle != "" {
			title = truncate(title+": "+in.Subtitle, maxPresentationTitleChars)
		} else {
			title = truncate(title, maxPresentationTitleChars)
		}
		var blankSlideID string
		err = retry.Do(ctx, t.policy, retry.IsRetryableToolErr, func(ctx context.Context) error {
			pid, u, blank, err := t.backend.CreatePresentation(ctx, title)
			if err != nil {
				return err
			}
			presentationID, url, blankSlideID = pid, u, blank
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("deck: create presentation: %w", err)
		}
		if blankSlideID != "" {
			if err := t.backend.DeleteSlide(ctx, presentationID, blankSlideID); err != nil {
				t.log.Warn(ctx, "failed to delete auto-created blank slide", "presentation_id", presentationID, "error", err.Error())
			}
		}
	}
	deckRef = section.DeckRef{PresentationID: presentationID, URL: url}

	var slideID string
	err = retry.Do(ctx, t.policy, retry.IsRetryableToolErr, func(ctx context.Context) error {
		id, err := t.backend.CreateSlide(ctx, presentationID, SlideContent{
			Title:          in.Title,
			Subtitle:       in.Subtitle,
			Bullets:        in.Bullets,
			ImageLocalPath: in.ImageLocalPath,
			ImageURL:       in.ImageURL,
			ImageHandle:    in.ImageHandle,
			ShareImage:     in.ShareImagePublic,
		})
		if err != nil {
			return err
		}
		slideID = id
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("deck: create slide: %w", err)
	}
	deckRef.SlideIDs = append(deckRef.SlideIDs, slideID)

	if err := t.backend.SetSpeakerNotes(ctx, presentationID, slideID, in.Script); err != nil {
		t.log.Warn(ctx, "primary speaker-notes path failed, trying fallback", "error", err.Error())
		if fallbackErr := t.backend.AddScriptFallbackTextBox(ctx, presentationID, slideID, in.Script); fallbackErr != nil {
			t.log.Error(ctx, "speaker-notes fallback also failed", "error", fallbackErr.Error())
		}
	}

	if in.ClientRequestID != "" {
		if err := t.store.Record(in.ClientRequestID, deckRef); err != nil {
			t.log.Error(ctx, "failed to record idempotency entry", "client_request_id", in.ClientRequestID, "error", err.Error())
		}
	}

	return Result{
		DeckRef: deckRef, PresentationID: presentationID, SlideID: slideID, URL: url,
	}, nil
}

// Handle adapts Create to a jsonrpc.Handler.
func (t *Tool) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var in Input
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, toolerr.Wrap(toolerr.BadRequest, "invalid slides.create params", err)
	}
	if in.Title == "" {
		return nil, toolerr.New(toolerr.BadRequest, "title is required")
	}
	return t.Create(ctx, in)
}

// validateImageSource enforces "exactly one image source or none" (spec.md
// §4.8 rule 2).
func validateImageSource(in Input) error {
	count := 0
	if in.ImageLocalPath != "" {
		count++
	}
	if in.ImageURL != "" {
		count++
	}
	if in.ImageHandle != "" {
		count++
	}
	if count > 1 {
		return toolerr.New(toolerr.BadRequest, "provide exactly one of image_local_path, image_url, image_handle")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
