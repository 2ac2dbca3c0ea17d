// Package httpbackend implements deck.Backend over a remote HTTP JSON-RPC
// slide-rendering service.
package httpbackend

import (
	"context"

	"github.com/deckgen/deckgen/internal/backendclient"
	"github.com/deckgen/deckgen/tools/deck"
)

// Backend calls a remote slides service over HTTP JSON-RPC.
type Backend struct {
	client *backendclient.Client
}

// New builds a Backend targeting endpoint.
func New(endpoint string, opts ...backendclient.Option) *Backend {
	return &Backend{client: backendclient.New(endpoint, opts...)}
}

// Ensure Backend implements deck.Backend.
var _ deck.Backend = (*Backend)(nil)

type createPresentationResult struct {
	PresentationID string `json:"presentation_id"`
	URL            string `json:"url"`
	BlankSlideID   string `json:"blank_slide_id"`
}

func (b *Backend) CreatePresentation(ctx context.Context, title string) (string, string, string, error) {
	var out createPresentationResult
	if err := b.client.Call(ctx, "slides.presentations.create", map[string]string{"title": title}, &out); err != nil {
		return "", "", "", err
	}
	return out.PresentationID, out.URL, out.BlankSlideID, nil
}

func (b *Backend) DeleteSlide(ctx context.Context, presentationID, slideID string) error {
	return b.client.Call(ctx, "slides.slides.delete", map[string]string{
		"presentation_id": presentationID, "slide_id": slideID,
	}, nil)
}

type createSlideParams struct {
	PresentationID string   `json:"presentation_id"`
	Title          string   `json:"title"`
	Subtitle       string   `json:"subtitle,omitempty"`
	Bullets        []string `json:"bullets"`
	ImageLocalPath string   `json:"image_local_path,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	ImageHandle    string   `json:"image_handle,omitempty"`
	ShareImage     bool     `json:"share_image_public,omitempty"`
}

type createSlideResult struct {
	SlideID string `json:"slide_id"`
}

func (b *Backend) CreateSlide(ctx context.Context, presentationID string, content deck.SlideContent) (string, error) {
	var out createSlideResult
	err := b.client.Call(ctx, "slides.slides.create", createSlideParams{
		PresentationID: presentationID,
		Title:          content.Title,
		Subtitle:       content.Subtitle,
		Bullets:        content.Bullets,
		ImageLocalPath: content.ImageLocalPath,
		ImageURL:       content.ImageURL,
		ImageHandle:    content.ImageHandle,
		ShareImage:     content.ShareImage,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.SlideID, nil
}

func (b *Backend) SetSpeakerNotes(ctx context.Context, presentationID, slideID, script string) error {
	return b.client.Call(ctx, "slides.notes.set", map[string]string{
		"presentation_id": presentationID, "slide_id": slideID, "script": script,
	}, nil)
}

func (b *Backend) AddScriptFallbackTextBox(ctx context.Context, presentationID, slideID, script string) error {
	return b.client.Call(ctx, "slides.textbox.create", map[string]string{
		"presentation_id": presentationID, "slide_id": slideID,
		"label": "Presenter Script:", "text": script,
	}, nil)
}
