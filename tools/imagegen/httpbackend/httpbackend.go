// Package httpbackend implements imagegen.Backend over a remote HTTP
// JSON-RPC image generation service.
package httpbackend

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/deckgen/deckgen/internal/backendclient"
	"github.com/deckgen/deckgen/tools/imagegen"
)

// Backend calls a remote "image.generate" method over HTTP JSON-RPC.
type Backend struct {
	client *backendclient.Client
}

// New builds a Backend targeting endpoint.
func New(endpoint string, opts ...backendclient.Option) *Backend {
	return &Backend{client: backendclient.New(endpoint, opts...)}
}

type generateParams struct {
	Prompt string              `json:"prompt"`
	Width  int                 `json:"width"`
	Height int                 `json:"height"`
	Safety imagegen.SafetyTier `json:"safety_tier"`
}

type generateResult struct {
	// PNGBase64 carries the generated image bytes, base64-encoded, since
	// JSON-RPC result fields are text.
	PNGBase64 string `json:"png_base64"`
}

// Generate implements imagegen.Backend.
func (b *Backend) Generate(ctx context.Context, prompt string, width, height int, safety imagegen.SafetyTier) (imagegen.GeneratedImage, error) {
	var out generateResult
	err := b.client.Call(ctx, "image.generate", generateParams{
		Prompt: prompt, Width: width, Height: height, Safety: safety,
	}, &out)
	if err != nil {
		return imagegen.GeneratedImage{}, err
	}
	data, err := base64.StdEncoding.DecodeString(out.PNGBase64)
	if err != nil {
		return imagegen.GeneratedImage{}, fmt.Errorf("httpbackend: decode png_base64: %w", err)
	}
	return imagegen.GeneratedImage{PNGBytes: data}, nil
}
