// Package httpbackend implements summarizer.Backend over a remote HTTP
// JSON-RPC summarizer service, for deployments that front the model behind
// their own endpoint instead of calling Anthropic directly.
package httpbackend

import (
	"context"

	"github.com/deckgen/deckgen/internal/backendclient"
)

// Backend calls a remote "llm.summarize" method over HTTP JSON-RPC.
type Backend struct {
	client *backendclient.Client
}

// New builds a Backend targeting endpoint.
func New(endpoint string, opts ...backendclient.Option) *Backend {
	return &Backend{client: backendclient.New(endpoint, opts...)}
}

type completeParams struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type completeResult struct {
	Text string `json:"text"`
}

// Complete implements summarizer.Backend.
func (b *Backend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out completeResult
	if err := b.client.Call(ctx, "llm.summarize", completeParams{System: systemPrompt, User: userPrompt}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}
