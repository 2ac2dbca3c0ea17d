// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// summarizer.Backend interface, grounded on the teacher's
// features/model/anthropic client adapter.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Backend implements summarizer.Backend over the Anthropic Messages API.
type Backend struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds a Backend. model is a concrete Anthropic model identifier
// (e.g. string(sdk.ModelClaudeSonnet4_5_20250929)).
func New(msg MessagesClient, model string, maxTokens int) (*Backend, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Backend{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Backend using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, model, maxTokens)
}

// Complete implements summarizer.Backend by issuing a single non-streaming
// Messages.New call with systemPrompt as the system instruction.
func (b *Backend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(b.model),
		MaxTokens: int64(b.maxTokens),
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	}
	msg, err := b.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
