package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude calls the Anthropic Messages API.
type Claude struct {
	name    string
	modelID string
	client  anthropic.Client
}

// NewClaude fails with missing_credential when apiKey is empty.
func NewClaude(name, modelID, apiKey string, opts ...option.RequestOption) (*Claude, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, missingKey(ProviderClaude, "ANTHROPIC_API_KEY")
	}
	// Retries are owned by WithRetry.
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Claude{
		name:    name,
		modelID: modelID,
		client:  anthropic.NewClient(opts...),
	}, nil
}

func (g *Claude) Name() string { return ProviderClaude + ":" + g.name }

func (g *Claude) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.modelID),
		MaxTokens:   params.MaxTokens,
		Temperature: anthropic.Float(params.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", Classify(ProviderClaude, apiErr.StatusCode, err)
		}
		return "", Classify(ProviderClaude, 0, err)
	}

	text := extractText(message)
	if strings.TrimSpace(text) == "" {
		return "", emptyOutput(ProviderClaude)
	}
	return text, nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
