package gateway

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI calls the Chat Completions API.
type OpenAI struct {
	name    string
	modelID string
	client  openai.Client
}

func NewOpenAI(name, modelID, apiKey string, opts ...option.RequestOption) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, missingKey(ProviderOpenAI, "OPENAI_API_KEY")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &OpenAI{name: name, modelID: modelID, client: openai.NewClient(opts...)}, nil
}

func (g *OpenAI) Name() string { return ProviderOpenAI + ":" + g.name }

func (g *OpenAI) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.modelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(params.MaxTokens),
		Temperature:         openai.Float(params.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", Classify(ProviderOpenAI, apiErr.StatusCode, err)
		}
		return "", Classify(ProviderOpenAI, 0, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", emptyOutput(ProviderOpenAI)
	}
	return resp.Choices[0].Message.Content, nil
}
