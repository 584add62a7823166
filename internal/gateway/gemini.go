package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	name    string
	modelID string
	client  *genai.Client
}

func NewGemini(ctx context.Context, name, modelID, apiKey string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, missingKey(ProviderGemini, "GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, Fatal(ProviderGemini, KindInvalidRequest, 0, fmt.Errorf("create client: %w", err))
	}
	return &Gemini{name: name, modelID: modelID, client: client}, nil
}

func (g *Gemini) Name() string { return ProviderGemini + ":" + g.name }

func (g *Gemini) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelID, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(params.Temperature)),
		MaxOutputTokens: int32(params.MaxTokens),
	})
	if err != nil {
		return "", Classify(ProviderGemini, geminiStatus(err), err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", emptyOutput(ProviderGemini)
	}
	return text, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
