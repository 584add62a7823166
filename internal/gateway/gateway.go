package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// Params are the sampling parameters for one call.
type Params struct {
	MaxTokens   int64
	Temperature float64
}

// Gateway sends a prompt to a generation model and returns its raw text.
type Gateway interface {
	Name() string
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Provider names.
const (
	ProviderClaude  = "claude"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

type modelSpec struct {
	provider string
	id       string
}

var models = map[string]modelSpec{
	"haiku":          {ProviderClaude, "claude-haiku-4-5-20251001"},
	"sonnet":         {ProviderClaude, "claude-sonnet-4-5-20250929"},
	"sonnet-3.7":     {ProviderClaude, "claude-3-7-sonnet-20250219"},
	"bedrock-sonnet": {ProviderBedrock, "us.anthropic.claude-sonnet-4-5-20250929-v1:0"},
	"nova-lite":      {ProviderBedrock, "us.amazon.nova-2-lite-v1:0"},
	"gemini-flash":   {ProviderGemini, "gemini-2.5-flash"},
	"gemini-pro":     {ProviderGemini, "gemini-2.5-pro"},
	"gpt-4o":         {ProviderOpenAI, "gpt-4o"},
	"gpt-4o-mini":    {ProviderOpenAI, "gpt-4o-mini"},
}

// DefaultModel is used when no model is configured.
const DefaultModel = "sonnet"

// ModelNames returns all accepted model names, sorted.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsValidModel reports whether name is a known model.
func IsValidModel(name string) bool {
	_, ok := models[name]
	return ok
}

// ProviderFor returns the provider serving a model name.
func ProviderFor(name string) string {
	return models[name].provider
}

// Keys holds provider API keys. Bedrock uses the AWS credential chain.
type Keys struct {
	Anthropic string
	Gemini    string
	OpenAI    string
}

// Options selects and configures a backend.
type Options struct {
	Model string
	Keys  Keys
	// AWS is used for Bedrock models. When nil the default credential
	// chain is loaded.
	AWS *aws.Config
}

// New creates the backend for opts.Model. It does not retry; wrap the
// result with WithRetry.
func New(ctx context.Context, opts Options) (Gateway, error) {
	name := strings.TrimSpace(opts.Model)
	if name == "" {
		name = DefaultModel
	}
	spec, ok := models[name]
	if !ok {
		return nil, Fatal("personagen", KindInvalidRequest, 0,
			fmt.Errorf("unknown model %q (valid: %s)", name, strings.Join(ModelNames(), ", ")))
	}

	switch spec.provider {
	case ProviderClaude:
		return NewClaude(name, spec.id, opts.Keys.Anthropic)
	case ProviderGemini:
		return NewGemini(ctx, name, spec.id, opts.Keys.Gemini)
	case ProviderOpenAI:
		return NewOpenAI(name, spec.id, opts.Keys.OpenAI)
	case ProviderBedrock:
		cfg := opts.AWS
		if cfg == nil {
			loaded, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, Fatal(ProviderBedrock, KindMissingCredential, 0, fmt.Errorf("load AWS config: %w", err))
			}
			cfg = &loaded
		}
		return NewBedrock(name, spec.id, *cfg), nil
	}
	return nil, fmt.Errorf("model %q has no provider", name)
}
