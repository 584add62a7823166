package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock calls the Bedrock Converse API.
type Bedrock struct {
	name    string
	modelID string
	client  ConverseAPI
}

// NewBedrock builds a Bedrock backend with SDK retries disabled.
func NewBedrock(name, modelID string, cfg aws.Config) *Bedrock {
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewBedrockWithClient(name, modelID, client)
}

// NewBedrockWithClient uses the given Converse client.
func NewBedrockWithClient(name, modelID string, client ConverseAPI) *Bedrock {
	return &Bedrock{name: name, modelID: modelID, client: client}
}

func (g *Bedrock) Name() string { return ProviderBedrock + ":" + g.name }

func (g *Bedrock) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := g.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(g.modelID),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(params.MaxTokens)),
			Temperature: aws.Float32(float32(params.Temperature)),
		},
	})
	if err != nil {
		return "", classifyBedrock(err)
	}

	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", Transient(ProviderBedrock, KindMalformedOutput, 0, errors.New("unexpected Converse output type"))
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, tb.Value)
		}
	}
	text := strings.Join(parts, "")
	if strings.TrimSpace(text) == "" {
		return "", emptyOutput(ProviderBedrock)
	}
	return text, nil
}

func classifyBedrock(err error) *Error {
	var (
		throttling  *types.ThrottlingException
		unavailable *types.ServiceUnavailableException
		internal    *types.InternalServerException
		timeout     *types.ModelTimeoutException
		notReady    *types.ModelNotReadyException
		denied      *types.AccessDeniedException
		invalid     *types.ValidationException
		notFound    *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throttling), errors.As(err, &unavailable), errors.As(err, &internal),
		errors.As(err, &timeout), errors.As(err, &notReady):
		return Transient(ProviderBedrock, KindUpstreamUnavailable, statusOf(err), err)
	case errors.As(err, &denied):
		return Fatal(ProviderBedrock, KindMissingCredential, statusOf(err), err)
	case errors.As(err, &invalid), errors.As(err, &notFound):
		return Fatal(ProviderBedrock, KindInvalidRequest, statusOf(err), err)
	}
	return Classify(ProviderBedrock, statusOf(err), err)
}

func statusOf(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
