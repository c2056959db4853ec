package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tradegraph/backend/pkg/extract"
)

// ExtractClient implements extract.Client against an OpenAI-compatible chat
// API using structured output.
type ExtractClient struct {
	model  string
	client *openai.Client
}

// Params configures a new ExtractClient.
type Params struct {
	Model   string
	BaseURL string
	APIKey  string
}

// New creates an extraction client for an OpenAI-compatible endpoint.
func New(params Params) (*ExtractClient, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("openai extraction client requires an API key")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	return &ExtractClient{
		model:  params.Model,
		client: &client,
	}, nil
}

func (c *ExtractClient) Extract(ctx context.Context, text string) (extract.Result, error) {
	systemPrompt := fmt.Sprintf(
		extract.ExtractPrompt,
		strings.Join(extract.EntityTypes, ", "),
		strings.Join(extract.RelationTypes, ", "),
	)

	schema := extract.ResponseSchema()
	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "extract_entities_and_relations",
					Description: openai.String("Extract typed entities and directed relations from a parts document."),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(0.1),
	}

	response, err := c.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return extract.Result{}, fmt.Errorf("extraction request: %w", err)
	}
	if len(response.Choices) == 0 {
		return extract.Result{}, fmt.Errorf("no choices in extraction response")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return extract.Result{}, fmt.Errorf("empty extraction response (finish_reason: %s)", response.Choices[0].FinishReason)
	}

	return extract.ParseResponse(message, text)
}
