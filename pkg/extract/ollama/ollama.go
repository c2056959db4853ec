package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/tradegraph/backend/pkg/extract"
)

// ExtractClient implements extract.Client against a locally hosted Ollama
// server. Concurrent requests are limited with a semaphore so a burst of
// pending documents cannot overload the model host.
type ExtractClient struct {
	model   string
	reqLock *semaphore.Weighted
	client  *api.Client
}

// Params configures a new ExtractClient.
type Params struct {
	Model                 string
	BaseURL               string
	MaxConcurrentRequests int64
}

// New creates an extraction client for an Ollama server. BaseURL defaults to
// the standard local endpoint when empty.
func New(params Params) (*ExtractClient, error) {
	base := params.BaseURL
	if base == "" {
		base = "http://127.0.0.1:11434"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &ExtractClient{
		model:   params.Model,
		reqLock: semaphore.NewWeighted(maxConcurrent),
		client:  api.NewClient(parsed, http.DefaultClient),
	}, nil
}

func (c *ExtractClient) Extract(ctx context.Context, text string) (extract.Result, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return extract.Result{}, err
	}
	defer c.reqLock.Release(1)

	systemPrompt := fmt.Sprintf(
		extract.ExtractPrompt,
		strings.Join(extract.EntityTypes, ", "),
		strings.Join(extract.RelationTypes, ", "),
	)

	formatBytes, err := json.Marshal(extract.ResponseSchema())
	if err != nil {
		return extract.Result{}, fmt.Errorf("marshal response schema: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Format:  json.RawMessage(formatBytes),
		Stream:  &stream,
		Options: map[string]any{"temperature": 0.1},
	}

	var raw strings.Builder
	err = c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		raw.WriteString(cr.Message.Content)
		return nil
	})
	if err != nil {
		return extract.Result{}, fmt.Errorf("extraction request: %w", err)
	}
	if raw.Len() == 0 {
		return extract.Result{}, fmt.Errorf("empty extraction response")
	}

	return extract.ParseResponse(raw.String(), text)
}
