package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/medcoder/internal/domain/ai"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
	"github.com/bryanwahyu/medcoder/internal/infra/ai/prompt"
	"github.com/bryanwahyu/medcoder/internal/infra/transport"
)

const (
	maxTokens    = 4096
	defaultModel = "gpt-4o-mini"
)

// Client implements coding.Generator with chat completions.
type Client struct {
	*openai.Client
	Model string
}

var _ coding.Generator = (*Client)(nil)

// NewClient talks to baseURL when set, so any OpenAI-compatible endpoint works.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// isReasoningModel is true for models that take MaxCompletionTokens and no temperature.
func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Generate sends one stage. Requests with a schema ask for strict JSON output.
func (c *Client) Generate(ctx context.Context, req coding.GenerateRequest) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	creq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserMessage(req)},
		},
	}
	if req.Schema != nil {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Name,
				Schema: req.Schema,
				Strict: true,
			},
		}
	}
	if isReasoningModel(model) {
		creq.MaxCompletionTokens = maxTokens
	} else {
		creq.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", pipeline.New(pipeline.ErrMalformedResponse, errors.New("chat completion has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return transport.Classify(fmt.Errorf("failed to create chat completion: %w", err))
	}

	switch {
	case status == http.StatusTooManyRequests:
		return pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("%w: %w", ai.ErrQuotaExceeded, err))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pipeline.New(pipeline.ErrAuth, err)
	default:
		return &pipeline.Error{Kind: pipeline.ErrTransport, Err: err, Temporary: transport.RetryableStatus(status)}
	}
}
