package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/leaflens/internal/domain/ai"
	"github.com/bryanwahyu/leaflens/internal/domain/plants"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o"
	serviceName  = "openai"
)

var (
	_ ai.Analyzer = (*Client)(nil)
	_ ai.Chatter  = (*Client)(nil)
)

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithBaseURL targets an OpenAI-compatible endpoint, e.g. a proxy.
func NewClientWithBaseURL(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) model() string {
	if c.Model == "" {
		return defaultModel
	}
	return c.Model
}

func (c *Client) newRequest(msgs ...openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	model := c.model()
	req := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
	return req
}

// Analyze sends the photo as an inline data URL and decodes the JSON answer.
func (c *Client) Analyze(ctx context.Context, in ai.AnalyzeRequest) (*ai.Analysis, error) {
	req := c.newRequest(
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
		openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(in.PlantType, in.PlantSpecies, in.Prompt)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    plants.EncodeDataURI(in.ContentType, in.Image),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		},
	)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	a, err := prompt.ParseAnalysis(content)
	if err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, Err: err}
	}
	return a, nil
}

// Chat answers a single plant-care question.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	req := c.newRequest(
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.GetChatSystemPrompt()},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message},
	)
	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", ai.ErrQuotaExceeded
		}
		return "", &ai.ExternalServiceError{Service: serviceName, Err: fmt.Errorf("failed to create chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &ai.ExternalServiceError{Service: serviceName, Err: errors.New("empty completion")}
	}
	return resp.Choices[0].Message.Content, nil
}
