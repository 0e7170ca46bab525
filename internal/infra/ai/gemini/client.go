package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"github.com/bryanwahyu/leaflens/internal/domain/ai"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/prompt"
)

const (
	defaultModel = "gemini-2.0-flash"
	serviceName  = "gemini"
)

var (
	_ ai.Analyzer = (*Client)(nil)
	_ ai.Chatter  = (*Client)(nil)
)

// Client talks to the Gemini API directly instead of going through the
// analysis microservice.
type Client struct {
	client *genai.Client
	model  string

	mu   sync.Mutex
	chat *genai.Chat
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{client: cli, model: model}, nil
}

func (c *Client) Analyze(ctx context.Context, in ai.AnalyzeRequest) (*ai.Analysis, error) {
	mime := in.ContentType
	if mime == "" {
		mime = http.DetectContentType(in.Image)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(in.Image, mime),
			genai.NewPartFromText(prompt.GetUserPrompt(in.PlantType, in.PlantSpecies, in.Prompt)),
		}, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.GetSystemPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	a, err := prompt.ParseAnalysis(resp.Text())
	if err != nil {
		return nil, &ai.ExternalServiceError{Service: serviceName, Err: err}
	}
	return a, nil
}

// Chat keeps one conversation per process, like a single assistant session.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chat == nil {
		chat, err := c.client.Chats.Create(ctx, c.model, &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.GetChatSystemPrompt(), genai.RoleUser),
		}, nil)
		if err != nil {
			return "", wrapErr(err)
		}
		c.chat = chat
	}

	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", wrapErr(err)
	}
	return resp.Text(), nil
}

func wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return ai.ErrQuotaExceeded
	}
	return &ai.ExternalServiceError{Service: serviceName, Err: err}
}
