package ai

import (
	"context"
	"errors"
	"strings"

	domain "github.com/bryanwahyu/leaflens/internal/domain/ai"
)

// ErrEmptyMessage is returned when a chat message is blank.
var ErrEmptyMessage = errors.New("message is required")

// Service relays gardening questions to the chat collaborator.
type Service struct {
	client domain.Chatter
}

func NewService(client domain.Chatter) *Service {
	return &Service{client: client}
}

func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if s.client == nil {
		return "", &domain.ExternalServiceError{Service: "chat", Err: errors.New("no chat provider configured")}
	}
	return s.client.Chat(ctx, message)
}
