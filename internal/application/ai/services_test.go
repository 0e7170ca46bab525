package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/leaflens/internal/domain/ai"
)

type chatFunc func(ctx context.Context, message string) (string, error)

func (f chatFunc) Chat(ctx context.Context, message string) (string, error) { return f(ctx, message) }

func TestService_Chat(t *testing.T) {
	var got string
	svc := NewService(chatFunc(func(_ context.Context, m string) (string, error) {
		got = m
		return "Water once the top inch of soil is dry.", nil
	}))

	resp, err := svc.Chat(context.Background(), "  how often should I water a monstera?  ")
	require.NoError(t, err)
	assert.Equal(t, "Water once the top inch of soil is dry.", resp)
	assert.Equal(t, "how often should I water a monstera?", got)
}

func TestService_ChatRejectsEmpty(t *testing.T) {
	called := false
	svc := NewService(chatFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	}))

	_, err := svc.Chat(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.False(t, called)
}

func TestService_ChatPropagatesErrors(t *testing.T) {
	svc := NewService(chatFunc(func(context.Context, string) (string, error) {
		return "", domain.ErrQuotaExceeded
	}))
	_, err := svc.Chat(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	_, err = NewService(nil).Chat(context.Background(), "hello")
	var ext *domain.ExternalServiceError
	assert.True(t, errors.As(err, &ext))
}
