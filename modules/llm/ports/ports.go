package ports

import (
	"context"

	"github.com/brightleads/dmengine/modules/llm/model"
)

// Client is a retrying, concurrency-bounded chat-completion client.
type Client interface {
	// Chat sends messages to the provider and returns the raw assistant
	// text plus token usage. purpose is an observability label only.
	Chat(ctx context.Context, messages []model.Message, jsonMode bool, purpose string) (*model.ChatResult, error)
}
