package ports

import (
	"context"

	llmmodel "github.com/brightleads/dmengine/modules/llm/model"
	searchmodel "github.com/brightleads/dmengine/modules/search/model"
)

// SearchClient is the subset of the search component the pipeline needs.
type SearchClient interface {
	Search(ctx context.Context, req searchmodel.Request) (*searchmodel.Result, error)
}

// LLMClient is the subset of the chat-completion component the pipeline
// needs.
type LLMClient interface {
	Chat(ctx context.Context, messages []llmmodel.Message, jsonMode bool, purpose string) (*llmmodel.ChatResult, error)
}
