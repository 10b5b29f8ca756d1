package ports

import (
	"context"

	"github.com/brightleads/dmengine/modules/search/model"
)

// Client executes a rate-limited search query against the configured
// provider.
type Client interface {
	Search(ctx context.Context, req model.Request) (*model.Result, error)
}
