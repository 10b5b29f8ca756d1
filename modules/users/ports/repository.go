package ports

import (
	"context"

	"github.com/brightleads/dmengine/modules/users/model"
)

// UserRepository defines the interface for user data access. Registration
// and login are the only write path; there is no profile-editing surface,
// so the port exposes create and lookup only.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
