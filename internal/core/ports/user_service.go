package ports

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// UserService covers registration and authentication.
type UserService interface {
	Register(ctx context.Context, userID, credential string, position *domain.Position) (*domain.User, error)
	// Authenticate returns the user's identity on success.
	Authenticate(ctx context.Context, userID, credential string) (string, error)
}
