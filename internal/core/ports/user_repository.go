package ports

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// UserFilter selects users. Nil fields are ignored.
type UserFilter struct {
	PalletID *string
	Status   *domain.UserStatus
}

// UserUpdate carries the fields to change. Nil fields are left untouched.
type UserUpdate struct {
	Status        *domain.UserStatus
	LastPosition  *domain.Position
	PalletID      *string
	ExpectVersion *int64
	// KeepVersion leaves the version as it is. Only for writes that do not
	// touch the pallet reference, so they never fail a concurrent claim.
	KeepVersion bool
}

// UserRepository is the store for users, keyed by login id.
type UserRepository interface {
	// Insert returns ErrUserExists when the login id is taken.
	Insert(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindOne(ctx context.Context, filter UserFilter) (*domain.User, error)
	UpdateByID(ctx context.Context, userID string, upd UserUpdate) (*domain.User, error)
}
