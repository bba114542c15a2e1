package ports

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// PalletField names a projectable pallet attribute for Distinct queries.
type PalletField string

const (
	FieldCategory PalletField = "type"
	FieldContents PalletField = "content"
)

// PalletFilter selects pallets. A nil field means "no filter"; a pointer to
// an empty string means the attribute must be empty.
type PalletFilter struct {
	Status   *domain.PalletStatus
	Category *string
	Contents *string
	Holder   *string
}

// PalletUpdate carries the fields to change. Nil fields are left untouched.
type PalletUpdate struct {
	Status   *domain.PalletStatus
	Category *string
	Contents *string
	Position *domain.Position
	Holder   *string
	// ExpectVersion, when set, makes the update conditional on the stored version.
	ExpectVersion *int64
}

// PalletRepository is the key-addressed store for pallets. Each call is atomic
// for a single record only.
type PalletRepository interface {
	Insert(ctx context.Context, p *domain.Pallet) (string, error)
	FindByKey(ctx context.Context, id string) (*domain.Pallet, error)
	FindOne(ctx context.Context, filter PalletFilter) (*domain.Pallet, error)
	Find(ctx context.Context, filter PalletFilter) ([]*domain.Pallet, error)
	// UpdateByKey applies upd and bumps the version. Returns ErrPalletNotFound
	// when the key is absent and ErrVersionConflict when ExpectVersion mismatches.
	UpdateByKey(ctx context.Context, id string, upd PalletUpdate) (*domain.Pallet, error)
	Distinct(ctx context.Context, field PalletField, filter PalletFilter) ([]string, error)
}
