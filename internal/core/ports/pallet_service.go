package ports

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// MatchKind selects the attribute used by QueryAvailable.
type MatchKind string

const (
	MatchCategory MatchKind = "type"
	MatchContents MatchKind = "content"
)

// CreatePalletInput carries the fields of a new pallet.
type CreatePalletInput struct {
	Status   domain.PalletStatus
	Category string
	Contents string
	Position domain.Position
	Holder   string
}

// AmendPalletInput carries an update to an existing pallet. Nil fields are kept.
type AmendPalletInput struct {
	ID       string
	Status   *domain.PalletStatus
	Category *string
	Contents *string
	Position *domain.Position
	Holder   *string
}

// PalletService covers pallet creation, amendment and read-only queries.
type PalletService interface {
	Create(ctx context.Context, in CreatePalletInput) (*domain.Pallet, error)
	Amend(ctx context.Context, in AmendPalletInput) (*domain.Pallet, error)
	// ListSelections returns the sentinel label followed by the selectable values.
	ListSelections(ctx context.Context, wantContents bool) ([]string, error)
	QueryAvailable(ctx context.Context, kind MatchKind, value string) ([]*domain.Pallet, error)
	QueryAll(ctx context.Context) ([]*domain.Pallet, error)
}
