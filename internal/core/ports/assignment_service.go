package ports

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

// Task is the client's intended operation when asking for holding status.
type Task string

const (
	TaskClaim   Task = "claim"
	TaskRelease Task = "release"
)

// ParseTask accepts both the protocol names and the legacy client names
// ("find" for claim, "putDown" for release).
func ParseTask(s string) (Task, bool) {
	switch s {
	case "claim", "find", "takeAway":
		return TaskClaim, true
	case "release", "putDown":
		return TaskRelease, true
	}
	return "", false
}

// HoldingStatus is the answer to a holding-status query.
type HoldingStatus struct {
	OK       bool
	HasNone  bool
	PalletID string
	Msg      string
}

// AssignmentService enforces the pallet/user mutual-reference invariant.
type AssignmentService interface {
	Claim(ctx context.Context, palletID, userID string) (*domain.Pallet, error)
	// Release clears the user's pallet and puts the pallet down at `at` when given.
	Release(ctx context.Context, userID string, at *domain.Position) (*domain.Pallet, error)
	HoldingStatus(ctx context.Context, userID string, task Task) (*HoldingStatus, error)
	HeldPallet(ctx context.Context, userID string) (*domain.Pallet, error)
}
