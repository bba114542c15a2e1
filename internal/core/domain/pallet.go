package domain

import "fmt"

// PalletStatus represents the lifecycle state of a pallet.
type PalletStatus string

const (
	PalletAvailable PalletStatus = "static"
	PalletClaimed   PalletStatus = "take-away"
	PalletBroken    PalletStatus = "broken"
)

// validTransitions defines the allowed state machine transitions.
// Pallets cycle indefinitely; there is no terminal state.
var validTransitions = map[PalletStatus][]PalletStatus{
	PalletAvailable: {PalletClaimed, PalletBroken},
	PalletClaimed:   {PalletAvailable},
	PalletBroken:    {PalletAvailable},
}

// Valid reports whether s is one of the known pallet statuses.
func (s PalletStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether a transition from current status to next is valid.
// Staying in the same status is always allowed.
func (s PalletStatus) CanTransitionTo(next PalletStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Position is a [longitude, latitude] pair.
type Position [2]float64

func (p Position) Lng() float64 { return p[0] }
func (p Position) Lat() float64 { return p[1] }

// Pallet is a physical storage unit tracked by the system.
type Pallet struct {
	ID       string       `json:"_id" bson:"_id,omitempty"`
	Category string       `json:"type" bson:"type"`
	Contents string       `json:"content" bson:"content"`
	Status   PalletStatus `json:"status" bson:"status"`
	Position Position     `json:"position" bson:"position"`
	Holder   string       `json:"final_user" bson:"final_user"`
	Version  int64        `json:"-" bson:"version"`
}

// IsEmpty reports whether the pallet carries nothing.
func (p *Pallet) IsEmpty() bool { return p.Contents == "" }

// HeldBy reports whether userID currently holds the pallet.
func (p *Pallet) HeldBy(userID string) bool {
	return userID != "" && p.Status == PalletClaimed && p.Holder == userID
}

// CheckInvariant verifies that a holder is recorded exactly when the pallet is claimed.
func (p *Pallet) CheckInvariant() error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInconsistentState, p.Status)
	}
	if (p.Holder != "") != (p.Status == PalletClaimed) {
		return fmt.Errorf("%w: status %s with holder %q", ErrInconsistentState, p.Status, p.Holder)
	}
	return nil
}
