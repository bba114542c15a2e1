package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

// AssignmentService moves pallets between users. The store offers no
// multi-record transactions, so every claim and release is a pair of
// version-checked writes run on the pallet key's owner, with the first write
// compensated when the second fails.
type AssignmentService struct {
	pallets ports.PalletRepository
	users   ports.UserRepository
	guard   keyGuard
	log     zerolog.Logger
}

// NewAssignmentService wires the service. serial and locker may be nil.
func NewAssignmentService(
	pallets ports.PalletRepository,
	users ports.UserRepository,
	serial ports.Serializer,
	locker ports.KeyLocker,
	log zerolog.Logger,
) *AssignmentService {
	return &AssignmentService{
		pallets: pallets,
		users:   users,
		guard:   keyGuard{serial: serial, locker: locker},
		log:     log,
	}
}

// Claim gives userID exclusive custody of palletID.
func (s *AssignmentService) Claim(ctx context.Context, palletID, userID string) (*domain.Pallet, error) {
	if palletID == "" || userID == "" {
		return nil, fmt.Errorf("claim: %w: palletID and userID are required", domain.ErrInvalidInput)
	}

	var claimed *domain.Pallet
	err := s.guard.run(ctx, palletID, func(ctx context.Context) error {
		var err error
		claimed, err = s.claim(ctx, palletID, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return claimed, nil
}

func (s *AssignmentService) claim(ctx context.Context, palletID, userID string) (*domain.Pallet, error) {
	p, err := s.pallets.FindByKey(ctx, palletID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.PalletID == p.ID && p.HeldBy(u.UserID) {
		return p, nil
	}

	held, err := s.heldPallet(ctx, u)
	if err != nil {
		return nil, err
	}
	if held != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyHolding, held.ID)
	}

	switch p.Status {
	case domain.PalletAvailable:
	case domain.PalletClaimed:
		orphaned, err := s.orphaned(ctx, p)
		if err != nil {
			return nil, err
		}
		if !orphaned {
			return nil, fmt.Errorf("%w: held by %s", domain.ErrPalletUnavailable, p.Holder)
		}
		s.log.Warn().Str("pallet_id", p.ID).Str("stale_holder", p.Holder).Msg("taking over orphaned claim")
	default:
		return nil, fmt.Errorf("%w: status %s", domain.ErrPalletUnavailable, p.Status)
	}

	claimedStatus := domain.PalletClaimed
	holder := u.UserID
	updated, err := s.pallets.UpdateByKey(ctx, p.ID, ports.PalletUpdate{
		Status:        &claimedStatus,
		Holder:        &holder,
		ExpectVersion: &p.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("update pallet: %w", err)
	}

	ref := p.ID
	if _, err := s.users.UpdateByID(ctx, u.UserID, ports.UserUpdate{
		PalletID:      &ref,
		ExpectVersion: &u.Version,
	}); err != nil {
		s.revertClaim(ctx, updated)
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.log.Info().Str("pallet_id", p.ID).Str("user_id", u.UserID).Msg("pallet claimed")
	return updated, nil
}

// revertClaim undoes the pallet half of a claim whose user half failed.
func (s *AssignmentService) revertClaim(ctx context.Context, p *domain.Pallet) {
	available := domain.PalletAvailable
	empty := ""
	if _, err := s.pallets.UpdateByKey(ctx, p.ID, ports.PalletUpdate{
		Status:        &available,
		Holder:        &empty,
		ExpectVersion: &p.Version,
	}); err != nil {
		s.log.Error().Err(err).Str("pallet_id", p.ID).Str("holder", p.Holder).
			Msg("claim compensation failed, pallet left claimed without user reference")
	}
}

// Release clears the user's custody and puts the pallet back as available,
// optionally at a new position.
func (s *AssignmentService) Release(ctx context.Context, userID string, at *domain.Position) (*domain.Pallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("release: %w: userID is required", domain.ErrInvalidInput)
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}
	if !u.Holds() {
		return nil, fmt.Errorf("release: %w", domain.ErrNothingHeld)
	}

	var released *domain.Pallet
	err = s.guard.run(ctx, u.PalletID, func(ctx context.Context) error {
		var err error
		released, err = s.release(ctx, userID, u.PalletID, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("release: %w", err)
	}
	return released, nil
}

func (s *AssignmentService) release(ctx context.Context, userID, palletID string, at *domain.Position) (*domain.Pallet, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Holds() {
		return nil, domain.ErrNothingHeld
	}
	if u.PalletID != palletID {
		return nil, domain.ErrVersionConflict
	}

	p, err := s.pallets.FindByKey(ctx, palletID)
	if err != nil && !errors.Is(err, domain.ErrPalletNotFound) {
		return nil, err
	}

	empty := ""
	cleared, err := s.users.UpdateByID(ctx, u.UserID, ports.UserUpdate{
		PalletID:      &empty,
		LastPosition:  at,
		ExpectVersion: &u.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if p == nil || !p.HeldBy(u.UserID) {
		s.log.Warn().Str("user_id", u.UserID).Str("pallet_id", palletID).Msg("released stale pallet reference")
		return p, nil
	}

	available := domain.PalletAvailable
	updated, err := s.pallets.UpdateByKey(ctx, p.ID, ports.PalletUpdate{
		Status:        &available,
		Holder:        &empty,
		Position:      at,
		ExpectVersion: &p.Version,
	})
	if err != nil {
		s.revertRelease(ctx, cleared, palletID)
		return nil, fmt.Errorf("update pallet: %w", err)
	}

	s.log.Info().Str("pallet_id", p.ID).Str("user_id", u.UserID).Msg("pallet released")
	return updated, nil
}

// revertRelease restores the user's reference when the pallet half failed.
func (s *AssignmentService) revertRelease(ctx context.Context, u *domain.User, palletID string) {
	if _, err := s.users.UpdateByID(ctx, u.UserID, ports.UserUpdate{
		PalletID:      &palletID,
		ExpectVersion: &u.Version,
	}); err != nil {
		s.log.Error().Err(err).Str("user_id", u.UserID).Str("pallet_id", palletID).
			Msg("release compensation failed, pallet left claimed without user reference")
	}
}

// HoldingStatus answers whether the user may proceed with task. A user with
// no pallet is free to claim but has nothing to release.
func (s *AssignmentService) HoldingStatus(ctx context.Context, userID string, task ports.Task) (*ports.HoldingStatus, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("holding status: %w", err)
	}
	held, err := s.heldPallet(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("holding status: %w", err)
	}

	st := &ports.HoldingStatus{HasNone: held == nil}
	if held != nil {
		st.PalletID = held.ID
	}

	switch task {
	case ports.TaskRelease:
		st.OK = !st.HasNone
		if st.HasNone {
			st.Msg = "nothing to release"
		} else {
			st.Msg = held.ID
		}
	case ports.TaskClaim:
		st.OK = st.HasNone
		if !st.HasNone {
			st.Msg = "user already holds pallet " + held.ID
		}
	default:
		return nil, fmt.Errorf("holding status: %w: unknown task %q", domain.ErrInvalidInput, task)
	}
	return st, nil
}

// HeldPallet returns the pallet the user currently holds.
func (s *AssignmentService) HeldPallet(ctx context.Context, userID string) (*domain.Pallet, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("held pallet: %w", err)
	}
	held, err := s.heldPallet(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("held pallet: %w", err)
	}
	if held == nil {
		return nil, fmt.Errorf("held pallet: %w", domain.ErrNothingHeld)
	}
	return held, nil
}

// heldPallet resolves the user's pallet reference, returning nil when the
// reference is empty or no longer consistent with the pallet record.
func (s *AssignmentService) heldPallet(ctx context.Context, u *domain.User) (*domain.Pallet, error) {
	if !u.Holds() {
		return nil, nil
	}
	p, err := s.pallets.FindByKey(ctx, u.PalletID)
	if errors.Is(err, domain.ErrPalletNotFound) {
		s.log.Warn().Str("user_id", u.UserID).Str("pallet_id", u.PalletID).Msg("user references missing pallet")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.HeldBy(u.UserID) {
		s.log.Warn().Str("user_id", u.UserID).Str("pallet_id", p.ID).Str("holder", p.Holder).
			Msg("user references pallet it does not hold")
		return nil, nil
	}
	return p, nil
}

// orphaned reports whether the holder's record no longer points back at a
// claimed pallet, which is what a crash between the two claim writes leaves
// behind. Other users' references to the pallet do not count.
func (s *AssignmentService) orphaned(ctx context.Context, p *domain.Pallet) (bool, error) {
	if p.Holder == "" {
		return true, nil
	}
	holder, err := s.users.FindByID(ctx, p.Holder)
	if errors.Is(err, domain.ErrUserNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return holder.PalletID != p.ID, nil
}
