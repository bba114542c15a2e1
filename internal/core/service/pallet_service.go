package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

// Labels heading a selection list. Clients show them as the list caption.
const (
	SelectionLabelContents = "物品"
	SelectionLabelCategory = "種類"
)

// PalletService implements pallet creation, amendment and queries.
type PalletService struct {
	pallets ports.PalletRepository
	guard   keyGuard
	log     zerolog.Logger
}

// NewPalletService wires the service. serial and locker may be nil.
func NewPalletService(pallets ports.PalletRepository, serial ports.Serializer, locker ports.KeyLocker, log zerolog.Logger) *PalletService {
	return &PalletService{
		pallets: pallets,
		guard:   keyGuard{serial: serial, locker: locker},
		log:     log,
	}
}

// Create inserts a new pallet. Pallets enter the claimed state only through
// a claim, so a claimed status or a holder is rejected here.
func (s *PalletService) Create(ctx context.Context, in ports.CreatePalletInput) (*domain.Pallet, error) {
	status := in.Status
	if status == "" {
		status = domain.PalletAvailable
	}
	if !status.Valid() {
		return nil, fmt.Errorf("create pallet: %w: unknown status %q", domain.ErrInvalidInput, status)
	}
	if status == domain.PalletClaimed {
		return nil, fmt.Errorf("create pallet: %w: new pallets cannot start claimed", domain.ErrInvalidTransition)
	}
	if in.Holder != "" {
		return nil, fmt.Errorf("create pallet: %w: holder set on unclaimed pallet", domain.ErrInconsistentState)
	}

	p := &domain.Pallet{
		Category: in.Category,
		Contents: in.Contents,
		Status:   status,
		Position: in.Position,
	}
	id, err := s.pallets.Insert(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to insert pallet")
		return nil, fmt.Errorf("create pallet: %w", err)
	}
	p.ID = id

	s.log.Info().Str("pallet_id", id).Str("category", p.Category).Msg("pallet created")
	return p, nil
}

// Amend updates an existing pallet. Status may move between available and
// broken; entering or leaving the claimed state is reserved to claim/release.
func (s *PalletService) Amend(ctx context.Context, in ports.AmendPalletInput) (*domain.Pallet, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("amend pallet: %w: id is required", domain.ErrInvalidInput)
	}

	var amended *domain.Pallet
	err := s.guard.run(ctx, in.ID, func(ctx context.Context) error {
		p, err := s.pallets.FindByKey(ctx, in.ID)
		if err != nil {
			return err
		}

		if in.Status != nil {
			next := *in.Status
			if (next == domain.PalletClaimed) != (p.Status == domain.PalletClaimed) {
				return fmt.Errorf("%w: %s to %s must go through takeAway/updateUser", domain.ErrInvalidTransition, p.Status, next)
			}
			if !p.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, p.Status, next)
			}
		}
		if in.Holder != nil && *in.Holder != p.Holder {
			return fmt.Errorf("%w: holder can only change through takeAway/updateUser", domain.ErrInconsistentState)
		}

		version := p.Version
		amended, err = s.pallets.UpdateByKey(ctx, in.ID, ports.PalletUpdate{
			Status:        in.Status,
			Category:      in.Category,
			Contents:      in.Contents,
			Position:      in.Position,
			ExpectVersion: &version,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("amend pallet: %w", err)
	}

	s.log.Info().Str("pallet_id", amended.ID).Str("status", string(amended.Status)).Msg("pallet amended")
	return amended, nil
}

func (s *PalletService) ListSelections(ctx context.Context, wantContents bool) ([]string, error) {
	available := domain.PalletAvailable
	filter := ports.PalletFilter{Status: &available}

	field, label := ports.FieldCategory, SelectionLabelCategory
	if wantContents {
		field, label = ports.FieldContents, SelectionLabelContents
	} else {
		empty := ""
		filter.Contents = &empty
	}

	values, err := s.pallets.Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}

	values = slices.DeleteFunc(slices.Clone(values), func(v string) bool { return v == "" })
	slices.Sort(values)
	values = slices.Compact(values)

	return append([]string{label}, values...), nil
}

func (s *PalletService) QueryAvailable(ctx context.Context, kind ports.MatchKind, value string) ([]*domain.Pallet, error) {
	available := domain.PalletAvailable
	filter := ports.PalletFilter{Status: &available}

	switch kind {
	case ports.MatchCategory:
		empty := ""
		filter.Category = &value
		filter.Contents = &empty
	case ports.MatchContents:
		filter.Contents = &value
	default:
		return nil, fmt.Errorf("query available: %w: unknown match kind %q", domain.ErrInvalidInput, kind)
	}

	pallets, err := s.pallets.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query available: %w", err)
	}
	return pallets, nil
}

func (s *PalletService) QueryAll(ctx context.Context) ([]*domain.Pallet, error) {
	pallets, err := s.pallets.Find(ctx, ports.PalletFilter{})
	if err != nil {
		return nil, fmt.Errorf("query all pallets: %w", err)
	}
	return pallets, nil
}
