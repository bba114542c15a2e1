package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

// UserService implements registration and authentication.
// Credentials are compared verbatim; hardening them is out of scope.
type UserService struct {
	users ports.UserRepository
	log   zerolog.Logger
}

func NewUserService(users ports.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

func (s *UserService) Register(ctx context.Context, userID, credential string, position *domain.Position) (*domain.User, error) {
	if userID == "" || credential == "" {
		return nil, fmt.Errorf("register: %w: userID and pwd are required", domain.ErrInvalidInput)
	}

	user := &domain.User{
		UserID:     userID,
		Credential: credential,
		Status:     domain.UserNotActive,
	}
	if position != nil {
		user.LastPosition = *position
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("user registered")
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, userID, credential string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("authenticate: %w: userID is required", domain.ErrInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if user.Credential != credential {
		s.log.Info().Str("user_id", userID).Msg("credential mismatch")
		return "", domain.ErrInvalidCredentials
	}

	if user.Status != domain.UserActive {
		active := domain.UserActive
		if _, err := s.users.UpdateByID(ctx, userID, ports.UserUpdate{Status: &active, KeepVersion: true}); err != nil {
			return "", fmt.Errorf("authenticate: activate user: %w", err)
		}
	}

	s.log.Info().Str("user_id", userID).Msg("user authenticated")
	return user.UserID, nil
}
