package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
	"github.com/palletrack/pallet-system/internal/infrastructure/db/memory"
)

var errStoreDown = errors.New("store down")

// flakyUsers fails UpdateByID calls selected by failOn.
type flakyUsers struct {
	ports.UserRepository
	failOn func(upd ports.UserUpdate) bool
}

func (f *flakyUsers) UpdateByID(ctx context.Context, userID string, upd ports.UserUpdate) (*domain.User, error) {
	if f.failOn != nil && f.failOn(upd) {
		return nil, errStoreDown
	}
	return f.UserRepository.UpdateByID(ctx, userID, upd)
}

// flakyPallets fails UpdateByKey calls selected by failOn.
type flakyPallets struct {
	ports.PalletRepository
	failOn func(upd ports.PalletUpdate) bool
}

func (f *flakyPallets) UpdateByKey(ctx context.Context, id string, upd ports.PalletUpdate) (*domain.Pallet, error) {
	if f.failOn != nil && f.failOn(upd) {
		return nil, errStoreDown
	}
	return f.PalletRepository.UpdateByKey(ctx, id, upd)
}

type stubLocker struct {
	mu     sync.Mutex
	err    error
	locked []string
}

func (l *stubLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, key)
	return func() {}, nil
}

type fixture struct {
	pallets *memory.PalletRepository
	users   *memory.UserRepository
}

func newFixture() *fixture {
	return &fixture{pallets: memory.NewPalletRepository(), users: memory.NewUserRepository()}
}

func (f *fixture) assignment() *AssignmentService {
	return NewAssignmentService(f.pallets, f.users, nil, nil, zerolog.Nop())
}

func (f *fixture) addUser(t *testing.T, userID string) {
	t.Helper()
	if err := f.users.Insert(context.Background(), &domain.User{UserID: userID, Credential: "pw", Status: domain.UserNotActive}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func (f *fixture) addPallet(t *testing.T, p domain.Pallet) string {
	t.Helper()
	if p.Status == "" {
		p.Status = domain.PalletAvailable
	}
	id, err := f.pallets.Insert(context.Background(), &p)
	if err != nil {
		t.Fatalf("insert pallet: %v", err)
	}
	return id
}

func (f *fixture) pallet(t *testing.T, id string) *domain.Pallet {
	t.Helper()
	p, err := f.pallets.FindByKey(context.Background(), id)
	if err != nil {
		t.Fatalf("find pallet %s: %v", id, err)
	}
	return p
}

func (f *fixture) user(t *testing.T, userID string) *domain.User {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("find user %s: %v", userID, err)
	}
	return u
}

// assertConsistent checks the holder/status invariant on every pallet and
// that every user reference points at a pallet held by that user.
func (f *fixture) assertConsistent(t *testing.T, userIDs ...string) {
	t.Helper()
	all, err := f.pallets.Find(context.Background(), ports.PalletFilter{})
	if err != nil {
		t.Fatalf("find pallets: %v", err)
	}
	for _, p := range all {
		if err := p.CheckInvariant(); err != nil {
			t.Fatalf("pallet %s: %v", p.ID, err)
		}
	}
	for _, id := range userIDs {
		u := f.user(t, id)
		if u.PalletID == "" {
			continue
		}
		if p := f.pallet(t, u.PalletID); !p.HeldBy(u.UserID) {
			t.Fatalf("user %s references pallet %s held by %q", u.UserID, p.ID, p.Holder)
		}
	}
}
