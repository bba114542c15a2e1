// Package memory is an in-process record store with the same single-record
// atomicity guarantees as the MongoDB adapter. It backs STORE_DRIVER=memory
// and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

// PalletRepository implements ports.PalletRepository in memory.
type PalletRepository struct {
	mu    sync.Mutex
	byID  map[string]*domain.Pallet
	order []string
}

func NewPalletRepository() *PalletRepository {
	return &PalletRepository{byID: make(map[string]*domain.Pallet)}
}

func clonePallet(p *domain.Pallet) *domain.Pallet {
	c := *p
	return &c
}

func (r *PalletRepository) Insert(_ context.Context, p *domain.Pallet) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := clonePallet(p)
	stored.ID = primitive.NewObjectID().Hex()
	stored.Version = 0
	r.byID[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	return stored.ID, nil
}

func (r *PalletRepository) FindByKey(_ context.Context, id string) (*domain.Pallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPalletNotFound
	}
	return clonePallet(p), nil
}

func (r *PalletRepository) FindOne(ctx context.Context, filter ports.PalletFilter) (*domain.Pallet, error) {
	found, err := r.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.ErrPalletNotFound
	}
	return found[0], nil
}

func (r *PalletRepository) Find(_ context.Context, filter ports.PalletFilter) ([]*domain.Pallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Pallet, 0, len(r.order))
	for _, id := range r.order {
		p := r.byID[id]
		if matchPallet(p, filter) {
			out = append(out, clonePallet(p))
		}
	}
	return out, nil
}

func (r *PalletRepository) UpdateByKey(_ context.Context, id string, upd ports.PalletUpdate) (*domain.Pallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPalletNotFound
	}
	if upd.ExpectVersion != nil && *upd.ExpectVersion != p.Version {
		return nil, domain.ErrVersionConflict
	}

	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.Contents != nil {
		p.Contents = *upd.Contents
	}
	if upd.Position != nil {
		p.Position = *upd.Position
	}
	if upd.Holder != nil {
		p.Holder = *upd.Holder
	}
	p.Version++
	return clonePallet(p), nil
}

func (r *PalletRepository) Distinct(_ context.Context, field ports.PalletField, filter ports.PalletFilter) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, id := range r.order {
		p := r.byID[id]
		if !matchPallet(p, filter) {
			continue
		}
		v := p.Category
		if field == ports.FieldContents {
			v = p.Contents
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func matchPallet(p *domain.Pallet, f ports.PalletFilter) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.Category != nil && p.Category != *f.Category {
		return false
	}
	if f.Contents != nil && p.Contents != *f.Contents {
		return false
	}
	if f.Holder != nil && p.Holder != *f.Holder {
		return false
	}
	return true
}

// UserRepository implements ports.UserRepository in memory.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *UserRepository) Insert(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.UserID]; exists {
		return domain.ErrUserExists
	}
	stored := cloneUser(u)
	stored.Version = 0
	r.users[u.UserID] = stored
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, userID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) FindOne(_ context.Context, filter ports.UserFilter) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		u := r.users[id]
		if filter.PalletID != nil && u.PalletID != *filter.PalletID {
			continue
		}
		if filter.Status != nil && u.Status != *filter.Status {
			continue
		}
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) UpdateByID(_ context.Context, userID string, upd ports.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if upd.ExpectVersion != nil && *upd.ExpectVersion != u.Version {
		return nil, domain.ErrVersionConflict
	}

	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.LastPosition != nil {
		u.LastPosition = *upd.LastPosition
	}
	if upd.PalletID != nil {
		u.PalletID = *upd.PalletID
	}
	if !upd.KeepVersion {
		u.Version++
	}
	return cloneUser(u), nil
}
