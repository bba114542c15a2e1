package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository using MongoDB.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       string             `bson:"userID"`
	Credential   string             `bson:"pwd"`
	Status       domain.UserStatus  `bson:"status"`
	LastPosition domain.Position    `bson:"last_position"`
	PalletID     string             `bson:"palletID"`
	Version      int64              `bson:"version"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		UserID:       d.UserID,
		Credential:   d.Credential,
		Status:       d.Status,
		LastPosition: d.LastPosition,
		PalletID:     d.PalletID,
		Version:      d.Version,
	}
}

func (r *UserRepository) Insert(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := userDoc{
		UserID:       u.UserID,
		Credential:   u.Credential,
		Status:       u.Status,
		LastPosition: u.LastPosition,
		PalletID:     u.PalletID,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"userID": userID})
}

func (r *UserRepository) FindOne(ctx context.Context, filter ports.UserFilter) (*domain.User, error) {
	q := bson.M{}
	if filter.PalletID != nil {
		q["palletID"] = *filter.PalletID
	}
	if filter.Status != nil {
		q["status"] = *filter.Status
	}
	return r.findOne(ctx, q)
}

func (r *UserRepository) findOne(ctx context.Context, q bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, q).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) UpdateByID(ctx context.Context, userID string, upd ports.UserUpdate) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.LastPosition != nil {
		set["last_position"] = *upd.LastPosition
	}
	if upd.PalletID != nil {
		set["palletID"] = *upd.PalletID
	}

	filter := casFilter(bson.M{"userID": userID}, upd.ExpectVersion)

	update := versionedUpdate(set)
	if upd.KeepVersion {
		if len(set) == 0 {
			return r.findOne(ctx, filter)
		}
		update = bson.M{"$set": set}
	}

	var doc userDoc
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if upd.ExpectVersion == nil {
			return nil, domain.ErrUserNotFound
		}
		n, cerr := r.col.CountDocuments(ctx, bson.M{"userID": userID})
		if cerr != nil {
			return nil, fmt.Errorf("count user: %w", cerr)
		}
		if n == 0 {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return doc.toDomain(), nil
}

// EnsureIndexes creates the unique login index and the pallet reference index.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userID", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "palletID", Value: 1}}},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return backfillVersion(ctx, r.col)
}
