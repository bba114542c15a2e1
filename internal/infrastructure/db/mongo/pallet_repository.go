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

const collectionPallets = "pallets"

// PalletRepository implements ports.PalletRepository using MongoDB.
type PalletRepository struct {
	col *mongo.Collection
}

func NewPalletRepository(db *mongo.Database) *PalletRepository {
	return &PalletRepository{col: db.Collection(collectionPallets)}
}

type palletDoc struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty"`
	Category string              `bson:"type"`
	Contents string              `bson:"content"`
	Status   domain.PalletStatus `bson:"status"`
	Position domain.Position     `bson:"position"`
	Holder   string              `bson:"final_user"`
	Version  int64               `bson:"version"`
}

func (d *palletDoc) toDomain() *domain.Pallet {
	return &domain.Pallet{
		ID:       d.ID.Hex(),
		Category: d.Category,
		Contents: d.Contents,
		Status:   d.Status,
		Position: d.Position,
		Holder:   d.Holder,
		Version:  d.Version,
	}
}

// Insert stores a new pallet and returns its generated key.
func (r *PalletRepository) Insert(ctx context.Context, p *domain.Pallet) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := palletDoc{
		ID:       primitive.NewObjectID(),
		Category: p.Category,
		Contents: p.Contents,
		Status:   p.Status,
		Position: p.Position,
		Holder:   p.Holder,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert pallet: %w", err)
	}
	return doc.ID.Hex(), nil
}

// FindByKey retrieves a pallet by its key.
func (r *PalletRepository) FindByKey(ctx context.Context, id string) (*domain.Pallet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrPalletNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc palletDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPalletNotFound
		}
		return nil, fmt.Errorf("find pallet: %w", err)
	}
	return doc.toDomain(), nil
}

// FindOne returns the first pallet matching filter.
func (r *PalletRepository) FindOne(ctx context.Context, filter ports.PalletFilter) (*domain.Pallet, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc palletDoc
	if err := r.col.FindOne(ctx, palletQuery(filter)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPalletNotFound
		}
		return nil, fmt.Errorf("find pallet: %w", err)
	}
	return doc.toDomain(), nil
}

// Find returns every pallet matching filter in insertion order.
func (r *PalletRepository) Find(ctx context.Context, filter ports.PalletFilter) ([]*domain.Pallet, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, palletQuery(filter), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find pallets: %w", err)
	}
	defer cur.Close(ctx)

	var docs []palletDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode pallets: %w", err)
	}

	out := make([]*domain.Pallet, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// UpdateByKey applies the non-nil fields of upd and increments the version.
// With ExpectVersion set, the write only matches the expected revision.
func (r *PalletRepository) UpdateByKey(ctx context.Context, id string, upd ports.PalletUpdate) (*domain.Pallet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrPalletNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Category != nil {
		set["type"] = *upd.Category
	}
	if upd.Contents != nil {
		set["content"] = *upd.Contents
	}
	if upd.Position != nil {
		set["position"] = *upd.Position
	}
	if upd.Holder != nil {
		set["final_user"] = *upd.Holder
	}

	filter := casFilter(bson.M{"_id": oid}, upd.ExpectVersion)

	var doc palletDoc
	err = r.col.FindOneAndUpdate(ctx, filter, versionedUpdate(set),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missOrConflict(ctx, oid, upd.ExpectVersion != nil)
	}
	if err != nil {
		return nil, fmt.Errorf("update pallet: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *PalletRepository) missOrConflict(ctx context.Context, oid primitive.ObjectID, conditional bool) error {
	if !conditional {
		return domain.ErrPalletNotFound
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("count pallet: %w", err)
	}
	if n == 0 {
		return domain.ErrPalletNotFound
	}
	return domain.ErrVersionConflict
}

// Distinct returns the distinct values of field among pallets matching filter.
func (r *PalletRepository) Distinct(ctx context.Context, field ports.PalletField, filter ports.PalletFilter) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	raw, err := r.col.Distinct(ctx, string(field), palletQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// EnsureIndexes creates necessary indexes on the pallets collection.
func (r *PalletRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "content", Value: 1}}},
		{Keys: bson.D{{Key: "final_user", Value: 1}}},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create pallet indexes: %w", err)
	}
	return backfillVersion(ctx, r.col)
}

func palletQuery(f ports.PalletFilter) bson.M {
	q := bson.M{}
	if f.Status != nil {
		q["status"] = *f.Status
	}
	if f.Category != nil {
		q["type"] = *f.Category
	}
	if f.Contents != nil {
		q["content"] = *f.Contents
	}
	if f.Holder != nil {
		q["final_user"] = *f.Holder
	}
	return q
}

// casFilter narrows base to the expected revision. Records written before
// versioning have no version field and count as revision 0.
func casFilter(base bson.M, expect *int64) bson.M {
	if expect == nil {
		return base
	}
	if *expect == 0 {
		base["version"] = bson.M{"$in": bson.A{int64(0), nil}}
	} else {
		base["version"] = *expect
	}
	return base
}

// backfillVersion stamps revision 0 on records that predate versioning.
func backfillVersion(ctx context.Context, col *mongo.Collection) error {
	_, err := col.UpdateMany(ctx,
		bson.M{"version": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"version": int64(0)}},
	)
	if err != nil {
		return fmt.Errorf("backfill %s version: %w", col.Name(), err)
	}
	return nil
}

func versionedUpdate(set bson.M) bson.M {
	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(set) > 0 {
		update["$set"] = set
	}
	return update
}
