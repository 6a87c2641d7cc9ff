package mongo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tabledger/tabledger/internal/order"
)

// TableRepo reads tables and writes the two occupancy fields the order
// engine owns. All other table attributes belong to table management.
type TableRepo struct {
	collection *mongo.Collection
}

func NewTableRepo(db *mongo.Database) *TableRepo {
	return &TableRepo{
		collection: db.Collection("tables"),
	}
}

func (r *TableRepo) Get(ctx context.Context, id uuid.UUID) (*order.Table, error) {
	var t order.Table
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get table: %w", err)
	}
	return &t, nil
}

func (r *TableRepo) SetStatus(ctx context.Context, id uuid.UUID, patch order.TableStatusPatch) error {
	set := bson.M{"status": patch.Status}
	if patch.ClearOrder {
		set["current_order_id"] = nil
	} else if patch.CurrentOrderID != nil {
		set["current_order_id"] = *patch.CurrentOrderID
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("cannot update table status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("table not found")
	}

	return nil
}

func (r *TableRepo) FindIDsByNameContains(ctx context.Context, text string) ([]uuid.UUID, error) {
	filter := bson.M{"name": primitive.Regex{
		Pattern: regexp.QuoteMeta(text),
		Options: "i",
	}}
	opts := options.Find().SetProjection(bson.M{"_id": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot search tables by name: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID uuid.UUID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("cannot decode table ids: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
