package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tabledger/tabledger/internal/order"
)

type AreaRepo struct {
	collection *mongo.Collection
}

func NewAreaRepo(db *mongo.Database) *AreaRepo {
	return &AreaRepo{
		collection: db.Collection("areas"),
	}
}

func (r *AreaRepo) Get(ctx context.Context, id uuid.UUID) (*order.Area, error) {
	var a order.Area
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get area: %w", err)
	}
	return &a, nil
}
