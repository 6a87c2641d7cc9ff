package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tabledger/tabledger/internal/order"
)

// MenuRepo is the read-only snapshot source for item name, price and
// active flag. Menu management lives elsewhere.
type MenuRepo struct {
	collection *mongo.Collection
}

func NewMenuRepo(db *mongo.Database) *MenuRepo {
	return &MenuRepo{
		collection: db.Collection("menu_items"),
	}
}

func (r *MenuRepo) GetItem(ctx context.Context, id uuid.UUID) (*order.MenuItem, error) {
	var item order.MenuItem
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get menu item: %w", err)
	}
	return &item, nil
}
