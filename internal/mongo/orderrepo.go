package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tabledger/tabledger/internal/order"
)

type OrderRepo struct {
	collection *mongo.Collection
}

func NewOrderRepo(db *mongo.Database) *OrderRepo {
	return &OrderRepo{
		collection: db.Collection("orders"),
	}
}

func (r *OrderRepo) Insert(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) RunningByTable(ctx context.Context, tableID uuid.UUID) (*order.Order, error) {
	filter := bson.M{
		"table_id": tableID,
		"status":   bson.M{"$in": order.RunningStatuses},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var o order.Order
	err := r.collection.FindOne(ctx, filter, opts).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get running order: %w", err)
	}
	return &o, nil
}

// Update applies a typed patch as a single $set so untouched fields are
// never clobbered.
func (r *OrderRepo) Update(ctx context.Context, id uuid.UUID, patch order.OrderPatch) error {
	set := bson.M{"updated_at": patch.UpdatedAt}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Items != nil {
		set["items"] = *patch.Items
	}
	if patch.Totals != nil {
		set["totals"] = *patch.Totals
	}
	if patch.KOTPrints != nil {
		set["kot_prints"] = *patch.KOTPrints
	}
	if patch.BillPrints != nil {
		set["bill_prints"] = *patch.BillPrints
	}
	if patch.Payments != nil {
		set["payments"] = *patch.Payments
	}
	if patch.CancelledAt != nil {
		set["cancelled_at"] = *patch.CancelledAt
	}
	if patch.CancelledByUserID != nil {
		set["cancelled_by_user_id"] = *patch.CancelledByUserID
	}
	if patch.CancelledByRole != nil {
		set["cancelled_by_role"] = *patch.CancelledByRole
	}
	if patch.CancelReason != nil {
		set["cancel_reason"] = *patch.CancelReason
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("cannot update order: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order not found")
	}

	return nil
}

func (r *OrderRepo) FindByQuery(ctx context.Context, q order.Query) ([]*order.Order, int64, error) {
	filter := buildQueryFilter(q)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot count orders: %w", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page-1) * int64(q.PageSize)).
		SetLimit(int64(q.PageSize))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*order.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("cannot decode orders: %w", err)
	}

	return result, total, nil
}

func buildQueryFilter(q order.Query) bson.M {
	filter := bson.M{}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}

	created := bson.M{}
	if q.From != nil {
		created["$gte"] = *q.From
	}
	if q.To != nil {
		created["$lte"] = *q.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	if q.CreatedBy != nil {
		filter["created_by"] = *q.CreatedBy
	} else if len(q.CreatedByIn) > 0 {
		filter["created_by"] = bson.M{"$in": q.CreatedByIn}
	}

	if q.OrByTable {
		or := bson.A{}
		if q.OrderID != nil {
			or = append(or, bson.M{"_id": *q.OrderID})
		}
		if len(q.TableIDs) > 0 {
			or = append(or, bson.M{"table_id": bson.M{"$in": q.TableIDs}})
		}
		if len(or) > 0 {
			filter["$or"] = or
		}
	} else {
		if q.OrderID != nil {
			filter["_id"] = *q.OrderID
		}
		if len(q.TableIDs) > 0 {
			filter["table_id"] = bson.M{"$in": q.TableIDs}
		}
	}

	return filter
}

func (r *OrderRepo) FindByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) ([]*order.Order, error) {
	filter := bson.M{"status": bson.M{"$in": statuses}}
	if len(createdByIn) > 0 {
		filter["created_by"] = bson.M{"$in": createdByIn}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders by status: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*order.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}

	return result, nil
}

func (r *OrderRepo) CountByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) (int64, error) {
	filter := bson.M{"status": bson.M{"$in": statuses}}
	if len(createdByIn) > 0 {
		filter["created_by"] = bson.M{"$in": createdByIn}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("cannot count orders: %w", err)
	}
	return count, nil
}

func (r *OrderRepo) SumPaymentsByMethod(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]order.MethodTotal, error) {
	pipeline := mongo.Pipeline{}
	if len(billerIDs) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"created_by": bson.M{"$in": billerIDs},
		}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$unwind", Value: "$payments"}},
		bson.D{{Key: "$match", Value: bson.M{
			"payments.paid_at": bson.M{"$gte": from, "$lt": to},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$payments.method",
			"total": bson.M{"$sum": "$payments.amount"},
		}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("cannot aggregate payments: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Method string  `bson:"_id"`
		Total  float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("cannot decode payment aggregates: %w", err)
	}

	result := make([]order.MethodTotal, 0, len(rows))
	for _, row := range rows {
		result = append(result, order.MethodTotal{Method: row.Method, Total: row.Total})
	}
	return result, nil
}

// BillerPerformance groups payments per (biller, order) before summing
// per biller, so multiple installments on one order count it once.
func (r *OrderRepo) BillerPerformance(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]order.PerformanceRow, error) {
	pipeline := mongo.Pipeline{}
	if len(billerIDs) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"created_by": bson.M{"$in": billerIDs},
		}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$unwind", Value: "$payments"}},
		bson.D{{Key: "$match", Value: bson.M{
			"payments.paid_at": bson.M{"$gte": from, "$lt": to},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":         bson.M{"biller": "$created_by", "order_id": "$_id"},
			"order_total": bson.M{"$sum": "$payments.amount"},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          "$_id.biller",
			"total_sales":  bson.M{"$sum": "$order_total"},
			"orders_count": bson.M{"$sum": 1},
		}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("cannot aggregate biller performance: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		BillerID    uuid.UUID `bson:"_id"`
		TotalSales  float64   `bson:"total_sales"`
		OrdersCount int       `bson:"orders_count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("cannot decode performance aggregates: %w", err)
	}

	result := make([]order.PerformanceRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, order.PerformanceRow{
			BillerID:    row.BillerID,
			TotalSales:  row.TotalSales,
			OrdersCount: row.OrdersCount,
		})
	}
	return result, nil
}
