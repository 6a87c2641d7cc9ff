package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderPatch is a typed partial update. Only non-nil fields are written;
// the store must never clobber untouched fields. UpdatedAt is rewritten
// by the store on every patch.
type OrderPatch struct {
	Status     *string
	Items      *[]Item
	Totals     *Totals
	KOTPrints  *[]KOTPrint
	BillPrints *[]BillPrint
	Payments   *[]Payment

	CancelledAt       *time.Time
	CancelledByUserID *uuid.UUID
	CancelledByRole   *string
	CancelReason      *string

	UpdatedAt time.Time
}

// Query narrows and paginates order listings. Text matching is resolved
// by the caller into OrderID/TableIDs before it reaches the store.
type Query struct {
	Statuses    []string
	From        *time.Time
	To          *time.Time
	CreatedBy   *uuid.UUID
	CreatedByIn []uuid.UUID
	OrderID     *uuid.UUID
	TableIDs    []uuid.UUID
	// OrByTable widens OrderID/TableIDs into a single OR clause, used by
	// free-text search (exact id or table-name match).
	OrByTable bool

	Page     int
	PageSize int
}

// MethodTotal is one row of a payment-method breakdown.
type MethodTotal struct {
	Method string
	Total  float64
}

// PerformanceRow aggregates payments per biller. OrdersCount counts
// distinct orders, not installments.
type PerformanceRow struct {
	BillerID    uuid.UUID
	TotalSales  float64
	OrdersCount int
}

type OrderRepo interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// RunningByTable returns the newest running order on the table, or nil.
	RunningByTable(ctx context.Context, tableID uuid.UUID) (*Order, error)
	Update(ctx context.Context, id uuid.UUID, patch OrderPatch) error
	FindByQuery(ctx context.Context, q Query) ([]*Order, int64, error)
	FindByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) ([]*Order, error)
	CountByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) (int64, error)
	// SumPaymentsByMethod aggregates payment amounts whose paid_at falls in
	// [from, to), grouped by method. billerIDs narrows to creators when
	// non-empty.
	SumPaymentsByMethod(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]MethodTotal, error)
	// BillerPerformance groups payments per (biller, order) first and then
	// per biller, so installments on one order count as one order.
	BillerPerformance(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]PerformanceRow, error)
}

// Table is the slice of a table the engine reads and mutates.
type Table struct {
	ID             uuid.UUID  `bson:"_id" json:"id"`
	AreaID         uuid.UUID  `bson:"area_id" json:"area_id"`
	Name           string     `bson:"name" json:"name"`
	Status         string     `bson:"status" json:"status"`
	CurrentOrderID *uuid.UUID `bson:"current_order_id,omitempty" json:"current_order_id,omitempty"`
}

// TableStatusPatch updates only the occupancy fields the engine owns.
// ClearOrder distinguishes "unset current_order_id" from "leave it".
type TableStatusPatch struct {
	Status         string
	CurrentOrderID *uuid.UUID
	ClearOrder     bool
}

type TableDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*Table, error)
	SetStatus(ctx context.Context, id uuid.UUID, patch TableStatusPatch) error
	// FindIDsByNameContains supports the listing's case-insensitive
	// table-name text filter.
	FindIDsByNameContains(ctx context.Context, text string) ([]uuid.UUID, error)
}

// MenuItem is the read-only snapshot source for item lines.
type MenuItem struct {
	ID       uuid.UUID `bson:"_id" json:"id"`
	Name     string    `bson:"name" json:"name"`
	Price    float64   `bson:"price" json:"price"`
	IsActive bool      `bson:"is_active" json:"is_active"`
}

type MenuLookup interface {
	GetItem(ctx context.Context, id uuid.UUID) (*MenuItem, error)
}

// User is the slice of a user the projector needs for enrichment and
// report grouping.
type User struct {
	ID             uuid.UUID `bson:"_id" json:"id"`
	Username       string    `bson:"username" json:"username"`
	Role           string    `bson:"role" json:"role"`
	ReportUsername string    `bson:"report_username,omitempty" json:"report_username,omitempty"`
}

type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	// IDsByReportTag returns the billers carrying the given report_username
	// tag (a many-billers-to-one-tag grouping).
	IDsByReportTag(ctx context.Context, tag string) ([]uuid.UUID, error)
}

type Area struct {
	ID   uuid.UUID `bson:"_id" json:"id"`
	Name string    `bson:"name" json:"name"`
}

type AreaDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*Area, error)
}

// Locker is the short-TTL mutual exclusion primitive guarding prints.
// Implementations fail open when the backend is unreachable unless
// configured otherwise.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string)
}

// ReportCache is a best-effort string cache; both operations swallow
// backend failures.
type ReportCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}
