package order

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Order statuses. Paid is only observable inside the payment transaction:
// ProcessPayment persists paid and then closed as two sequential writes.
const (
	StatusOpen       = "open"
	StatusKOTPrinted = "kot_printed"
	StatusBilled     = "billed"
	StatusPaid       = "paid"
	StatusClosed     = "closed"
	StatusCancelled  = "cancelled"
)

// Table statuses. Occupancy fields on tables are written only by the
// engine, never by table CRUD.
const (
	TableAvailable  = "available"
	TableOccupied   = "occupied"
	TableReserved   = "reserved"
	TableOutOfOrder = "out_of_order"
)

const (
	RoleAdmin  = "admin"
	RoleBiller = "biller"
)

// RunningStatuses are the non-terminal, non-cancelled statuses: the ones
// in which a table has a current order.
var RunningStatuses = []string{StatusOpen, StatusKOTPrinted, StatusBilled}

// Item is an order line. Name and price are snapshots copied from the
// menu at add time and never updated afterwards, so later menu edits do
// not rewrite historical bills.
type Item struct {
	ItemID        uuid.UUID `bson:"item_id" json:"item_id"`
	NameSnapshot  string    `bson:"name_snapshot" json:"name_snapshot"`
	PriceSnapshot float64   `bson:"price_snapshot" json:"price_snapshot"`
	Qty           int       `bson:"qty" json:"qty"`
	Notes         string    `bson:"notes,omitempty" json:"notes,omitempty"`
}

type Totals struct {
	SubTotal      float64 `bson:"sub_total" json:"sub_total"`
	TaxTotal      float64 `bson:"tax_total" json:"tax_total"`
	DiscountTotal float64 `bson:"discount_total" json:"discount_total"`
	GrandTotal    float64 `bson:"grand_total" json:"grand_total"`
}

// KOTPrint is an append-only audit record of a kitchen ticket print.
type KOTPrint struct {
	PrintedAt     time.Time `bson:"printed_at" json:"printed_at"`
	ItemsSnapshot []Item    `bson:"items_snapshot" json:"items_snapshot"`
}

// BillPrint is an append-only audit record of a bill print.
type BillPrint struct {
	PrintedAt      time.Time `bson:"printed_at" json:"printed_at"`
	TotalsSnapshot Totals    `bson:"totals_snapshot" json:"totals_snapshot"`
}

// Payment records money received. Payments are never removed, not even
// when the order is cancelled afterwards.
type Payment struct {
	Amount float64   `bson:"amount" json:"amount"`
	Method string    `bson:"method" json:"method"`
	PaidAt time.Time `bson:"paid_at" json:"paid_at"`
	Notes  string    `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Order is the central aggregate: a permanent ledger entry from open to
// close or cancellation. Orders are never deleted.
type Order struct {
	ID         uuid.UUID   `bson:"_id" json:"id"`
	TableID    uuid.UUID   `bson:"table_id" json:"table_id"`
	AreaID     uuid.UUID   `bson:"area_id" json:"area_id"`
	Status     string      `bson:"status" json:"status"`
	Items      []Item      `bson:"items" json:"items"`
	Totals     Totals      `bson:"totals" json:"totals"`
	KOTPrints  []KOTPrint  `bson:"kot_prints" json:"kot_prints"`
	BillPrints []BillPrint `bson:"bill_prints" json:"bill_prints"`
	Payments   []Payment   `bson:"payments" json:"payments"`
	CreatedBy  uuid.UUID   `bson:"created_by" json:"created_by"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at"`

	CancelledAt       *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancelledByUserID *uuid.UUID `bson:"cancelled_by_user_id,omitempty" json:"cancelled_by_user_id,omitempty"`
	CancelledByRole   string     `bson:"cancelled_by_role,omitempty" json:"cancelled_by_role,omitempty"`
	CancelReason      string     `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
}

func NewOrder(tableID, areaID, createdBy uuid.UUID) *Order {
	return &Order{
		ID:         apt.GenerateNewID(),
		TableID:    tableID,
		AreaID:     areaID,
		Status:     StatusOpen,
		Items:      []Item{},
		KOTPrints:  []KOTPrint{},
		BillPrints: []BillPrint{},
		Payments:   []Payment{},
		CreatedBy:  createdBy,
	}
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) SetID(id uuid.UUID) {
	o.ID = id
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = apt.GenerateNewID()
	}
}

func (o *Order) BeforeCreate(now time.Time) {
	o.EnsureID()
	o.CreatedAt = now
	o.UpdatedAt = now
}

// IsRunning reports whether the order is in a non-terminal, non-cancelled
// status, i.e. it is a table's current order.
func (o *Order) IsRunning() bool {
	switch o.Status {
	case StatusOpen, StatusKOTPrinted, StatusBilled:
		return true
	}
	return false
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusClosed || o.Status == StatusCancelled
}

// CanModifyItems reports whether item mutation is legal in the current
// status. Payment-locked and terminal orders are frozen.
func (o *Order) CanModifyItems() bool {
	switch o.Status {
	case StatusPaid, StatusClosed, StatusCancelled:
		return false
	}
	return true
}

// FindItem returns the index of the line for itemID, or -1. At most one
// line exists per distinct menu item.
func (o *Order) FindItem(itemID uuid.UUID) int {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// ItemsQty is the sum of line quantities, not the line count.
func (o *Order) ItemsQty() int {
	total := 0
	for i := range o.Items {
		total += o.Items[i].Qty
	}
	return total
}

// DeepCopyItems returns an independent copy of the item list for print
// snapshots, so later edits cannot reach into audit history.
func (o *Order) DeepCopyItems() []Item {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	return items
}

// MarkCancelled stamps the additive terminal state. Items, prints and
// payments are left untouched.
func (o *Order) MarkCancelled(actor Actor, reason string, now time.Time) {
	o.Status = StatusCancelled
	o.CancelledAt = &now
	actorID := actor.ID
	o.CancelledByUserID = &actorID
	o.CancelledByRole = actor.Role
	o.CancelReason = reason
	o.UpdatedAt = now
}

// Actor identifies the authenticated caller as resolved by the upstream
// gateway.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanCancel: admins cancel anything, billers only their own orders.
func (a Actor) CanCancel(o *Order) bool {
	return a.IsAdmin() || o.CreatedBy == a.ID
}
