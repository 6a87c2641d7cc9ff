package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/tabledger/tabledger/pkg"
)

// DefaultLockTTL bounds how long a crashed print holder can block the
// next attempt.
const DefaultLockTTL = 2 * time.Second

// ItemDelta is the typed command for item mutation: positive deltas add,
// negative deltas remove, a resulting quantity of zero drops the line.
type ItemDelta struct {
	ItemID   uuid.UUID `json:"item_id"`
	QtyDelta int       `json:"qty_delta"`
	Notes    *string   `json:"notes,omitempty"`
}

// PaymentInput is one entry of a payment batch.
type PaymentInput struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
	Notes  string  `json:"notes,omitempty"`
}

// Engine owns the order state machine: open, item mutation, KOT and bill
// printing, payment/close, cancellation. All collaborators are injected;
// the engine holds no ambient state.
type Engine struct {
	orders    OrderRepo
	tables    TableDirectory
	menu      MenuLookup
	locker    Locker
	clock     Clock
	publisher events.Publisher
	logger    apt.Logger
	taxRate   float64
	lockTTL   time.Duration
}

type EngineDeps struct {
	Orders    OrderRepo
	Tables    TableDirectory
	Menu      MenuLookup
	Locker    Locker
	Clock     Clock
	Publisher events.Publisher
	TaxRate   float64
	LockTTL   time.Duration
}

func NewEngine(deps EngineDeps, logger apt.Logger) *Engine {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = ISTClock{}
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Engine{
		orders:    deps.Orders,
		tables:    deps.Tables,
		menu:      deps.Menu,
		locker:    deps.Locker,
		clock:     clock,
		publisher: deps.Publisher,
		logger:    logger,
		taxRate:   deps.TaxRate,
		lockTTL:   ttl,
	}
}

// Open creates an order on the table, or returns the existing running
// order unchanged. Opening is idempotent per table: at most one caller
// ever creates, repeated calls converge on the same order.
func (e *Engine) Open(ctx context.Context, tableID, userID uuid.UUID) (*Order, error) {
	table, err := e.tables.Get(ctx, tableID)
	if err != nil {
		return nil, UnavailableError("cannot load table", err)
	}
	if table == nil {
		return nil, NotFoundError("table not found")
	}

	existing, err := e.orders.RunningByTable(ctx, tableID)
	if err != nil {
		return nil, UnavailableError("cannot check for running order", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := e.clock.Now()
	o := NewOrder(tableID, table.AreaID, userID)
	o.Totals = CalculateTotals(nil, 0, e.taxRate)
	o.BeforeCreate(now)

	if err := e.orders.Insert(ctx, o); err != nil {
		return nil, UnavailableError("cannot create order", err)
	}

	orderID := o.ID
	err = e.tables.SetStatus(ctx, tableID, TableStatusPatch{
		Status:         TableOccupied,
		CurrentOrderID: &orderID,
	})
	if err != nil {
		return nil, UnavailableError("cannot occupy table", err)
	}

	return o, nil
}

// AddItem applies an item delta, snapshotting name and price from the
// menu on first add and recomputing totals with the current discount
// carried forward.
func (e *Engine) AddItem(ctx context.Context, orderID uuid.UUID, delta ItemDelta) (*Order, error) {
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanModifyItems() {
		return nil, InvalidStateError(fmt.Sprintf("cannot modify a %s order", o.Status))
	}

	menuItem, err := e.menu.GetItem(ctx, delta.ItemID)
	if err != nil {
		return nil, UnavailableError("cannot load menu item", err)
	}
	if menuItem == nil {
		return nil, NotFoundError("menu item not found")
	}
	if !menuItem.IsActive {
		return nil, InvalidInputError("menu item is not active")
	}

	if idx := o.FindItem(delta.ItemID); idx >= 0 {
		newQty := o.Items[idx].Qty + delta.QtyDelta
		if newQty <= 0 {
			o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
		} else {
			o.Items[idx].Qty = newQty
			if delta.Notes != nil {
				o.Items[idx].Notes = *delta.Notes
			}
		}
	} else {
		if delta.QtyDelta <= 0 {
			return nil, InvalidInputError("cannot add item with zero or negative quantity")
		}
		item := Item{
			ItemID:        delta.ItemID,
			NameSnapshot:  menuItem.Name,
			PriceSnapshot: menuItem.Price,
			Qty:           delta.QtyDelta,
		}
		if delta.Notes != nil {
			item.Notes = *delta.Notes
		}
		o.Items = append(o.Items, item)
	}

	o.Totals = CalculateTotals(o.Items, o.Totals.DiscountTotal, e.taxRate)
	o.UpdatedAt = e.clock.Now()

	patch := OrderPatch{
		Items:     &o.Items,
		Totals:    &o.Totals,
		UpdatedAt: o.UpdatedAt,
	}
	if err := e.orders.Update(ctx, o.ID, patch); err != nil {
		return nil, UnavailableError("cannot update order", err)
	}

	return o, nil
}

// PrintKOT appends a kitchen ticket record under a short-TTL lock so a
// double submit cannot duplicate the audit entry. A second KOT on an
// already kot_printed or billed order appends history without reverting
// status.
func (e *Engine) PrintKOT(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	key := "kot:" + orderID.String()
	if !e.locker.TryAcquire(ctx, key, e.lockTTL) {
		return nil, BusyError("KOT print already in progress, please wait")
	}
	defer e.locker.Release(ctx, key)

	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanModifyItems() {
		return nil, InvalidStateError(fmt.Sprintf("cannot print KOT for a %s order", o.Status))
	}
	if len(o.Items) == 0 {
		return nil, InvalidInputError("cannot print KOT for order with no items")
	}

	now := e.clock.Now()
	o.KOTPrints = append(o.KOTPrints, KOTPrint{
		PrintedAt:     now,
		ItemsSnapshot: o.DeepCopyItems(),
	})
	if o.Status == StatusOpen {
		o.Status = StatusKOTPrinted
	}
	o.UpdatedAt = now

	patch := OrderPatch{
		KOTPrints: &o.KOTPrints,
		Status:    &o.Status,
		UpdatedAt: now,
	}
	if err := e.orders.Update(ctx, o.ID, patch); err != nil {
		return nil, UnavailableError("cannot update order", err)
	}

	return o, nil
}

// PrintBill appends a bill record and moves the order to billed.
// Re-billing is allowed and just appends another totals snapshot.
func (e *Engine) PrintBill(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	key := "bill:" + orderID.String()
	if !e.locker.TryAcquire(ctx, key, e.lockTTL) {
		return nil, BusyError("bill print already in progress, please wait")
	}
	defer e.locker.Release(ctx, key)

	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanModifyItems() {
		return nil, InvalidStateError(fmt.Sprintf("cannot print bill for a %s order", o.Status))
	}
	if len(o.Items) == 0 {
		return nil, InvalidInputError("cannot print bill for order with no items")
	}

	now := e.clock.Now()
	o.BillPrints = append(o.BillPrints, BillPrint{
		PrintedAt:      now,
		TotalsSnapshot: o.Totals,
	})
	o.Status = StatusBilled
	o.UpdatedAt = now

	patch := OrderPatch{
		BillPrints: &o.BillPrints,
		Status:     &o.Status,
		UpdatedAt:  now,
	}
	if err := e.orders.Update(ctx, o.ID, patch); err != nil {
		return nil, UnavailableError("cannot update order", err)
	}

	return o, nil
}

// ProcessPayment records the batch, moves the order paid then closed,
// and frees the table. Paid and closed are two sequential writes on
// purpose: a crash between them leaves the payment durably recorded
// rather than lost.
func (e *Engine) ProcessPayment(ctx context.Context, orderID uuid.UUID, batch []PaymentInput) (*Order, error) {
	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusBilled {
		return nil, InvalidStateError("order must be billed before payment")
	}
	if len(batch) == 0 {
		return nil, InvalidInputError("at least one payment is required")
	}

	total := 0.0
	for _, p := range batch {
		if p.Amount <= 0 {
			return nil, InvalidInputError("payment amount must be greater than zero")
		}
		if strings.TrimSpace(p.Method) == "" {
			return nil, InvalidInputError("payment method is required")
		}
		total += p.Amount
	}
	if total < o.Totals.GrandTotal {
		return nil, InvalidInputError(fmt.Sprintf(
			"total payment (%.2f) is less than grand total (%.2f)",
			total, o.Totals.GrandTotal,
		))
	}

	now := e.clock.Now()
	for _, p := range batch {
		o.Payments = append(o.Payments, Payment{
			Amount: p.Amount,
			Method: p.Method,
			PaidAt: now,
			Notes:  p.Notes,
		})
	}

	paid := StatusPaid
	o.Status = paid
	o.UpdatedAt = now
	err = e.orders.Update(ctx, o.ID, OrderPatch{
		Payments:  &o.Payments,
		Status:    &paid,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, UnavailableError("cannot record payment", err)
	}

	closed := StatusClosed
	o.Status = closed
	err = e.orders.Update(ctx, o.ID, OrderPatch{
		Status:    &closed,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, UnavailableError("payment recorded but order could not be closed", err)
	}

	table, err := e.tables.Get(ctx, o.TableID)
	if err == nil && table != nil {
		err = e.tables.SetStatus(ctx, o.TableID, TableStatusPatch{
			Status:     TableAvailable,
			ClearOrder: true,
		})
	}
	if err != nil {
		e.logger.Error("cannot clear table after payment", "error", err, "table_id", o.TableID.String())
	}

	return o, nil
}

// Cancel stamps the terminal cancellation state. Items, prints and
// payments are preserved; the table is freed if it still points at this
// order; admin and area channels are notified best effort.
func (e *Engine) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, InvalidInputError("cancel reason is required")
	}

	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return nil, ConflictError("order is already cancelled")
	}
	if o.Status == StatusClosed || o.Status == StatusPaid {
		return nil, InvalidStateError(fmt.Sprintf("cannot cancel a %s order", o.Status))
	}
	if !actor.CanCancel(o) {
		return nil, ForbiddenError("only an admin or the creating biller can cancel this order")
	}

	now := e.clock.Now()
	o.MarkCancelled(actor, reason, now)

	patch := OrderPatch{
		Status:            &o.Status,
		CancelledAt:       o.CancelledAt,
		CancelledByUserID: o.CancelledByUserID,
		CancelledByRole:   &o.CancelledByRole,
		CancelReason:      &o.CancelReason,
		UpdatedAt:         now,
	}
	if err := e.orders.Update(ctx, o.ID, patch); err != nil {
		return nil, UnavailableError("cannot cancel order", err)
	}

	table, err := e.tables.Get(ctx, o.TableID)
	if err == nil && table != nil && table.CurrentOrderID != nil && *table.CurrentOrderID == o.ID {
		err = e.tables.SetStatus(ctx, o.TableID, TableStatusPatch{
			Status:     TableAvailable,
			ClearOrder: true,
		})
	}
	if err != nil {
		e.logger.Error("cannot clear table after cancellation", "error", err, "table_id", o.TableID.String())
	}

	e.publishCancelled(ctx, o, reason)

	return o, nil
}

// Current resolves the table's current order through its pointer.
// Returns (nil, nil) when the table is simply unoccupied.
func (e *Engine) Current(ctx context.Context, tableID uuid.UUID) (*Order, error) {
	table, err := e.tables.Get(ctx, tableID)
	if err != nil {
		return nil, UnavailableError("cannot load table", err)
	}
	if table == nil {
		return nil, NotFoundError("table not found")
	}
	if table.CurrentOrderID == nil {
		return nil, nil
	}
	o, err := e.orders.Get(ctx, *table.CurrentOrderID)
	if err != nil {
		return nil, UnavailableError("cannot load order", err)
	}
	return o, nil
}

func (e *Engine) getOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := e.orders.Get(ctx, id)
	if err != nil {
		return nil, UnavailableError("cannot load order", err)
	}
	if o == nil {
		return nil, NotFoundError("order not found")
	}
	return o, nil
}

func (e *Engine) publishCancelled(ctx context.Context, o *Order, reason string) {
	if e.publisher == nil {
		return
	}

	event := pkg.OrderCancelledEvent{
		EventType:       pkg.EventOrderCancelled,
		OrderID:         o.ID.String(),
		TableID:         o.TableID.String(),
		AreaID:          o.AreaID.String(),
		Status:          o.Status,
		CancelledByRole: o.CancelledByRole,
		Reason:          reason,
	}
	if o.CancelledAt != nil {
		event.CancelledAt = *o.CancelledAt
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("cannot marshal cancellation event", "error", err, "order_id", o.ID.String())
		return
	}

	for _, topic := range []string{pkg.AdminOrdersTopic, pkg.AreaOrdersTopic(o.AreaID.String())} {
		if err := e.publisher.Publish(ctx, topic, payload); err != nil {
			e.logger.Error("cannot publish cancellation event", "error", err, "topic", topic)
		}
	}
}
