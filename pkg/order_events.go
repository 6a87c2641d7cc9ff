package pkg

import "time"

const (
	// AdminOrdersTopic carries lifecycle events every admin console
	// subscribes to.
	AdminOrdersTopic = "orders.admin"

	// EventOrderCancelled identifies a cancellation payload.
	EventOrderCancelled = "order.cancelled"
)

// AreaOrdersTopic scopes lifecycle events to one dining area.
func AreaOrdersTopic(areaID string) string {
	return "orders.area." + areaID
}

// OrderCancelledEvent is the fan-out payload emitted when an order is
// cancelled. Delivery is best effort; the engine never depends on it.
type OrderCancelledEvent struct {
	EventType       string    `json:"event_type"`
	OrderID         string    `json:"order_id"`
	TableID         string    `json:"table_id"`
	AreaID          string    `json:"area_id"`
	Status          string    `json:"status"`
	CancelledAt     time.Time `json:"cancelled_at"`
	CancelledByRole string    `json:"cancelled_by_role"`
	Reason          string    `json:"reason,omitempty"`
}
