package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MockOrderRepo is a map-backed test double for OrderRepo.
type MockOrderRepo struct {
	orders map[uuid.UUID]*Order

	// AppliedPatches records every Update in call order.
	AppliedPatches []OrderPatch

	InsertFunc              func(ctx context.Context, o *Order) error
	GetFunc                 func(ctx context.Context, id uuid.UUID) (*Order, error)
	RunningByTableFunc      func(ctx context.Context, tableID uuid.UUID) (*Order, error)
	UpdateFunc              func(ctx context.Context, id uuid.UUID, patch OrderPatch) error
	FindByQueryFunc         func(ctx context.Context, q Query) ([]*Order, int64, error)
	FindByStatusesFunc      func(ctx context.Context, statuses []string, createdByIn []uuid.UUID) ([]*Order, error)
	CountByStatusesFunc     func(ctx context.Context, statuses []string, createdByIn []uuid.UUID) (int64, error)
	SumPaymentsByMethodFunc func(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]MethodTotal, error)
	BillerPerformanceFunc   func(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]PerformanceRow, error)
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[uuid.UUID]*Order)}
}

func (m *MockOrderRepo) AddOrder(o *Order) {
	m.orders[o.ID] = o
}

func (m *MockOrderRepo) Insert(ctx context.Context, o *Order) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, o)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepo) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.orders[id], nil
}

func (m *MockOrderRepo) RunningByTable(ctx context.Context, tableID uuid.UUID) (*Order, error) {
	if m.RunningByTableFunc != nil {
		return m.RunningByTableFunc(ctx, tableID)
	}
	for _, o := range m.orders {
		if o.TableID == tableID && o.IsRunning() {
			return o, nil
		}
	}
	return nil, nil
}

func (m *MockOrderRepo) Update(ctx context.Context, id uuid.UUID, patch OrderPatch) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, patch)
	}
	o, exists := m.orders[id]
	if !exists {
		return errors.New("order not found")
	}
	m.AppliedPatches = append(m.AppliedPatches, patch)
	applyPatch(o, patch)
	return nil
}

func applyPatch(o *Order, patch OrderPatch) {
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Items != nil {
		o.Items = *patch.Items
	}
	if patch.Totals != nil {
		o.Totals = *patch.Totals
	}
	if patch.KOTPrints != nil {
		o.KOTPrints = *patch.KOTPrints
	}
	if patch.BillPrints != nil {
		o.BillPrints = *patch.BillPrints
	}
	if patch.Payments != nil {
		o.Payments = *patch.Payments
	}
	if patch.CancelledAt != nil {
		o.CancelledAt = patch.CancelledAt
	}
	if patch.CancelledByUserID != nil {
		o.CancelledByUserID = patch.CancelledByUserID
	}
	if patch.CancelledByRole != nil {
		o.CancelledByRole = *patch.CancelledByRole
	}
	if patch.CancelReason != nil {
		o.CancelReason = *patch.CancelReason
	}
	o.UpdatedAt = patch.UpdatedAt
}

func (m *MockOrderRepo) FindByQuery(ctx context.Context, q Query) ([]*Order, int64, error) {
	if m.FindByQueryFunc != nil {
		return m.FindByQueryFunc(ctx, q)
	}
	result := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		result = append(result, o)
	}
	return result, int64(len(result)), nil
}

func (m *MockOrderRepo) FindByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) ([]*Order, error) {
	if m.FindByStatusesFunc != nil {
		return m.FindByStatusesFunc(ctx, statuses, createdByIn)
	}
	result := make([]*Order, 0)
	for _, o := range m.orders {
		for _, s := range statuses {
			if o.Status == s {
				result = append(result, o)
				break
			}
		}
	}
	return result, nil
}

func (m *MockOrderRepo) CountByStatuses(ctx context.Context, statuses []string, createdByIn []uuid.UUID) (int64, error) {
	if m.CountByStatusesFunc != nil {
		return m.CountByStatusesFunc(ctx, statuses, createdByIn)
	}
	orders, _ := m.FindByStatuses(ctx, statuses, createdByIn)
	return int64(len(orders)), nil
}

// SumPaymentsByMethod scans every stored order's payments regardless of
// order status, matching the real aggregation.
func (m *MockOrderRepo) SumPaymentsByMethod(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]MethodTotal, error) {
	if m.SumPaymentsByMethodFunc != nil {
		return m.SumPaymentsByMethodFunc(ctx, from, to, billerIDs)
	}
	totals := make(map[string]float64)
	for _, o := range m.orders {
		if len(billerIDs) > 0 && !containsID(billerIDs, o.CreatedBy) {
			continue
		}
		for _, p := range o.Payments {
			if p.PaidAt.Before(from) || !p.PaidAt.Before(to) {
				continue
			}
			totals[p.Method] += p.Amount
		}
	}
	result := make([]MethodTotal, 0, len(totals))
	for method, total := range totals {
		result = append(result, MethodTotal{Method: method, Total: total})
	}
	return result, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (m *MockOrderRepo) BillerPerformance(ctx context.Context, from, to time.Time, billerIDs []uuid.UUID) ([]PerformanceRow, error) {
	if m.BillerPerformanceFunc != nil {
		return m.BillerPerformanceFunc(ctx, from, to, billerIDs)
	}
	return []PerformanceRow{}, nil
}

// MockTableDirectory is a test double for TableDirectory.
type MockTableDirectory struct {
	tables map[uuid.UUID]*Table

	// StatusPatches records every SetStatus in call order.
	StatusPatches []TableStatusPatch

	GetFunc                   func(ctx context.Context, id uuid.UUID) (*Table, error)
	SetStatusFunc             func(ctx context.Context, id uuid.UUID, patch TableStatusPatch) error
	FindIDsByNameContainsFunc func(ctx context.Context, text string) ([]uuid.UUID, error)
}

func NewMockTableDirectory() *MockTableDirectory {
	return &MockTableDirectory{tables: make(map[uuid.UUID]*Table)}
}

func (m *MockTableDirectory) AddTable(t *Table) {
	m.tables[t.ID] = t
}

func (m *MockTableDirectory) Get(ctx context.Context, id uuid.UUID) (*Table, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.tables[id], nil
}

func (m *MockTableDirectory) SetStatus(ctx context.Context, id uuid.UUID, patch TableStatusPatch) error {
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(ctx, id, patch)
	}
	t, exists := m.tables[id]
	if !exists {
		return errors.New("table not found")
	}
	m.StatusPatches = append(m.StatusPatches, patch)
	t.Status = patch.Status
	if patch.ClearOrder {
		t.CurrentOrderID = nil
	} else if patch.CurrentOrderID != nil {
		t.CurrentOrderID = patch.CurrentOrderID
	}
	return nil
}

func (m *MockTableDirectory) FindIDsByNameContains(ctx context.Context, text string) ([]uuid.UUID, error) {
	if m.FindIDsByNameContainsFunc != nil {
		return m.FindIDsByNameContainsFunc(ctx, text)
	}
	return []uuid.UUID{}, nil
}

// MockMenuLookup is a test double for MenuLookup.
type MockMenuLookup struct {
	items map[uuid.UUID]*MenuItem

	GetItemFunc func(ctx context.Context, id uuid.UUID) (*MenuItem, error)
}

func NewMockMenuLookup() *MockMenuLookup {
	return &MockMenuLookup{items: make(map[uuid.UUID]*MenuItem)}
}

func (m *MockMenuLookup) AddItem(item *MenuItem) {
	m.items[item.ID] = item
}

func (m *MockMenuLookup) GetItem(ctx context.Context, id uuid.UUID) (*MenuItem, error) {
	if m.GetItemFunc != nil {
		return m.GetItemFunc(ctx, id)
	}
	return m.items[id], nil
}

// MockUserDirectory is a test double for UserDirectory.
type MockUserDirectory struct {
	users map[uuid.UUID]*User

	GetFunc            func(ctx context.Context, id uuid.UUID) (*User, error)
	IDsByReportTagFunc func(ctx context.Context, tag string) ([]uuid.UUID, error)
}

func NewMockUserDirectory() *MockUserDirectory {
	return &MockUserDirectory{users: make(map[uuid.UUID]*User)}
}

func (m *MockUserDirectory) AddUser(u *User) {
	m.users[u.ID] = u
}

func (m *MockUserDirectory) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.users[id], nil
}

func (m *MockUserDirectory) IDsByReportTag(ctx context.Context, tag string) ([]uuid.UUID, error) {
	if m.IDsByReportTagFunc != nil {
		return m.IDsByReportTagFunc(ctx, tag)
	}
	ids := make([]uuid.UUID, 0)
	for _, u := range m.users {
		if u.ReportUsername == tag && u.Role == RoleBiller {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// MockAreaDirectory is a test double for AreaDirectory.
type MockAreaDirectory struct {
	areas map[uuid.UUID]*Area

	GetFunc func(ctx context.Context, id uuid.UUID) (*Area, error)
}

func NewMockAreaDirectory() *MockAreaDirectory {
	return &MockAreaDirectory{areas: make(map[uuid.UUID]*Area)}
}

func (m *MockAreaDirectory) AddArea(a *Area) {
	m.areas[a.ID] = a
}

func (m *MockAreaDirectory) Get(ctx context.Context, id uuid.UUID) (*Area, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.areas[id], nil
}

// MockLocker is an in-memory test double for Locker.
type MockLocker struct {
	held map[string]bool

	AcquireCalls []string
	ReleaseCalls []string

	TryAcquireFunc func(ctx context.Context, key string, ttl time.Duration) bool
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	m.AcquireCalls = append(m.AcquireCalls, key)
	if m.TryAcquireFunc != nil {
		return m.TryAcquireFunc(ctx, key, ttl)
	}
	if m.held[key] {
		return false
	}
	m.held[key] = true
	return true
}

func (m *MockLocker) Release(ctx context.Context, key string) {
	m.ReleaseCalls = append(m.ReleaseCalls, key)
	delete(m.held, key)
}

// MockPublisher is a test double for events.Publisher.
type MockPublisher struct {
	PublishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishedEvents: make([]PublishedEvent, 0)}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

// MockReportCache is an in-memory test double for ReportCache.
type MockReportCache struct {
	entries map[string]string

	GetCalls []string
	SetCalls []string
}

func NewMockReportCache() *MockReportCache {
	return &MockReportCache{entries: make(map[string]string)}
}

func (m *MockReportCache) Get(ctx context.Context, key string) (string, bool) {
	m.GetCalls = append(m.GetCalls, key)
	value, ok := m.entries[key]
	return value, ok
}

func (m *MockReportCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	m.SetCalls = append(m.SetCalls, key)
	m.entries[key] = value
}

// fixedClock always reports the same instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}
