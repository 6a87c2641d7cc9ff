package order

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Listing scopes: named status groups used to partition order listings.
const (
	ScopeRunning   = "running"
	ScopeClosed    = "closed"
	ScopeCancelled = "cancelled"
	ScopeAll       = "all"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	previewLines    = 3
)

// scopeStatuses maps a scope to its status predicate; nil means no
// status filter.
func scopeStatuses(scope string) ([]string, bool) {
	switch scope {
	case ScopeRunning, "":
		return []string{StatusOpen, StatusKOTPrinted, StatusBilled}, true
	case ScopeClosed:
		return []string{StatusPaid, StatusClosed}, true
	case ScopeCancelled:
		return []string{StatusCancelled}, true
	case ScopeAll:
		return nil, true
	}
	return nil, false
}

// ListParams narrows and paginates the order listing. BillerID must
// already be stripped for non-admin callers. From/To are IST day bounds;
// empty values default to today.
type ListParams struct {
	Scope    string
	Page     int
	PageSize int
	From     string
	To       string
	BillerID *uuid.UUID
	Text     string
}

// PreviewLine is one of up to three item lines shown in list views.
type PreviewLine struct {
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// ListItem is an order enriched for human-facing listings.
type ListItem struct {
	ID             uuid.UUID     `json:"id"`
	TableID        uuid.UUID     `json:"table_id"`
	TableName      string        `json:"table_name,omitempty"`
	AreaID         uuid.UUID     `json:"area_id"`
	AreaName       string        `json:"area_name,omitempty"`
	Status         string        `json:"status"`
	BillerUsername string        `json:"biller_username,omitempty"`
	ItemsCount     int           `json:"items_count"`
	Preview        []PreviewLine `json:"preview"`
	GrandTotal     float64       `json:"grand_total"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Projector builds read-side views straight from the order store; it
// never routes through the engine. Every method degrades persistence
// failures to empty results: reporting must not take down the read path.
type Projector struct {
	orders OrderRepo
	tables TableDirectory
	areas  AreaDirectory
	users  UserDirectory
	clock  Clock
	logger apt.Logger
}

type ProjectorDeps struct {
	Orders OrderRepo
	Tables TableDirectory
	Areas  AreaDirectory
	Users  UserDirectory
	Clock  Clock
}

func NewProjector(deps ProjectorDeps, logger apt.Logger) *Projector {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = ISTClock{}
	}
	return &Projector{
		orders: deps.Orders,
		tables: deps.Tables,
		areas:  deps.Areas,
		users:  deps.Users,
		clock:  clock,
		logger: logger,
	}
}

// List returns one page of enriched orders plus the total count before
// pagination. Pagination is 1-indexed.
func (p *Projector) List(ctx context.Context, params ListParams) ([]ListItem, int64, error) {
	statuses, ok := scopeStatuses(params.Scope)
	if !ok {
		return nil, 0, InvalidInputError("scope must be one of running, closed, cancelled, all")
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	now := p.clock.Now()
	from := ParseDateIST(params.From)
	if from.IsZero() {
		from = TodayStartIST(now)
	}
	to := ParseDateIST(params.To)
	if to.IsZero() {
		to = TodayEndIST(now)
	} else if params.To != "" && !containsTime(params.To) {
		// A bare to-date means the whole of that day.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	if from.After(to) {
		return nil, 0, InvalidInputError("from date must not be after to date")
	}

	// Mongo stores instants; convert the IST bounds at the query boundary.
	fromUTC := from.UTC()
	toUTC := to.UTC()

	q := Query{
		Statuses:  statuses,
		From:      &fromUTC,
		To:        &toUTC,
		CreatedBy: params.BillerID,
		Page:      page,
		PageSize:  pageSize,
	}

	if params.Text != "" {
		if id, err := uuid.Parse(params.Text); err == nil {
			q.OrderID = &id
		}
		tableIDs, err := p.tables.FindIDsByNameContains(ctx, params.Text)
		if err != nil {
			p.logger.Error("cannot match tables by name", "error", err, "text", params.Text)
		}
		q.TableIDs = tableIDs
		q.OrByTable = true
		if q.OrderID == nil && len(q.TableIDs) == 0 {
			// Nothing can match; skip the store round trip.
			return []ListItem{}, 0, nil
		}
	}

	orders, total, err := p.orders.FindByQuery(ctx, q)
	if err != nil {
		p.logger.Error("cannot list orders", "error", err)
		return []ListItem{}, 0, nil
	}

	names := newNameCache(p.tables, p.areas, p.users)
	items := make([]ListItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, p.enrich(ctx, o, names))
	}
	return items, total, nil
}

func (p *Projector) enrich(ctx context.Context, o *Order, names *nameCache) ListItem {
	item := ListItem{
		ID:         o.ID,
		TableID:    o.TableID,
		AreaID:     o.AreaID,
		Status:     o.Status,
		ItemsCount: o.ItemsQty(),
		GrandTotal: o.Totals.GrandTotal,
		CreatedAt:  o.CreatedAt,
	}
	item.TableName = names.tableName(ctx, o.TableID)
	item.AreaName = names.areaName(ctx, o.AreaID)
	item.BillerUsername = names.username(ctx, o.CreatedBy)

	n := len(o.Items)
	if n > previewLines {
		n = previewLines
	}
	item.Preview = make([]PreviewLine, 0, n)
	for i := 0; i < n; i++ {
		item.Preview = append(item.Preview, PreviewLine{
			Name:  o.Items[i].NameSnapshot,
			Qty:   o.Items[i].Qty,
			Price: o.Items[i].PriceSnapshot,
		})
	}
	return item
}

func containsTime(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] == ':' {
			return true
		}
	}
	return false
}

// nameCache memoizes table/area/user lookups within one request so a
// page of orders on the same table resolves each name once.
type nameCache struct {
	tables TableDirectory
	areas  AreaDirectory
	users  UserDirectory

	tableNames map[uuid.UUID]string
	areaNames  map[uuid.UUID]string
	usernames  map[uuid.UUID]string
}

func newNameCache(tables TableDirectory, areas AreaDirectory, users UserDirectory) *nameCache {
	return &nameCache{
		tables:     tables,
		areas:      areas,
		users:      users,
		tableNames: make(map[uuid.UUID]string),
		areaNames:  make(map[uuid.UUID]string),
		usernames:  make(map[uuid.UUID]string),
	}
}

func (c *nameCache) tableName(ctx context.Context, id uuid.UUID) string {
	if name, ok := c.tableNames[id]; ok {
		return name
	}
	name := ""
	if table, err := c.tables.Get(ctx, id); err == nil && table != nil {
		name = table.Name
	}
	c.tableNames[id] = name
	return name
}

func (c *nameCache) areaName(ctx context.Context, id uuid.UUID) string {
	if name, ok := c.areaNames[id]; ok {
		return name
	}
	name := ""
	if area, err := c.areas.Get(ctx, id); err == nil && area != nil {
		name = area.Name
	}
	c.areaNames[id] = name
	return name
}

func (c *nameCache) username(ctx context.Context, id uuid.UUID) string {
	if name, ok := c.usernames[id]; ok {
		return name
	}
	name := ""
	if user, err := c.users.Get(ctx, id); err == nil && user != nil {
		name = user.Username
	}
	c.usernames[id] = name
	return name
}
