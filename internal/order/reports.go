package order

import (
	"context"

	"github.com/google/uuid"
)

// Summary is the admin aggregate for one day: payment-based sales total,
// running-table count, and a payment-method breakdown.
type Summary struct {
	TotalSales           float64            `json:"total_sales"`
	RunningTablesCount   int64              `json:"running_tables_count"`
	PaymentModeBreakdown map[string]float64 `json:"payment_mode_breakdown"`
}

// RunningTable is one currently running order enriched for display.
type RunningTable struct {
	OrderID        uuid.UUID `json:"order_id"`
	TableID        uuid.UUID `json:"table_id"`
	TableName      string    `json:"table_name,omitempty"`
	AreaID         uuid.UUID `json:"area_id"`
	AreaName       string    `json:"area_name,omitempty"`
	BillerID       uuid.UUID `json:"biller_id"`
	BillerUsername string    `json:"biller_username,omitempty"`
	CurrentTotal   float64   `json:"current_total"`
	Status         string    `json:"status"`
}

// BillerPerformanceRow is per-biller sales for one day. Installments on
// one order count as a single order.
type BillerPerformanceRow struct {
	BillerID       uuid.UUID `json:"biller_id"`
	BillerUsername string    `json:"biller_username,omitempty"`
	TotalSales     float64   `json:"total_sales"`
	OrdersCount    int       `json:"orders_count"`
}

// ReportBundle groups the three aggregates for one report_username tag.
type ReportBundle struct {
	Username          string                 `json:"username"`
	Summary           Summary                `json:"summary"`
	RunningTables     []RunningTable         `json:"running_tables"`
	BillerPerformance []BillerPerformanceRow `json:"biller_performance"`
}

func emptySummary() Summary {
	return Summary{PaymentModeBreakdown: map[string]float64{}}
}

// AdminSummary aggregates payments whose paid_at falls within the UTC
// day window for date ("today" or unparseable values fall back to today).
// Payments are never retracted, so a cancelled order's partial payments
// still contribute to the day they were taken.
func (p *Projector) AdminSummary(ctx context.Context, date string) Summary {
	return p.summary(ctx, date, nil)
}

func (p *Projector) summary(ctx context.Context, date string, billerIDs []uuid.UUID) Summary {
	s := emptySummary()

	from, to := DayWindowUTC(date, p.clock.Now())
	rows, err := p.orders.SumPaymentsByMethod(ctx, from, to, billerIDs)
	if err != nil {
		p.logger.Error("cannot aggregate payments", "error", err)
	} else {
		for _, row := range rows {
			s.PaymentModeBreakdown[row.Method] = round2(row.Total)
			s.TotalSales += row.Total
		}
		s.TotalSales = round2(s.TotalSales)
	}

	count, err := p.orders.CountByStatuses(ctx, RunningStatuses, billerIDs)
	if err != nil {
		p.logger.Error("cannot count running tables", "error", err)
		count = 0
	}
	s.RunningTablesCount = count

	return s
}

// RunningTables returns one enriched row per running order.
func (p *Projector) RunningTables(ctx context.Context) []RunningTable {
	return p.runningTables(ctx, nil)
}

func (p *Projector) runningTables(ctx context.Context, billerIDs []uuid.UUID) []RunningTable {
	orders, err := p.orders.FindByStatuses(ctx, RunningStatuses, billerIDs)
	if err != nil {
		p.logger.Error("cannot load running orders", "error", err)
		return []RunningTable{}
	}

	names := newNameCache(p.tables, p.areas, p.users)
	rows := make([]RunningTable, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, RunningTable{
			OrderID:        o.ID,
			TableID:        o.TableID,
			TableName:      names.tableName(ctx, o.TableID),
			AreaID:         o.AreaID,
			AreaName:       names.areaName(ctx, o.AreaID),
			BillerID:       o.CreatedBy,
			BillerUsername: names.username(ctx, o.CreatedBy),
			CurrentTotal:   o.Totals.GrandTotal,
			Status:         o.Status,
		})
	}
	return rows
}

// BillerPerformance returns per-biller sales and order count for the
// date window, grouping payments per (biller, order) before summing per
// biller so installments never double count an order.
func (p *Projector) BillerPerformance(ctx context.Context, date string) []BillerPerformanceRow {
	return p.billerPerformance(ctx, date, nil)
}

func (p *Projector) billerPerformance(ctx context.Context, date string, billerIDs []uuid.UUID) []BillerPerformanceRow {
	from, to := DayWindowUTC(date, p.clock.Now())
	rows, err := p.orders.BillerPerformance(ctx, from, to, billerIDs)
	if err != nil {
		p.logger.Error("cannot aggregate biller performance", "error", err)
		return []BillerPerformanceRow{}
	}

	names := newNameCache(p.tables, p.areas, p.users)
	out := make([]BillerPerformanceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, BillerPerformanceRow{
			BillerID:       row.BillerID,
			BillerUsername: names.username(ctx, row.BillerID),
			TotalSales:     round2(row.TotalSales),
			OrdersCount:    row.OrdersCount,
		})
	}
	return out
}

// ReportsByUsername scopes all three aggregates to the billers tagged
// with the given report_username. An unknown tag yields zeroed
// aggregates rather than an error.
func (p *Projector) ReportsByUsername(ctx context.Context, tag, date string) ReportBundle {
	bundle := ReportBundle{
		Username:          tag,
		Summary:           emptySummary(),
		RunningTables:     []RunningTable{},
		BillerPerformance: []BillerPerformanceRow{},
	}

	billerIDs, err := p.users.IDsByReportTag(ctx, tag)
	if err != nil {
		p.logger.Error("cannot resolve report tag", "error", err, "tag", tag)
		return bundle
	}
	if len(billerIDs) == 0 {
		return bundle
	}

	bundle.Summary = p.summary(ctx, date, billerIDs)
	bundle.RunningTables = p.runningTables(ctx, billerIDs)
	bundle.BillerPerformance = p.billerPerformance(ctx, date, billerIDs)
	return bundle
}
