package database

import (
	"context"
	"sort"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportRepository runs the read-only analytics queries.
type ReportRepository struct {
	db *gorm.DB
}

// SalesReportResult summarises a period. NetRevenue is revenue minus
// completed return refunds.
type SalesReportResult struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalOrders     int64           `json:"total_orders"`
	ReturnsRefunded decimal.Decimal `json:"returns_refunded"`
	ReturnsCount    int64           `json:"returns_count"`
	NetRevenue      decimal.Decimal `json:"net_revenue"`
}

type sumRow struct {
	Total decimal.Decimal
	Count int64
}

// SalesReport calculates sales and refunds within [start, end].
func (r *ReportRepository) SalesReport(ctx context.Context, start, end time.Time) (*SalesReportResult, error) {
	db := conn(ctx, r.db)

	// COALESCE gives 0 instead of NULL when nothing matched.
	var sales sumRow
	err := db.Model(&models.Sale{}).
		Select("COALESCE(SUM(total), 0) AS total, COUNT(*) AS count").
		Where("status = ? AND sale_time BETWEEN ? AND ?", models.SaleStatusCompleted, start, end).
		Scan(&sales).Error
	if err != nil {
		return nil, apperr.Internal("failed to calculate revenue", err)
	}

	var refunds sumRow
	err = db.Model(&models.Return{}).
		Select("COALESCE(SUM(total), 0) AS total, COUNT(*) AS count").
		Where("status = ? AND created_at BETWEEN ? AND ?", models.ReturnStatusCompleted, start, end).
		Scan(&refunds).Error
	if err != nil {
		return nil, apperr.Internal("failed to calculate refunds", err)
	}

	return &SalesReportResult{
		TotalRevenue:    sales.Total,
		TotalOrders:     sales.Count,
		ReturnsRefunded: refunds.Total,
		ReturnsCount:    refunds.Count,
		NetRevenue:      sales.Total.Sub(refunds.Total),
	}, nil
}

// TopSeller is one row of the best sellers ranking
type TopSeller struct {
	ProductName string          `json:"product_name"`
	Sold        int             `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// TopSelling ranks products by units sold in completed sales.
func (r *ReportRepository) TopSelling(ctx context.Context, limit int) ([]TopSeller, error) {
	var rows []TopSeller
	err := conn(ctx, r.db).Table("sale_items").
		Select("products.name AS product_name, SUM(sale_items.quantity) AS sold, SUM(sale_items.subtotal) AS revenue").
		Joins("JOIN products ON sale_items.product_id = products.id").
		Joins("JOIN sales ON sale_items.sale_id = sales.id").
		Where("sales.status = ?", models.SaleStatusCompleted).
		Group("products.name").
		Order("sold desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("failed to fetch top selling items", err)
	}
	return rows, nil
}

// ReturnBreakdown is one group of the returns report
type ReturnBreakdown struct {
	Label string          `json:"label"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ReturnsReport holds return totals grouped by reason and by status
type ReturnsReport struct {
	ByReason []ReturnBreakdown `json:"by_reason"`
	ByStatus []ReturnBreakdown `json:"by_status"`
}

// ReturnsReport groups returns created within [start, end].
func (r *ReportRepository) ReturnsReport(ctx context.Context, start, end time.Time) (*ReturnsReport, error) {
	var report ReturnsReport
	for column, dest := range map[string]*[]ReturnBreakdown{"reason": &report.ByReason, "status": &report.ByStatus} {
		err := conn(ctx, r.db).Model(&models.Return{}).
			Select(column+" AS label, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
			Where("created_at BETWEEN ? AND ?", start, end).
			Group(column).
			Order(column).
			Scan(dest).Error
		if err != nil {
			return nil, apperr.Internal("failed to build returns report", err)
		}
	}
	return &report, nil
}

// ValuationItem represents a single row of the valuation table
type ValuationItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// CategoryGroup is one category table (e.g. "BRAKES")
type CategoryGroup struct {
	CategoryName string          `json:"category_name"`
	Items        []ValuationItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// ValuationResponse is the whole stock valuation
type ValuationResponse struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// StockValuation values the physical inventory at cost, grouped by category.
func (r *ReportRepository) StockValuation(ctx context.Context) (*ValuationResponse, error) {
	var products []models.Product
	if err := conn(ctx, r.db).Order("name").Find(&products).Error; err != nil {
		return nil, apperr.Internal("failed to fetch inventory", err)
	}

	grouped := make(map[string]*CategoryGroup)
	resp := &ValuationResponse{Categories: []CategoryGroup{}}

	for _, p := range products {
		category := p.Category
		if category == "" {
			category = "Uncategorized"
		}
		group, ok := grouped[category]
		if !ok {
			group = &CategoryGroup{CategoryName: category, Items: []ValuationItem{}}
			grouped[category] = group
		}

		itemTotal := p.CostPrice.Mul(decimal.NewFromInt(int64(p.StockQuantity)))
		group.Items = append(group.Items, ValuationItem{
			Name:      p.Name,
			Quantity:  p.StockQuantity,
			CostPrice: p.CostPrice,
			TotalCost: itemTotal,
		})
		group.Subtotal = group.Subtotal.Add(itemTotal)
		resp.GrandTotal = resp.GrandTotal.Add(itemTotal)
	}

	for _, group := range grouped {
		resp.Categories = append(resp.Categories, *group)
	}
	sort.Slice(resp.Categories, func(i, j int) bool {
		return resp.Categories[i].CategoryName < resp.Categories[j].CategoryName
	})
	return resp, nil
}
