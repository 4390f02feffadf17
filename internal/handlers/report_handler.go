package handlers

import (
	"net/http"
	"time"

	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultReportDays = 30
	topSellingLimit   = 5
	recentSalesLimit  = 10
)

// ReportData is the dashboard payload.
type ReportData struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	*database.SalesReportResult
	TopSelling  []database.TopSeller `json:"top_selling"`
	RecentSales []models.Sale        `json:"recent_sales"`
}

// reportRange reads ?from=&to=, defaulting to the last 30 days.
func reportRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := parseDate(c.Query("from"), "from", false)
	if err != nil {
		respondError(c, err)
		return time.Time{}, time.Time{}, false
	}
	to, err := parseDate(c.Query("to"), "to", true)
	if err != nil {
		respondError(c, err)
		return time.Time{}, time.Time{}, false
	}

	end := time.Now()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -defaultReportDays)
	if from != nil {
		start = *from
	}
	return start, end, true
}

// GetSalesReport answers GET /api/reports: revenue net of refunds, the
// best sellers and the latest tickets.
func (h *Handler) GetSalesReport(c *gin.Context) {
	start, end, ok := reportRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	summary, err := h.Store.Reports.SalesReport(ctx, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	top, err := h.Store.Reports.TopSelling(ctx, topSellingLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	recent, err := h.Store.Sales.Recent(ctx, recentSalesLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReportData{
		From:              start,
		To:                end,
		SalesReportResult: summary,
		TopSelling:        top,
		RecentSales:       recent,
	})
}

// GetStockValuation values the shelf at cost, grouped by category.
func (h *Handler) GetStockValuation(c *gin.Context) {
	val, err := h.Store.Reports.StockValuation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, val)
}

func (h *Handler) GetReturnsReport(c *gin.Context) {
	start, end, ok := reportRange(c)
	if !ok {
		return
	}
	report, err := h.Store.Reports.ReturnsReport(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": start, "to": end, "by_reason": report.ByReason, "by_status": report.ByStatus})
}
