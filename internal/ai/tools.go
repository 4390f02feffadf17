package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-autoparts-pos/internal/apperr"

	"github.com/google/generative-ai-go/genai"
)

const dateLayout = "2006-01-02"

var toolDeclarations = []*genai.FunctionDeclaration{
	{
		Name:        "check_inventory",
		Description: "Get the parts catalog. Use this to find ANY product detail like ID, SKU, name, brand, price, cost or stock.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {Type: genai.TypeString, Description: "Optional category, e.g. BRAKES"},
			},
		},
	},
	{
		Name:        "get_sales_report",
		Description: "Get revenue, number of sales and refunded returns for a date range.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
				"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
			},
			Required: []string{"start_date", "end_date"},
		},
	},
	{
		Name:        "count_pending_returns",
		Description: "Count the returns waiting for an administrator to authorize them.",
	},
	{
		Name:        "lookup_sale_for_return",
		Description: "Show a sale ticket with its previous returns and how many units of each line can still be returned.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sale_id": {Type: genai.TypeInteger, Description: "Ticket (sale) number"},
			},
			Required: []string{"sale_id"},
		},
	},
}

type inventoryRow struct {
	ID       uint   `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
	Price    string `json:"price"`
	Cost     string `json:"cost"`
}

type returnableRow struct {
	SaleItemID uint   `json:"sale_item_id"`
	Product    string `json:"product"`
	Sold       int    `json:"sold"`
	Returned   int    `json:"returned"`
	Returnable int    `json:"returnable"`
	UnitPrice  string `json:"unit_price"`
}

// executeTool runs one function call. The result only holds JSON values
// (maps, slices, strings, float64, bools) so it converts to a protobuf
// Struct.
func (a *Agent) executeTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	result, err := a.runTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", name, err)
	}
	return plain, nil
}

func (a *Agent) runTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "check_inventory":
		category, _ := args["category"].(string)
		products, err := a.Inventory.List(ctx, category)
		if err != nil {
			return nil, err
		}
		rows := make([]inventoryRow, 0, len(products))
		for _, p := range products {
			rows = append(rows, inventoryRow{
				ID:       p.ID,
				SKU:      p.SKU,
				Name:     p.Name,
				Brand:    p.Brand,
				Category: p.Category,
				Stock:    p.StockQuantity,
				Price:    p.Price.StringFixed(2),
				Cost:     p.CostPrice.StringFixed(2),
			})
		}
		return map[string]any{"inventory": rows}, nil

	case "get_sales_report":
		start, err := dateArg(args, "start_date")
		if err != nil {
			return nil, err
		}
		end, err := dateArg(args, "end_date")
		if err != nil {
			return nil, err
		}
		end = end.Add(24*time.Hour - time.Second)

		report, err := a.Reports.SalesReport(ctx, start, end)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"revenue":          report.TotalRevenue.StringFixed(2),
			"sales_count":      report.TotalOrders,
			"returns_refunded": report.ReturnsRefunded.StringFixed(2),
			"returns_count":    report.ReturnsCount,
			"net_revenue":      report.NetRevenue.StringFixed(2),
		}, nil

	case "count_pending_returns":
		n, err := a.Returns.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pending_returns": n}, nil

	case "lookup_sale_for_return":
		// JSON numbers arrive as float64.
		id, ok := args["sale_id"].(float64)
		if !ok || id < 1 {
			return nil, apperr.Validation("sale_id must be a positive number")
		}
		found, err := a.Returns.FindSaleForReturn(ctx, uint(id))
		if err != nil {
			return nil, err
		}
		lines := make([]returnableRow, 0, len(found.Lines))
		for _, l := range found.Lines {
			lines = append(lines, returnableRow{
				SaleItemID: l.Item.ID,
				Product:    l.Item.Product.Name,
				Sold:       l.Item.Quantity,
				Returned:   l.Returned,
				Returnable: l.Returnable,
				UnitPrice:  l.Item.PriceAtSale.StringFixed(2),
			})
		}
		return map[string]any{
			"sale_id":          found.Sale.ID,
			"status":           found.Sale.Status,
			"total":            found.Sale.Total.StringFixed(2),
			"previous_returns": len(found.PreviousReturns),
			"lines":            lines,
		}, nil

	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func dateArg(args map[string]any, key string) (time.Time, error) {
	s, _ := args[key].(string)
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, apperr.Validation(key + " must be in YYYY-MM-DD format")
	}
	return t, nil
}
