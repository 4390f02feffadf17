package models

import "time"

// Page bounds for list endpoints
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects one page of a list, 1-based.
type Page struct {
	Page     int
	PageSize int
}

// Normalize clamps the page into the allowed range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// ReturnFilter narrows a return listing. Zero fields are ignored.
type ReturnFilter struct {
	Status     string
	SaleID     uint
	CustomerID uint
	From       *time.Time
	To         *time.Time
	Page
}

// AdjustmentFilter narrows an adjustment listing. Zero fields are ignored.
type AdjustmentFilter struct {
	Status    string
	ProductID uint
	Page
}
