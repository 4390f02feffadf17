package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles a User can hold. Only admins may authorize returns and adjustments.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// User - The person operating the register
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"size:20" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Product - A part on the shelf. StockQuantity only moves through the
// inventory ledger.
type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SKU           string          `gorm:"uniqueIndex;size:64" json:"sku"`
	Name          string          `gorm:"size:200" json:"name"`
	Brand         string          `gorm:"size:100" json:"brand"`
	Category      string          `gorm:"size:100;index" json:"category"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost_price"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url"`
}

// Sale statuses
const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCancelled = "cancelled"
)

// Sale - The transaction header. Immutable once completed, except Status.
type Sale struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `json:"user_id"`
	CustomerID *uint           `gorm:"index" json:"customer_id,omitempty"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	Tax        decimal.Decimal `gorm:"type:decimal(12,2)" json:"tax"`
	Total      decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	Status     string          `gorm:"size:20;index" json:"status"`
	SaleTime   time.Time       `gorm:"index" json:"sale_time"`
	Items      []SaleItem      `gorm:"foreignKey:SaleID" json:"items,omitempty"`
}

// SaleItem - One line of a sale with the price snapshot at checkout
type SaleItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SaleID      uint            `gorm:"index" json:"sale_id"`
	ProductID   uint            `json:"product_id"`
	Product     Product         `json:"product"`
	Quantity    int             `json:"quantity"`
	PriceAtSale decimal.Decimal `gorm:"type:decimal(12,2)" json:"price_at_sale"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
}

// Return statuses. Approval and completion are the same transition.
const (
	ReturnStatusPending   = "pending"
	ReturnStatusCompleted = "completed"
	ReturnStatusCancelled = "cancelled"
)

// Return reasons
const (
	ReturnReasonDefective = "defective"
	ReturnReasonWrongItem = "wrong_item"
	ReturnReasonOther     = "other"
)

// Refund methods
const (
	RefundCash            = "cash"
	RefundCard            = "card"
	RefundStoreCredit     = "store_credit"
	RefundProductExchange = "product_exchange"
)

// Return - A request to give back goods from a Sale. Never deleted.
type Return struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	SaleID       uint            `gorm:"index" json:"sale_id"`
	CustomerID   *uint           `gorm:"index" json:"customer_id,omitempty"`
	RequestedBy  uint            `json:"requested_by"`
	Reason       string          `gorm:"size:20" json:"reason"`
	ReasonDetail string          `gorm:"type:text" json:"reason_detail"`
	RefundMethod string          `gorm:"size:20" json:"refund_method"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	Tax          decimal.Decimal `gorm:"type:decimal(12,2)" json:"tax"`
	Total        decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	Status       string          `gorm:"size:20;index" json:"status"`
	ApprovedBy   *uint           `json:"approved_by,omitempty"`
	Comments     string          `gorm:"type:text" json:"comments"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []ReturnItem    `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// ReturnItem - One returned sale line, optionally exchanged for another part
type ReturnItem struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ReturnID          uint            `gorm:"index" json:"return_id"`
	SaleItemID        uint            `gorm:"index" json:"sale_item_id"`
	ProductID         uint            `json:"product_id"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	ExchangeProductID *uint           `json:"exchange_product_id,omitempty"`
	ExchangeQuantity  int             `json:"exchange_quantity,omitempty"`
	ExchangeUnitPrice decimal.Decimal `gorm:"type:decimal(12,2)" json:"exchange_unit_price"`
	ExchangeSubtotal  decimal.Decimal `gorm:"type:decimal(12,2)" json:"exchange_subtotal"`
	PriceDifference   decimal.Decimal `gorm:"type:decimal(12,2)" json:"price_difference"`
}

// IsExchange reports whether the line swaps the part for another one.
func (i ReturnItem) IsExchange() bool {
	return i.ExchangeProductID != nil && i.ExchangeQuantity > 0
}

// Adjustment types and statuses
const (
	AdjustmentIncrease = "increase"
	AdjustmentDecrease = "decrease"

	AdjustmentStatusPending  = "pending"
	AdjustmentStatusApplied  = "applied"
	AdjustmentStatusRejected = "rejected"
)

// InventoryAdjustment - A manual stock correction (count error, damage, shrinkage)
type InventoryAdjustment struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ProductID   uint            `gorm:"index" json:"product_id"`
	Type        string          `gorm:"size:20" json:"type"`
	Quantity    int             `json:"quantity"`
	Reason      string          `gorm:"type:text" json:"reason"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_cost"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_value"`
	Status      string          `gorm:"size:20;index" json:"status"`
	RequestedBy uint            `json:"requested_by"`
	ApprovedBy  *uint           `json:"approved_by,omitempty"`
	Comments    string          `gorm:"type:text" json:"comments"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AuditLog - Who decided what, written in the same transaction as the decision
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Action    string    `gorm:"size:50" json:"action"`
	Entity    string    `gorm:"size:50" json:"entity"`
	EntityID  uint      `json:"entity_id"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every model for auto-migration.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Sale{},
		&SaleItem{},
		&Return{},
		&ReturnItem{},
		&InventoryAdjustment{},
		&AuditLog{},
	}
}
