package handlers

import (
	"net/http"
	"strconv"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/gin-gonic/gin"
)

type ReturnLineRequest struct {
	SaleItemID        uint  `json:"sale_item_id" binding:"required"`
	Quantity          int   `json:"quantity" binding:"required,gt=0"`
	ExchangeProductID *uint `json:"exchange_product_id"`
	ExchangeQuantity  int   `json:"exchange_quantity" binding:"gte=0"`
}

type ReturnRequest struct {
	SaleID       uint                `json:"sale_id" binding:"required"`
	CustomerID   *uint               `json:"customer_id"`
	Lines        []ReturnLineRequest `json:"lines" binding:"required,min=1,dive"`
	Reason       string              `json:"reason" binding:"required,oneof=defective wrong_item other"`
	ReasonDetail string              `json:"reason_detail"`
	RefundMethod string              `json:"refund_method" binding:"required,oneof=cash card store_credit product_exchange"`
	Comments     string              `json:"comments"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ReturnListQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=pending completed cancelled"`
	SaleID     uint   `form:"sale_id"`
	CustomerID uint   `form:"customer_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// CreateReturn files a return against a sale. Small returns complete on
// the spot, large ones wait for an admin. An admin filing a return
// approves it at the same time.
func (h *Handler) CreateReturn(c *gin.Context) {
	var req ReturnRequest
	if !bindJSON(c, &req) {
		return
	}
	caller := actor(c)

	in := returns.RequestInput{
		SaleID:       req.SaleID,
		CustomerID:   req.CustomerID,
		Reason:       req.Reason,
		ReasonDetail: req.ReasonDetail,
		RefundMethod: req.RefundMethod,
		Comments:     req.Comments,
		Requester:    caller,
		Lines:        make([]returns.LineInput, len(req.Lines)),
	}
	if caller.IsAdmin() {
		in.Approver = &caller
	}
	for i, l := range req.Lines {
		in.Lines[i] = returns.LineInput{
			SaleItemID:        l.SaleItemID,
			Quantity:          l.Quantity,
			ExchangeProductID: l.ExchangeProductID,
			ExchangeQuantity:  l.ExchangeQuantity,
		}
	}

	ret, err := h.Returns.RequestReturn(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func (h *Handler) ListReturns(c *gin.Context) {
	var q ReturnListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, err)
		return
	}
	from, err := parseDate(q.From, "from", false)
	if err != nil {
		respondError(c, err)
		return
	}
	to, err := parseDate(q.To, "to", true)
	if err != nil {
		respondError(c, err)
		return
	}

	page := models.Page{Page: q.Page, PageSize: q.PageSize}.Normalize()
	list, total, err := h.Returns.List(c.Request.Context(), models.ReturnFilter{
		Status:     q.Status,
		SaleID:     q.SaleID,
		CustomerID: q.CustomerID,
		From:       from,
		To:         to,
		Page:       page,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse{Data: list, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func (h *Handler) GetReturn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ret, err := h.Returns.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

// ReturnHistory lists the audit trail of one return.
func (h *Handler) ReturnHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Returns.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.auditTrail(c, "return", id)
}

func (h *Handler) PendingReturns(c *gin.Context) {
	n, err := h.Returns.PendingCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// SearchSale loads a ticket for the returns desk: the sale, its earlier
// returns and what is left to return per line.
func (h *Handler) SearchSale(c *gin.Context) {
	ticket, err := strconv.ParseUint(c.Query("ticket"), 10, 64)
	if err != nil || ticket == 0 {
		respondError(c, apperr.Validation("invalid ticket", apperr.Field("ticket", "must be a sale number")))
		return
	}
	found, err := h.Returns.FindSaleForReturn(c.Request.Context(), uint(ticket))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *Handler) AuthorizeReturn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ret, err := h.Returns.Authorize(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) CancelReturn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	ret, err := h.Returns.Cancel(c.Request.Context(), id, actor(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}
