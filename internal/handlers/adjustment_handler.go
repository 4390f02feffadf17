package handlers

import (
	"net/http"

	"go-autoparts-pos/internal/adjustments"
	"go-autoparts-pos/internal/models"

	"github.com/gin-gonic/gin"
)

type AdjustmentRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=increase decrease"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Reason    string `json:"reason" binding:"required"`
	Comments  string `json:"comments"`
}

type AdjustmentListQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=pending applied rejected"`
	ProductID uint   `form:"product_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

func (h *Handler) CreateAdjustment(c *gin.Context) {
	var req AdjustmentRequest
	if !bindJSON(c, &req) {
		return
	}
	adj, err := h.Adjustments.Create(c.Request.Context(), adjustments.CreateInput{
		ProductID: req.ProductID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Comments:  req.Comments,
	}, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, adj)
}

func (h *Handler) ListAdjustments(c *gin.Context) {
	var q AdjustmentListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, err)
		return
	}
	page := models.Page{Page: q.Page, PageSize: q.PageSize}.Normalize()
	list, total, err := h.Adjustments.List(c.Request.Context(), models.AdjustmentFilter{
		Status:    q.Status,
		ProductID: q.ProductID,
		Page:      page,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse{Data: list, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func (h *Handler) GetAdjustment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	adj, err := h.Adjustments.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}

func (h *Handler) AdjustmentHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.Adjustments.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.auditTrail(c, "adjustment", id)
}

func (h *Handler) PendingAdjustments(c *gin.Context) {
	n, err := h.Adjustments.PendingCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) AuthorizeAdjustment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	adj, err := h.Adjustments.Authorize(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}

func (h *Handler) RejectAdjustment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	adj, err := h.Adjustments.Reject(c.Request.Context(), id, actor(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}
