// Package handlers exposes the POS workflows over HTTP.
package handlers

import (
	"context"
	"net/http"

	"go-autoparts-pos/internal/adjustments"
	"go-autoparts-pos/internal/auth"
	"go-autoparts-pos/internal/config"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/logger"
	"go-autoparts-pos/internal/middleware"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"
	"go-autoparts-pos/internal/sales"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Assistant answers free-form questions from the back office.
type Assistant interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Store       *database.Store
	Returns     *returns.Service
	Adjustments *adjustments.Service
	Sales       *sales.Service
	Tokens      *auth.TokenManager
	Assistant   Assistant
	App         config.AppConfig
	Logger      *zap.Logger
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerJSONFieldNames()
	return &Handler{Deps: deps}
}

// RegisterRoutes mounts the public routes, the staff API and the admin API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/login", h.Login)

	// Only opens when explicitly allowed in the config.
	if h.App.AllowRegistration {
		r.POST("/register", h.Register)
		h.Logger.Warn("Registration route is OPEN, disable it in production")
	} else {
		h.Logger.Info("Registration route is disabled")
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(h.Tokens))
	{
		api.GET("/products", h.GetProducts)
		api.GET("/products/scan/:sku", h.ScanProduct)
		api.POST("/checkout", h.Checkout)

		api.POST("/returns", h.CreateReturn)
		api.GET("/returns", h.ListReturns)
		api.GET("/returns/pending/count", h.PendingReturns)
		api.GET("/returns/search-sale", h.SearchSale)
		api.GET("/returns/:id", h.GetReturn)
		api.POST("/returns/:id/cancel", h.CancelReturn)

		api.POST("/adjustments", h.CreateAdjustment)
		api.GET("/adjustments", h.ListAdjustments)
		api.GET("/adjustments/pending/count", h.PendingAdjustments)
		api.GET("/adjustments/:id", h.GetAdjustment)

		admin := api.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/returns/:id/authorize", h.AuthorizeReturn)
			admin.GET("/returns/:id/history", h.ReturnHistory)
			admin.POST("/adjustments/:id/authorize", h.AuthorizeAdjustment)
			admin.POST("/adjustments/:id/reject", h.RejectAdjustment)
			admin.GET("/adjustments/:id/history", h.AdjustmentHistory)

			admin.POST("/products", h.AddProduct)
			admin.PUT("/products/:id", h.UpdateProduct)
			admin.DELETE("/products/:id", h.DeleteProduct)
			admin.POST("/upload", h.UploadImage)
			admin.POST("/sales/:id/cancel", h.CancelSale)

			admin.GET("/reports", h.GetSalesReport)
			admin.GET("/reports/valuation", h.GetStockValuation)
			admin.GET("/reports/returns", h.GetReturnsReport)

			admin.POST("/ask", h.AskAI)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		logger.FromGin(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}

func (h *Handler) auditTrail(c *gin.Context, entity string, id uint) {
	logs, err := h.Store.Audit.ForEntity(c.Request.Context(), entity, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}
