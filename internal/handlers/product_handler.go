package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ProductRequest struct {
	SKU           string          `json:"sku" binding:"required,max=64"`
	Name          string          `json:"name" binding:"required,max=200"`
	Brand         string          `json:"brand"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity int             `json:"stock_quantity" binding:"gte=0"`
	ImageURL      string          `json:"image_url"`
}

// ProductUpdateRequest is a partial update. Stock is not part of it,
// it only moves through sales, returns and adjustments.
type ProductUpdateRequest struct {
	SKU       *string          `json:"sku" binding:"omitempty,max=64"`
	Name      *string          `json:"name" binding:"omitempty,max=200"`
	Brand     *string          `json:"brand"`
	Category  *string          `json:"category"`
	Price     *decimal.Decimal `json:"price"`
	CostPrice *decimal.Decimal `json:"cost_price"`
	ImageURL  *string          `json:"image_url"`
}

func (r ProductUpdateRequest) fields() map[string]any {
	out := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			out[col] = *v
		}
	}
	set("sku", r.SKU)
	set("name", r.Name)
	set("brand", r.Brand)
	set("category", r.Category)
	set("image_url", r.ImageURL)
	if r.Price != nil {
		out["price"] = *r.Price
	}
	if r.CostPrice != nil {
		out["cost_price"] = *r.CostPrice
	}
	return out
}

func checkPrices(prices map[string]*decimal.Decimal) error {
	var fields []apperr.FieldError
	for name, p := range prices {
		if p != nil && p.IsNegative() {
			fields = append(fields, apperr.Field(name, "cannot be negative"))
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid product", fields...)
	}
	return nil
}

// GetProducts lists the catalog, optionally filtered by ?category=.
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.Store.Products.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// ScanProduct looks a part up by the barcode printed on its box.
func (h *Handler) ScanProduct(c *gin.Context) {
	product, err := h.Store.Products.FindBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) AddProduct(c *gin.Context) {
	var req ProductRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := checkPrices(map[string]*decimal.Decimal{"price": &req.Price, "cost_price": &req.CostPrice}); err != nil {
		respondError(c, err)
		return
	}

	product := models.Product{
		SKU:           strings.TrimSpace(req.SKU),
		Name:          strings.TrimSpace(req.Name),
		Brand:         req.Brand,
		Category:      req.Category,
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		StockQuantity: req.StockQuantity,
		ImageURL:      req.ImageURL,
	}
	if err := h.Store.Products.Create(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProductUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := checkPrices(map[string]*decimal.Decimal{"price": req.Price, "cost_price": req.CostPrice}); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	// Surface a 404 even when the body has nothing to change.
	if _, err := h.Store.Products.FindByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	fields := req.fields()
	if len(fields) == 0 {
		respondError(c, apperr.Validation("nothing to update"))
		return
	}

	product, err := h.Store.Products.Update(ctx, id, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Store.Products.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// UploadImage stores a product photo under the upload dir and returns its
// public URL.
func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.Validation("no file uploaded", apperr.Field("file", "is required")))
		return
	}

	name := filepath.Base(file.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !imageExtensions[ext] {
		respondError(c, apperr.Validation("unsupported file type", apperr.Field("file", "must be a jpg, png, webp or gif image")))
		return
	}

	// e.g. "1767890123_rotor.jpg"
	filename := fmt.Sprintf("%d_%s", time.Now().Unix(), strings.ReplaceAll(name, " ", "_"))
	if err := c.SaveUploadedFile(file, filepath.Join(h.App.UploadDir, filename)); err != nil {
		respondError(c, apperr.Internal("failed to save file", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     strings.TrimRight(h.App.BaseURL, "/") + "/uploads/" + filename,
	})
}

type CheckoutItem struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	CustomerID *uint          `json:"customer_id"`
	Items      []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	items := make([]sales.CartItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = sales.CartItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	sale, err := h.Sales.Checkout(c.Request.Context(), actor(c).ID, req.CustomerID, items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sale successful!",
		"sale_id": sale.ID,
		"total":   sale.Total,
		"sale":    sale,
	})
}

func (h *Handler) CancelSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sale, err := h.Sales.Cancel(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}
