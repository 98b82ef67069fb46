package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/payment"
	"gorm.io/gorm"
)

// PurchaseHandler serves the package catalog and the user's orders.
type PurchaseHandler struct {
	db      *gorm.DB
	tracker *payment.Tracker
}

// NewPurchaseHandler constructs a PurchaseHandler.
func NewPurchaseHandler(db *gorm.DB, tracker *payment.Tracker) *PurchaseHandler {
	return &PurchaseHandler{db: db, tracker: tracker}
}

// ListPackages returns the enabled credit packages in display order.
func (h *PurchaseHandler) ListPackages(c *gin.Context) {
	var rows []models.CreditPackage
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list packages failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":           row.ID,
			"name":         row.Name,
			"description":  row.Description,
			"credits":      row.Credits,
			"amount_minor": row.AmountMinor,
			"currency":     row.Currency,
			"features":     row.Features,
			"pro_days":     row.ProDays,
		})
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}

// createPurchaseRequest defines the request body for starting a purchase.
type createPurchaseRequest struct {
	PackageID uint64 `json:"package_id"`
}

// Create registers a checkout with the gateway and returns its URL.
func (h *PurchaseHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createPurchaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PackageID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package_id is required"})
		return
	}

	order, checkoutURL, errCreate := h.tracker.CreateOrder(c.Request.Context(), userID, body.PackageID)
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, payment.ErrPackageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "package not found"})
		case errors.Is(errCreate, payment.ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create purchase failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":        formatOrder(order),
		"checkout_url": checkoutURL,
	})
}

// List returns the user's orders, newest first.
func (h *PurchaseHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var rows []models.PaymentOrder
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list purchases failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatOrder(&row))
	}
	c.JSON(http.StatusOK, gin.H{"purchases": out})
}

// formatOrder converts an order model to a response payload.
func formatOrder(order *models.PaymentOrder) gin.H {
	return gin.H{
		"id":                order.ID,
		"merchant_order_id": order.MerchantOrderID,
		"package_id":        order.PackageID,
		"credits":           order.Credits,
		"amount_minor":      order.AmountMinor,
		"currency":          order.Currency,
		"status":            order.Status,
		"expires_at":        order.ExpiresAt,
		"paid_at":           order.PaidAt,
		"created_at":        order.CreatedAt,
	}
}
