package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// OrderAdminHandler exposes payment orders for reconciliation review.
type OrderAdminHandler struct {
	db *gorm.DB
}

// NewOrderAdminHandler constructs an OrderAdminHandler.
func NewOrderAdminHandler(db *gorm.DB) *OrderAdminHandler {
	return &OrderAdminHandler{db: db}
}

// List returns payment orders with optional status and user filters.
func (h *OrderAdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.PaymentOrder{})

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if userQ := strings.TrimSpace(c.Query("user_id")); userQ != "" {
		q = q.Where("user_id = ?", userQ)
	}
	if merchantID := strings.TrimSpace(c.Query("merchant_order_id")); merchantID != "" {
		q = q.Where("merchant_order_id = ?", merchantID)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count orders failed"})
		return
	}

	offset, limit := parsePagination(c)
	var rows []models.PaymentOrder
	if errFind := q.Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list orders failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                row.ID,
			"user_id":           row.UserID,
			"package_id":        row.PackageID,
			"merchant_order_id": row.MerchantOrderID,
			"gateway_order_id":  row.GatewayOrderID,
			"credits":           row.Credits,
			"amount_minor":      row.AmountMinor,
			"currency":          row.Currency,
			"status":            row.Status,
			"expires_at":        row.ExpiresAt,
			"paid_at":           row.PaidAt,
			"created_at":        row.CreatedAt,
			"updated_at":        row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total})
}
