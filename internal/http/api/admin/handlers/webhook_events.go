package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// WebhookEventHandler exposes the gateway callback audit log.
type WebhookEventHandler struct {
	db *gorm.DB
}

// NewWebhookEventHandler constructs a WebhookEventHandler.
func NewWebhookEventHandler(db *gorm.DB) *WebhookEventHandler {
	return &WebhookEventHandler{db: db}
}

// List returns audit rows with optional status and order filters.
func (h *WebhookEventHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.WebhookEvent{})

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if merchantID := strings.TrimSpace(c.Query("merchant_order_id")); merchantID != "" {
		q = q.Where("merchant_order_id = ?", merchantID)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count webhook events failed"})
		return
	}

	offset, limit := parsePagination(c)
	var rows []models.WebhookEvent
	if errFind := q.Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list webhook events failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                row.ID,
			"event":             row.Event,
			"merchant_order_id": row.MerchantOrderID,
			"payload":           row.Payload,
			"status":            row.Status,
			"error":             row.Error,
			"created_at":        row.CreatedAt,
			"processed_at":      row.ProcessedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "total": total})
}
