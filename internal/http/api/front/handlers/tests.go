package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/ledger"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/session"
	"gorm.io/gorm"
)

// TestHandler serves the test catalog and starts sessions.
type TestHandler struct {
	db       *gorm.DB
	sessions *session.Service
}

// NewTestHandler constructs a TestHandler.
func NewTestHandler(db *gorm.DB, sessions *session.Service) *TestHandler {
	return &TestHandler{db: db, sessions: sessions}
}

// List returns the enabled tests in display order.
func (h *TestHandler) List(c *gin.Context) {
	var rows []models.Test
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tests failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":               row.ID,
			"title":            row.Title,
			"description":      row.Description,
			"image_url":        row.ImageURL,
			"duration_seconds": row.DurationSeconds,
			"credit_cost":      row.CreditCost,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tests": out})
}

// StartSession deducts the test cost and opens a new session.
func (h *TestHandler) StartSession(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	testID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test id"})
		return
	}

	sess, errStart := h.sessions.Start(c.Request.Context(), userID, testID)
	if errStart != nil {
		switch {
		case errors.Is(errStart, session.ErrTestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "test not found"})
		case errors.Is(errStart, ledger.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "start session failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, formatSession(sess))
}
