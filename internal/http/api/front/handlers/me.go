package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/progress"
	"gorm.io/gorm"
)

// MeHandler serves the authenticated user's own data.
type MeHandler struct {
	db *gorm.DB
}

// NewMeHandler constructs a MeHandler.
func NewMeHandler(db *gorm.DB) *MeHandler {
	return &MeHandler{db: db}
}

// Profile returns the user's account data.
func (h *MeHandler) Profile(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}

	c.JSON(http.StatusOK, formatUser(&user))
}

// Credits returns the user's balance and transaction history.
func (h *MeHandler) Credits(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}

	var rows []models.CreditTransaction
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(100).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":             row.ID,
			"delta":          row.Delta,
			"balance_after":  row.BalanceAfter,
			"type":           row.Type,
			"reference_type": row.ReferenceType,
			"reference_id":   row.ReferenceID,
			"description":    row.Description,
			"created_at":     row.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":                 user.CreditBalance,
		"total_credits_purchased": user.TotalCreditsPurchased,
		"total_credits_spent":     user.TotalCreditsSpent,
		"transactions":            out,
	})
}

// Progress returns the user's gamified progress summary.
func (h *MeHandler) Progress(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summary, errSummarize := progress.Summarize(c.Request.Context(), h.db, userID)
	if errSummarize != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load progress failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
