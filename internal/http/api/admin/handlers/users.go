package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// UserAdminHandler manages user administration endpoints.
type UserAdminHandler struct {
	db *gorm.DB
}

// NewUserAdminHandler constructs a UserAdminHandler.
func NewUserAdminHandler(db *gorm.DB) *UserAdminHandler {
	return &UserAdminHandler{db: db}
}

// List returns users with optional search and membership filters.
func (h *UserAdminHandler) List(c *gin.Context) {
	conn := h.db.WithContext(c.Request.Context())
	q := conn.Model(&models.User{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := dbutil.NormalizeLikePattern(conn, "%"+search+"%")
		q = q.Where(
			conn.Where(dbutil.CaseInsensitiveLikeExpr(conn, "email"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(conn, "name"), pattern),
		)
	}
	if membership := strings.TrimSpace(c.Query("membership")); membership != "" {
		q = q.Where("membership = ?", membership)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count users failed"})
		return
	}

	offset, limit := parsePagination(c)
	var rows []models.User
	if errFind := q.Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatAdminUser(&row))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total})
}

// Get returns a single user with recent credit activity.
func (h *UserAdminHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	var transactions []models.CreditTransaction
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Order("id DESC").
		Limit(50).
		Find(&transactions).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transactions failed"})
		return
	}

	txOut := make([]gin.H, 0, len(transactions))
	for _, tx := range transactions {
		txOut = append(txOut, gin.H{
			"id":             tx.ID,
			"type":           tx.Type,
			"delta":          tx.Delta,
			"balance_after":  tx.BalanceAfter,
			"reference_type": tx.ReferenceType,
			"reference_id":   tx.ReferenceID,
			"description":    tx.Description,
			"created_at":     tx.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         formatAdminUser(&user),
		"transactions": txOut,
	})
}

// Disable blocks a user from signing in.
func (h *UserAdminHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable restores a disabled user.
func (h *UserAdminHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// setActive flips the active flag on a user.
func (h *UserAdminHandler) setActive(c *gin.Context, active bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": active})
}

// formatAdminUser converts a user model to an admin response payload.
func formatAdminUser(user *models.User) gin.H {
	return gin.H{
		"id":                      user.ID,
		"email":                   user.Email,
		"name":                    user.Name,
		"membership":              user.Membership,
		"membership_expires_at":   user.MembershipExpiresAt,
		"credit_balance":          user.CreditBalance,
		"total_credits_purchased": user.TotalCreditsPurchased,
		"total_credits_spent":     user.TotalCreditsSpent,
		"active":                  user.Active,
		"is_admin":                user.IsAdmin,
		"created_at":              user.CreatedAt,
	}
}
