package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// TestAdminHandler manages test catalog endpoints.
type TestAdminHandler struct {
	db *gorm.DB
}

// NewTestAdminHandler constructs a TestAdminHandler.
func NewTestAdminHandler(db *gorm.DB) *TestAdminHandler {
	return &TestAdminHandler{db: db}
}

// testRequest defines the request body for test create/update.
type testRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	ImageURL        string `json:"image_url"`
	DurationSeconds int    `json:"duration_seconds"`
	CreditCost      int64  `json:"credit_cost"`
	SortOrder       int    `json:"sort_order"`
}

// Create creates a test.
func (h *TestAdminHandler) Create(c *gin.Context) {
	var body testRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.ImageURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and image_url are required"})
		return
	}
	if body.DurationSeconds <= 0 {
		body.DurationSeconds = 600
	}
	if body.CreditCost <= 0 {
		body.CreditCost = 1
	}

	now := time.Now().UTC()
	test := models.Test{
		Title:           strings.TrimSpace(body.Title),
		Description:     body.Description,
		ImageURL:        strings.TrimSpace(body.ImageURL),
		DurationSeconds: body.DurationSeconds,
		CreditCost:      body.CreditCost,
		SortOrder:       body.SortOrder,
		IsEnabled:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&test).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create test failed"})
		return
	}
	c.JSON(http.StatusCreated, formatTest(&test))
}

// List returns all tests with optional enabled filter.
func (h *TestAdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Test{})
	if enabledQ := strings.TrimSpace(c.Query("is_enabled")); enabledQ != "" {
		if enabled, errParse := strconv.ParseBool(enabledQ); errParse == nil {
			q = q.Where("is_enabled = ?", enabled)
		}
	}

	var rows []models.Test
	if errFind := q.Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tests failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatTest(&row))
	}
	c.JSON(http.StatusOK, gin.H{"tests": out})
}

// Update updates a test.
func (h *TestAdminHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test id"})
		return
	}

	var body testRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var test models.Test
	if errFind := h.db.WithContext(c.Request.Context()).First(&test, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "test not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query test failed"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if title := strings.TrimSpace(body.Title); title != "" {
		updates["title"] = title
	}
	if body.Description != "" {
		updates["description"] = body.Description
	}
	if imageURL := strings.TrimSpace(body.ImageURL); imageURL != "" {
		updates["image_url"] = imageURL
	}
	if body.DurationSeconds > 0 {
		updates["duration_seconds"] = body.DurationSeconds
	}
	if body.CreditCost > 0 {
		updates["credit_cost"] = body.CreditCost
	}
	updates["sort_order"] = body.SortOrder

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.Test{}).
		Where("id = ?", test.ID).
		Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update test failed"})
		return
	}

	if errFind := h.db.WithContext(c.Request.Context()).First(&test, id).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload test failed"})
		return
	}
	c.JSON(http.StatusOK, formatTest(&test))
}

// Enable makes a test startable.
func (h *TestAdminHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// Disable hides a test from users.
func (h *TestAdminHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// setEnabled flips the enabled flag on a test.
func (h *TestAdminHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.Test{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update test failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "test not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_enabled": enabled})
}

// formatTest converts a test model to a response payload.
func formatTest(test *models.Test) gin.H {
	return gin.H{
		"id":               test.ID,
		"title":            test.Title,
		"description":      test.Description,
		"image_url":        test.ImageURL,
		"duration_seconds": test.DurationSeconds,
		"credit_cost":      test.CreditCost,
		"sort_order":       test.SortOrder,
		"is_enabled":       test.IsEnabled,
		"created_at":       test.CreatedAt,
		"updated_at":       test.UpdatedAt,
	}
}
