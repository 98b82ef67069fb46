package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PackageHandler manages credit package endpoints.
type PackageHandler struct {
	db *gorm.DB
}

// NewPackageHandler constructs a PackageHandler.
func NewPackageHandler(db *gorm.DB) *PackageHandler {
	return &PackageHandler{db: db}
}

// packageRequest defines the request body for package create/update.
type packageRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Credits     int64    `json:"credits"`
	AmountMinor int64    `json:"amount_minor"`
	Currency    string   `json:"currency"`
	Features    []string `json:"features"`
	ProDays     int      `json:"pro_days"`
	SortOrder   int      `json:"sort_order"`
}

// Create creates a credit package.
func (h *PackageHandler) Create(c *gin.Context) {
	var body packageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" || body.Credits <= 0 || body.AmountMinor <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, credits, and amount_minor are required"})
		return
	}

	features, errFeatures := featuresJSON(body.Features)
	if errFeatures != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(body.Currency))
	if currency == "" {
		currency = "INR"
	}

	now := time.Now().UTC()
	pkg := models.CreditPackage{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		Credits:     body.Credits,
		AmountMinor: body.AmountMinor,
		Currency:    currency,
		Features:    features,
		ProDays:     body.ProDays,
		SortOrder:   body.SortOrder,
		IsEnabled:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&pkg).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create package failed"})
		return
	}
	c.JSON(http.StatusCreated, formatPackage(&pkg))
}

// List returns all packages with optional enabled filter.
func (h *PackageHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.CreditPackage{})
	if enabledQ := strings.TrimSpace(c.Query("is_enabled")); enabledQ != "" {
		if enabled, errParse := strconv.ParseBool(enabledQ); errParse == nil {
			q = q.Where("is_enabled = ?", enabled)
		}
	}

	var rows []models.CreditPackage
	if errFind := q.Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list packages failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatPackage(&row))
	}
	c.JSON(http.StatusOK, gin.H{"packages": out})
}

// Update updates a credit package.
func (h *PackageHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package id"})
		return
	}

	var body packageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var pkg models.CreditPackage
	if errFind := h.db.WithContext(c.Request.Context()).First(&pkg, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "package not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query package failed"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if name := strings.TrimSpace(body.Name); name != "" {
		updates["name"] = name
	}
	if body.Description != "" {
		updates["description"] = body.Description
	}
	if body.Credits > 0 {
		updates["credits"] = body.Credits
	}
	if body.AmountMinor > 0 {
		updates["amount_minor"] = body.AmountMinor
	}
	if currency := strings.ToUpper(strings.TrimSpace(body.Currency)); currency != "" {
		updates["currency"] = currency
	}
	if body.Features != nil {
		features, errFeatures := featuresJSON(body.Features)
		if errFeatures != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
			return
		}
		updates["features"] = features
	}
	if body.ProDays >= 0 {
		updates["pro_days"] = body.ProDays
	}
	updates["sort_order"] = body.SortOrder

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.CreditPackage{}).
		Where("id = ?", pkg.ID).
		Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update package failed"})
		return
	}

	if errFind := h.db.WithContext(c.Request.Context()).First(&pkg, id).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload package failed"})
		return
	}
	c.JSON(http.StatusOK, formatPackage(&pkg))
}

// Enable marks a package purchasable.
func (h *PackageHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// Disable removes a package from sale.
func (h *PackageHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// setEnabled flips the enabled flag on a package.
func (h *PackageHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid package id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Model(&models.CreditPackage{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update package failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_enabled": enabled})
}

// featuresJSON encodes a feature list as a JSON column value.
func featuresJSON(features []string) (datatypes.JSON, error) {
	if features == nil {
		features = []string{}
	}
	raw, errMarshal := json.Marshal(features)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(raw), nil
}

// formatPackage converts a package model to a response payload.
func formatPackage(pkg *models.CreditPackage) gin.H {
	return gin.H{
		"id":           pkg.ID,
		"name":         pkg.Name,
		"description":  pkg.Description,
		"credits":      pkg.Credits,
		"amount_minor": pkg.AmountMinor,
		"currency":     pkg.Currency,
		"features":     pkg.Features,
		"pro_days":     pkg.ProDays,
		"sort_order":   pkg.SortOrder,
		"is_enabled":   pkg.IsEnabled,
		"created_at":   pkg.CreatedAt,
		"updated_at":   pkg.UpdatedAt,
	}
}
