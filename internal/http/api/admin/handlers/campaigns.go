package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/mailer"
	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CampaignHandler manages email campaign endpoints.
type CampaignHandler struct {
	db     *gorm.DB
	mailer *mailer.Service
}

// NewCampaignHandler constructs a CampaignHandler.
func NewCampaignHandler(db *gorm.DB, mailerSvc *mailer.Service) *CampaignHandler {
	return &CampaignHandler{db: db, mailer: mailerSvc}
}

// createCampaignRequest defines the request body for creating a campaign.
type createCampaignRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Segment string `json:"segment"`
}

// Create creates a draft campaign.
func (h *CampaignHandler) Create(c *gin.Context) {
	var body createCampaignRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Subject) == "" || strings.TrimSpace(body.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject and body are required"})
		return
	}

	segment := models.CampaignSegment(strings.TrimSpace(body.Segment))
	switch segment {
	case "":
		segment = models.SegmentAll
	case models.SegmentAll, models.SegmentFree, models.SegmentPro:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown segment"})
		return
	}

	now := time.Now().UTC()
	campaign := models.EmailCampaign{
		Subject:   strings.TrimSpace(body.Subject),
		Body:      body.Body,
		Segment:   segment,
		Status:    models.CampaignDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&campaign).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create campaign failed"})
		return
	}
	c.JSON(http.StatusCreated, formatCampaign(&campaign))
}

// List returns campaigns, newest first.
func (h *CampaignHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	var rows []models.EmailCampaign
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list campaigns failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatCampaign(&row))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

// Send starts delivery of a draft campaign in the background. Delivery can
// take minutes for a large segment, so the request returns as soon as the
// draft-to-sending flip is confirmed to be possible.
func (h *CampaignHandler) Send(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	var campaign models.EmailCampaign
	if errFind := h.db.WithContext(c.Request.Context()).First(&campaign, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query campaign failed"})
		return
	}
	if campaign.Status != models.CampaignDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "campaign already sent"})
		return
	}

	go func(campaignID uint64) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if errSend := h.mailer.SendCampaign(ctx, campaignID); errSend != nil &&
			!errors.Is(errSend, mailer.ErrAlreadySent) {
			log.WithError(errSend).WithField("campaign_id", campaignID).Error("campaign send failed")
		}
	}(campaign.ID)

	c.JSON(http.StatusAccepted, gin.H{"id": campaign.ID, "status": models.CampaignSending})
}

// formatCampaign converts a campaign model to a response payload.
func formatCampaign(campaign *models.EmailCampaign) gin.H {
	return gin.H{
		"id":           campaign.ID,
		"subject":      campaign.Subject,
		"segment":      campaign.Segment,
		"status":       campaign.Status,
		"sent_count":   campaign.SentCount,
		"failed_count": campaign.FailedCount,
		"sent_at":      campaign.SentAt,
		"created_at":   campaign.CreatedAt,
		"updated_at":   campaign.UpdatedAt,
	}
}
