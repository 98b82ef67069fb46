// Package mailer sends marketing campaigns through a hosted transactional
// email API. Delivery is best-effort per recipient: failures are recorded on
// the delivery row and never abort the rest of the campaign.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrCampaignNotFound indicates the campaign does not exist.
	ErrCampaignNotFound = errors.New("mailer: campaign not found")
	// ErrAlreadySent indicates the campaign already left the draft state.
	ErrAlreadySent = errors.New("mailer: campaign already sent")
)

// Client abstracts the transactional email API.
type Client interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error)
}

// HTTPClient calls the hosted email API over HTTP.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

// NewHTTPClient constructs an HTTPClient from config.
func NewHTTPClient(cfg config.EmailConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    cfg.APIKey,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		client:    &http.Client{Timeout: 20 * time.Second},
	}
}

// Send delivers one email and returns the API's message id.
func (c *HTTPClient) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	reqBody := map[string]any{
		"sender":      map[string]string{"name": c.fromName, "email": c.fromEmail},
		"to":          []map[string]string{{"email": toEmail, "name": toName}},
		"subject":     subject,
		"htmlContent": htmlBody,
	}
	payload, errMarshal := json.Marshal(reqBody)
	if errMarshal != nil {
		return "", fmt.Errorf("mailer: marshal request: %w", errMarshal)
	}

	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/smtp/email", bytes.NewReader(payload))
	if errReq != nil {
		return "", fmt.Errorf("mailer: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, errDo := c.client.Do(httpReq)
	if errDo != nil {
		return "", fmt.Errorf("mailer: send: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return "", fmt.Errorf("mailer: read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("mailer: api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// sendResponse maps the message id from the API reply.
	var sendResponse struct {
		MessageID string `json:"messageId"`
	}
	if errUnmarshal := json.Unmarshal(data, &sendResponse); errUnmarshal != nil {
		return "", nil
	}
	return sendResponse.MessageID, nil
}

// Service runs campaigns against user segments.
type Service struct {
	db     *gorm.DB
	client Client
}

// NewService constructs a Service.
func NewService(db *gorm.DB, client Client) *Service {
	return &Service{db: db, client: client}
}

// SendCampaign delivers a draft campaign to its segment. The draft-to-sending
// flip is a conditional update, so a duplicate trigger cannot double-send.
func (s *Service) SendCampaign(ctx context.Context, campaignID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("mailer: service not initialized")
	}

	var campaign models.EmailCampaign
	if errFind := s.db.WithContext(ctx).First(&campaign, campaignID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrCampaignNotFound
		}
		return fmt.Errorf("mailer: query campaign: %w", errFind)
	}

	res := s.db.WithContext(ctx).
		Model(&models.EmailCampaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignDraft).
		Updates(map[string]any{
			"status":     models.CampaignSending,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mailer: mark sending: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadySent
	}

	recipients, errRecipients := s.segmentRecipients(ctx, campaign.Segment)
	if errRecipients != nil {
		return errRecipients
	}

	sent, failed := 0, 0
	for _, user := range recipients {
		delivery := models.EmailDelivery{
			CampaignID: campaign.ID,
			UserID:     user.ID,
			Email:      user.Email,
			CreatedAt:  time.Now().UTC(),
		}

		messageID, errSend := s.client.Send(ctx, user.Email, user.Name, campaign.Subject, campaign.Body)
		if errSend != nil {
			failed++
			delivery.Error = errSend.Error()
			log.WithError(errSend).WithField("user_id", user.ID).Warn("mailer: delivery failed")
		} else {
			sent++
			delivery.Delivered = true
			delivery.MessageID = messageID
		}

		if errCreate := s.db.WithContext(ctx).Create(&delivery).Error; errCreate != nil {
			log.WithError(errCreate).Warn("mailer: record delivery failed")
		}
	}

	now := time.Now().UTC()
	if errDone := s.db.WithContext(ctx).
		Model(&models.EmailCampaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]any{
			"status":       models.CampaignSent,
			"sent_count":   sent,
			"failed_count": failed,
			"sent_at":      now,
			"updated_at":   now,
		}).Error; errDone != nil {
		return fmt.Errorf("mailer: mark sent: %w", errDone)
	}
	return nil
}

// segmentRecipients loads the active users targeted by a segment.
func (s *Service) segmentRecipients(ctx context.Context, segment models.CampaignSegment) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("active = ?", true)
	switch segment {
	case models.SegmentFree:
		q = q.Where("membership = ?", models.MembershipFree)
	case models.SegmentPro:
		q = q.Where("membership = ?", models.MembershipPro)
	case models.SegmentAll:
	default:
		return nil, fmt.Errorf("mailer: unknown segment %q", segment)
	}

	var users []models.User
	if errFind := q.Order("id ASC").Find(&users).Error; errFind != nil {
		return nil, fmt.Errorf("mailer: list recipients: %w", errFind)
	}
	return users, nil
}
