package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Webhook event names sent by the gateway.
const (
	// EventOrderCompleted reports a successfully collected payment.
	EventOrderCompleted = "checkout.order.completed"
	// EventOrderFailed reports a failed payment attempt.
	EventOrderFailed = "checkout.order.failed"
)

// WebhookBody mirrors the gateway callback payload.
type WebhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		MerchantOrderID string          `json:"merchantOrderId"`
		OrderID         string          `json:"orderId"`
		State           OrderState      `json:"state"`
		AmountMinor     int64           `json:"amount"`
		PaymentDetails  json.RawMessage `json:"paymentDetails"`
	} `json:"payload"`
}

// ProcessWebhook records a verified gateway callback in the audit table and
// applies the matching terminal transition. The audit row is written before
// any processing so a silently failed delivery stays discoverable; the row is
// marked processed or error afterwards.
func (t *Tracker) ProcessWebhook(ctx context.Context, raw []byte, body WebhookBody) error {
	if t == nil || t.db == nil {
		return fmt.Errorf("payment: tracker not initialized")
	}

	merchantOrderID := strings.TrimSpace(body.Payload.MerchantOrderID)
	audit := models.WebhookEvent{
		Event:           body.Event,
		MerchantOrderID: merchantOrderID,
		Payload:         datatypes.JSON(raw),
		Status:          models.WebhookReceived,
		CreatedAt:       time.Now().UTC(),
	}
	if errCreate := t.db.WithContext(ctx).Create(&audit).Error; errCreate != nil {
		return fmt.Errorf("payment: record webhook audit: %w", errCreate)
	}

	errProcess := t.applyWebhook(ctx, merchantOrderID, body, raw)

	now := time.Now().UTC()
	updates := map[string]any{
		"status":       models.WebhookProcessed,
		"processed_at": now,
	}
	if errProcess != nil {
		updates["status"] = models.WebhookError
		updates["error"] = errProcess.Error()
	}
	if errUpdate := t.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", audit.ID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("payment: mark webhook audit failed")
	}

	return errProcess
}

// applyWebhook maps a callback event onto the transition chokepoint.
func (t *Tracker) applyWebhook(ctx context.Context, merchantOrderID string, body WebhookBody, raw []byte) error {
	if merchantOrderID == "" {
		return fmt.Errorf("payment: webhook missing merchant order id")
	}

	switch body.Event {
	case EventOrderCompleted:
		_, errTransition := t.Transition(ctx, merchantOrderID, models.OrderStatusSuccess, raw)
		return errTransition
	case EventOrderFailed:
		_, errTransition := t.Transition(ctx, merchantOrderID, models.OrderStatusFailed, raw)
		return errTransition
	default:
		// Unknown events are audited but carry no transition.
		log.WithField("event", body.Event).Info("payment: ignoring unhandled webhook event")
		return nil
	}
}
