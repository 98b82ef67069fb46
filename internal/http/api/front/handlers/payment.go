package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/payment"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentHandler receives gateway callbacks and the reconciliation trigger.
type PaymentHandler struct {
	db           *gorm.DB
	tracker      *payment.Tracker
	reconciler   *payment.Reconciler
	gatewayCfg   config.GatewayConfig
	reconcileCfg config.ReconcileConfig
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(db *gorm.DB, tracker *payment.Tracker, reconciler *payment.Reconciler, gatewayCfg config.GatewayConfig, reconcileCfg config.ReconcileConfig) *PaymentHandler {
	return &PaymentHandler{
		db:           db,
		tracker:      tracker,
		reconciler:   reconciler,
		gatewayCfg:   gatewayCfg,
		reconcileCfg: reconcileCfg,
	}
}

// Webhook handles an inbound gateway callback. The authorization header must
// carry the HMAC of the body under the shared merchant secret; mismatches are
// rejected with 401 and logged as security events before any processing.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	const maxBodyBytes = int64(1 << 20)
	raw, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	authHeader := c.GetHeader("Authorization")
	scheme, digest, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "HMAC") ||
		!payment.VerifySignature(h.gatewayCfg.Secret, raw, digest) {
		log.WithField("remote", c.ClientIP()).Warn("payment: webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var body payment.WebhookBody
	if errUnmarshal := json.Unmarshal(raw, &body); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errProcess := h.tracker.ProcessWebhook(c.Request.Context(), raw, body); errProcess != nil {
		log.WithError(errProcess).Error("payment: webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Reconcile runs a sweep over stale pending orders. The response is always
// 200 so the scheduler never retries in a tight loop; the sweep itself is
// idempotent through the transition chokepoint.
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	token := strings.TrimSpace(h.reconcileCfg.SchedulerToken)
	if token != "" && c.GetHeader("X-Scheduler-Token") != token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid scheduler token"})
		return
	}

	result := h.reconciler.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, result)
}
