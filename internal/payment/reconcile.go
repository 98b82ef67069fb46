package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reconciler recovers orders whose gateway webhook never arrived. It polls
// the gateway for stale pending orders and replays the outcome through the
// same transition chokepoint the webhook path uses.
type Reconciler struct {
	db      *gorm.DB
	gateway Gateway
	tracker *Tracker

	graceWindow    time.Duration
	interCallDelay time.Duration
}

// NewReconciler constructs a Reconciler.
func NewReconciler(db *gorm.DB, gateway Gateway, tracker *Tracker, graceWindow, interCallDelay time.Duration) *Reconciler {
	return &Reconciler{
		db:             db,
		gateway:        gateway,
		tracker:        tracker,
		graceWindow:    graceWindow,
		interCallDelay: interCallDelay,
	}
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// Sweep processes every pending order older than the grace window. Orders are
// queried sequentially with a fixed delay to respect gateway rate limits, and
// one order's failure never aborts the rest: each outcome is independent and
// logged. Duplicate processing is safe because Transition is idempotent.
func (r *Reconciler) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	if r == nil || r.db == nil {
		return result
	}

	cutoff := time.Now().UTC().Add(-r.graceWindow)
	var orders []models.PaymentOrder
	if errFind := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusCreated, cutoff).
		Order("created_at ASC").
		Find(&orders).Error; errFind != nil {
		log.WithError(errFind).Error("reconcile: list stale orders failed")
		result.Errors++
		return result
	}

	for i, order := range orders {
		if i > 0 && r.interCallDelay > 0 {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(r.interCallDelay):
			}
		}

		result.Scanned++
		r.reconcileOrder(ctx, &order, &result)
	}

	if result.Scanned > 0 {
		log.WithFields(log.Fields{
			"scanned":   result.Scanned,
			"completed": result.Completed,
			"failed":    result.Failed,
			"expired":   result.Expired,
			"errors":    result.Errors,
		}).Info("reconcile: sweep finished")
	}
	return result
}

// reconcileOrder queries the gateway for one order and applies the outcome.
func (r *Reconciler) reconcileOrder(ctx context.Context, order *models.PaymentOrder, result *SweepResult) {
	status, errQuery := r.gateway.QueryOrder(ctx, order.MerchantOrderID)
	if errQuery != nil {
		// Transient failures are retried by the next scheduled sweep.
		log.WithError(errQuery).
			WithField("merchant_order_id", order.MerchantOrderID).
			Warn("reconcile: gateway query failed")
		result.Errors++
		return
	}

	metadata, _ := json.Marshal(status)

	var terminal models.OrderStatus
	switch status.State {
	case StateCompleted:
		terminal = models.OrderStatusSuccess
	case StateFailed:
		terminal = models.OrderStatusFailed
	case StateExpired:
		terminal = models.OrderStatusExpired
	case StatePending:
		// Enforce the advisory checkout expiry: a pending order past its
		// window will never complete and is marked expired.
		if time.Now().UTC().After(order.ExpiresAt) {
			terminal = models.OrderStatusExpired
		} else {
			result.Pending++
			return
		}
	default:
		log.WithField("state", status.State).
			WithField("merchant_order_id", order.MerchantOrderID).
			Warn("reconcile: unknown gateway state")
		result.Errors++
		return
	}

	if _, errTransition := r.tracker.Transition(ctx, order.MerchantOrderID, terminal, metadata); errTransition != nil {
		log.WithError(errTransition).
			WithField("merchant_order_id", order.MerchantOrderID).
			Error("reconcile: transition failed")
		result.Errors++
		return
	}

	switch terminal {
	case models.OrderStatusSuccess:
		result.Completed++
	case models.OrderStatusFailed:
		result.Failed++
	case models.OrderStatusExpired:
		result.Expired++
	}
}
