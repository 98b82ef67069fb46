package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tatlabs/tatserver/internal/ledger"
	"github.com/tatlabs/tatserver/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound indicates no order matches the merchant order id.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrPackageNotFound indicates the requested package is missing or disabled.
	ErrPackageNotFound = errors.New("payment: package not found")
	// ErrInvalidTransition indicates a non-terminal target state.
	ErrInvalidTransition = errors.New("payment: transition target must be terminal")
)

// orderExpiry is the checkout window granted to a new order.
const orderExpiry = 15 * time.Minute

// Tracker records payment orders and applies their terminal transitions.
type Tracker struct {
	db          *gorm.DB
	gateway     Gateway
	redirectURL string
}

// NewTracker constructs a Tracker.
func NewTracker(db *gorm.DB, gateway Gateway, redirectURL string) *Tracker {
	return &Tracker{db: db, gateway: gateway, redirectURL: redirectURL}
}

// CreateOrder registers a checkout with the gateway and persists a pending
// order for the package. Returns the order and the hosted checkout URL.
func (t *Tracker) CreateOrder(ctx context.Context, userID, packageID uint64) (*models.PaymentOrder, string, error) {
	if t == nil || t.db == nil {
		return nil, "", fmt.Errorf("payment: tracker not initialized")
	}

	var pkg models.CreditPackage
	if errFind := t.db.WithContext(ctx).
		Where("id = ? AND is_enabled = ?", packageID, true).
		First(&pkg).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, "", ErrPackageNotFound
		}
		return nil, "", fmt.Errorf("payment: query package: %w", errFind)
	}

	merchantOrderID := uuid.NewString()
	checkout, errCheckout := t.gateway.CreateCheckout(ctx, CheckoutRequest{
		MerchantOrderID: merchantOrderID,
		AmountMinor:     pkg.AmountMinor,
		Currency:        pkg.Currency,
		RedirectURL:     t.redirectURL,
	})
	if errCheckout != nil {
		return nil, "", errCheckout
	}

	now := time.Now().UTC()
	order := models.PaymentOrder{
		UserID:          userID,
		PackageID:       pkg.ID,
		MerchantOrderID: merchantOrderID,
		GatewayOrderID:  checkout.GatewayOrderID,
		Credits:         pkg.Credits,
		AmountMinor:     pkg.AmountMinor,
		Currency:        pkg.Currency,
		Status:          models.OrderStatusCreated,
		ExpiresAt:       now.Add(orderExpiry),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := t.db.WithContext(ctx).Create(&order).Error; errCreate != nil {
		return nil, "", fmt.Errorf("payment: create order: %w", errCreate)
	}
	return &order, checkout.CheckoutURL, nil
}

// Transition moves an order from created to the given terminal state. It is
// the single chokepoint for the webhook and reconciliation paths: the status
// flip is one conditional UPDATE, so a duplicate delivery finds zero affected
// rows and becomes a no-op. On success the ledger is credited inside the same
// database transaction, keyed by the merchant order id.
//
// The returned bool reports whether this call applied the transition; false
// with a nil error means the order was already terminal.
func (t *Tracker) Transition(ctx context.Context, merchantOrderID string, terminal models.OrderStatus, metadata []byte) (bool, error) {
	if t == nil || t.db == nil {
		return false, fmt.Errorf("payment: tracker not initialized")
	}
	if !terminal.Terminal() {
		return false, ErrInvalidTransition
	}

	applied := false
	errTx := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		updates := map[string]any{
			"status":     terminal,
			"updated_at": now,
		}
		if terminal == models.OrderStatusSuccess {
			updates["paid_at"] = now
		}
		if len(metadata) > 0 {
			updates["gateway_metadata"] = datatypes.JSON(metadata)
		}

		res := tx.Model(&models.PaymentOrder{}).
			Where("merchant_order_id = ? AND status = ?", merchantOrderID, models.OrderStatusCreated).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if errCount := tx.Model(&models.PaymentOrder{}).
				Where("merchant_order_id = ?", merchantOrderID).
				Count(&count).Error; errCount != nil {
				return errCount
			}
			if count == 0 {
				return ErrOrderNotFound
			}
			// Already terminal; absorb the duplicate delivery.
			return nil
		}
		applied = true

		if terminal != models.OrderStatusSuccess {
			return nil
		}

		var order models.PaymentOrder
		if errFind := tx.Where("merchant_order_id = ?", merchantOrderID).First(&order).Error; errFind != nil {
			return errFind
		}

		_, errCredit := ledger.Credit(ctx, tx, order.UserID, order.Credits,
			models.CreditTxPurchase, models.RefPaymentOrder, merchantOrderID,
			fmt.Sprintf("purchase of %d credits", order.Credits))
		if errCredit != nil && !errors.Is(errCredit, ledger.ErrDuplicateReference) {
			return errCredit
		}

		return t.extendMembership(tx, &order, now)
	})
	if errTx != nil {
		return false, errTx
	}
	return applied, nil
}

// extendMembership grants pro days attached to the purchased package. The
// extension stacks on the current expiry when the user is already pro.
func (t *Tracker) extendMembership(tx *gorm.DB, order *models.PaymentOrder, now time.Time) error {
	var pkg models.CreditPackage
	if errFind := tx.First(&pkg, order.PackageID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithField("package_id", order.PackageID).Warn("payment: package missing during membership extension")
			return nil
		}
		return errFind
	}
	if pkg.ProDays <= 0 {
		return nil
	}

	var user models.User
	if errFind := tx.First(&user, order.UserID).Error; errFind != nil {
		return errFind
	}

	base := now
	if user.Membership == models.MembershipPro && user.MembershipExpiresAt != nil && user.MembershipExpiresAt.After(now) {
		base = *user.MembershipExpiresAt
	}
	expires := base.AddDate(0, 0, pkg.ProDays)

	return tx.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"membership":            models.MembershipPro,
			"membership_expires_at": expires,
			"updated_at":            now,
		}).Error
}
