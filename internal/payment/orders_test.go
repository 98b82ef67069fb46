package payment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// fakeGateway serves canned responses per merchant order id.
type fakeGateway struct {
	states      map[string]OrderState
	queryErr    error
	checkoutErr error
	queries     int
}

func (f *fakeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &CheckoutResponse{
		GatewayOrderID: "gw-" + req.MerchantOrderID,
		CheckoutURL:    "https://pay.example.com/" + req.MerchantOrderID,
	}, nil
}

func (f *fakeGateway) QueryOrder(ctx context.Context, merchantOrderID string) (*StatusResponse, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	state, ok := f.states[merchantOrderID]
	if !ok {
		state = StatePending
	}
	return &StatusResponse{State: state, TransactionID: "txn-" + merchantOrderID}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "payment.db") + "?_pragma=busy_timeout(5000)"
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()
	user := models.User{Email: fmt.Sprintf("u%d@example.com", time.Now().UnixNano()), Password: "hashed", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func createPackage(t *testing.T, conn *gorm.DB, credits int64, proDays int) *models.CreditPackage {
	t.Helper()
	pkg := models.CreditPackage{
		Name:        "Starter",
		Credits:     credits,
		AmountMinor: 49900,
		Currency:    "INR",
		Features:    []byte(`["feature"]`),
		ProDays:     proDays,
		IsEnabled:   true,
	}
	if errCreate := conn.Create(&pkg).Error; errCreate != nil {
		t.Fatalf("create package: %v", errCreate)
	}
	return &pkg
}

func TestCreateOrder(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 500, 0)
	tracker := NewTracker(conn, &fakeGateway{}, "https://app.example.com/done")

	order, checkoutURL, errCreate := tracker.CreateOrder(context.Background(), user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}
	if checkoutURL == "" {
		t.Fatal("checkout url is empty")
	}
	if order.Status != models.OrderStatusCreated {
		t.Fatalf("status = %q, want created", order.Status)
	}
	if order.Credits != 500 {
		t.Fatalf("credits = %d, want 500", order.Credits)
	}
	window := order.ExpiresAt.Sub(order.CreatedAt)
	if window < 14*time.Minute || window > 16*time.Minute {
		t.Fatalf("checkout window = %v, want about 15m", window)
	}
}

func TestCreateOrderDisabledPackage(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 500, 0)
	if errUpdate := conn.Model(pkg).Update("is_enabled", false).Error; errUpdate != nil {
		t.Fatalf("disable package: %v", errUpdate)
	}
	tracker := NewTracker(conn, &fakeGateway{}, "")

	if _, _, err := tracker.CreateOrder(context.Background(), user.ID, pkg.ID); !errors.Is(err, ErrPackageNotFound) {
		t.Fatalf("error = %v, want ErrPackageNotFound", err)
	}
}

func TestTransitionSuccessCreditsOnce(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 500, 30)
	tracker := NewTracker(conn, &fakeGateway{}, "")
	ctx := context.Background()

	order, _, errCreate := tracker.CreateOrder(ctx, user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}

	applied, errTransition := tracker.Transition(ctx, order.MerchantOrderID, models.OrderStatusSuccess, []byte(`{"state":"COMPLETED"}`))
	if errTransition != nil {
		t.Fatalf("transition: %v", errTransition)
	}
	if !applied {
		t.Fatal("first transition not applied")
	}

	// Duplicate delivery must be a silent no-op.
	applied, errTransition = tracker.Transition(ctx, order.MerchantOrderID, models.OrderStatusSuccess, nil)
	if errTransition != nil {
		t.Fatalf("duplicate transition: %v", errTransition)
	}
	if applied {
		t.Fatal("duplicate transition reported as applied")
	}

	var reloadedUser models.User
	if errFind := conn.First(&reloadedUser, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloadedUser.CreditBalance != 500 {
		t.Fatalf("balance = %d, want exactly 500", reloadedUser.CreditBalance)
	}
	if reloadedUser.Membership != models.MembershipPro {
		t.Fatalf("membership = %q, want pro", reloadedUser.Membership)
	}
	if reloadedUser.MembershipExpiresAt == nil || !reloadedUser.MembershipExpiresAt.After(time.Now().UTC().AddDate(0, 0, 29)) {
		t.Fatalf("membership expiry = %v, want about 30 days out", reloadedUser.MembershipExpiresAt)
	}

	var txCount int64
	if errCount := conn.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&txCount).Error; errCount != nil {
		t.Fatalf("count entries: %v", errCount)
	}
	if txCount != 1 {
		t.Fatalf("ledger entries = %d, want 1", txCount)
	}

	var reloadedOrder models.PaymentOrder
	if errFind := conn.Where("merchant_order_id = ?", order.MerchantOrderID).First(&reloadedOrder).Error; errFind != nil {
		t.Fatalf("reload order: %v", errFind)
	}
	if reloadedOrder.Status != models.OrderStatusSuccess {
		t.Fatalf("order status = %q, want success", reloadedOrder.Status)
	}
	if reloadedOrder.PaidAt == nil {
		t.Fatal("paid_at not set")
	}
}

func TestTransitionFailedGrantsNothing(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 500, 0)
	tracker := NewTracker(conn, &fakeGateway{}, "")
	ctx := context.Background()

	order, _, errCreate := tracker.CreateOrder(ctx, user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}

	applied, errTransition := tracker.Transition(ctx, order.MerchantOrderID, models.OrderStatusFailed, nil)
	if errTransition != nil || !applied {
		t.Fatalf("transition applied=%v err=%v", applied, errTransition)
	}

	var reloadedUser models.User
	if errFind := conn.First(&reloadedUser, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloadedUser.CreditBalance != 0 {
		t.Fatalf("balance = %d, want 0 for failed order", reloadedUser.CreditBalance)
	}

	// A terminal order never moves again, even toward success.
	applied, errTransition = tracker.Transition(ctx, order.MerchantOrderID, models.OrderStatusSuccess, nil)
	if errTransition != nil || applied {
		t.Fatalf("post-terminal transition applied=%v err=%v", applied, errTransition)
	}
}

func TestTransitionValidation(t *testing.T) {
	conn := openTestDB(t)
	tracker := NewTracker(conn, &fakeGateway{}, "")
	ctx := context.Background()

	if _, err := tracker.Transition(ctx, "missing", models.OrderStatusSuccess, nil); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("unknown order error = %v, want ErrOrderNotFound", err)
	}
	if _, err := tracker.Transition(ctx, "missing", models.OrderStatusCreated, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("non-terminal target error = %v, want ErrInvalidTransition", err)
	}
}

// The webhook and reconciliation paths share the transition chokepoint, so
// both delivering the same outcome credits the user exactly once.
func TestWebhookThenSweepCreditsOnce(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 200, 0)
	gateway := &fakeGateway{states: map[string]OrderState{}}
	tracker := NewTracker(conn, gateway, "")
	reconciler := NewReconciler(conn, gateway, tracker, time.Minute, 0)
	ctx := context.Background()

	order, _, errCreate := tracker.CreateOrder(ctx, user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}
	gateway.states[order.MerchantOrderID] = StateCompleted
	backdateOrder(t, conn, order.MerchantOrderID, 20*time.Minute)

	if _, err := tracker.Transition(ctx, order.MerchantOrderID, models.OrderStatusSuccess, nil); err != nil {
		t.Fatalf("webhook transition: %v", err)
	}
	result := reconciler.Sweep(ctx)
	if result.Errors != 0 {
		t.Fatalf("sweep errors = %d, want 0", result.Errors)
	}

	var reloadedUser models.User
	if errFind := conn.First(&reloadedUser, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloadedUser.CreditBalance != 200 {
		t.Fatalf("balance = %d, want exactly 200", reloadedUser.CreditBalance)
	}
}

// backdateOrder ages an order past the reconciliation grace window.
func backdateOrder(t *testing.T, conn *gorm.DB, merchantOrderID string, age time.Duration) {
	t.Helper()
	past := time.Now().UTC().Add(-age)
	if errUpdate := conn.Model(&models.PaymentOrder{}).
		Where("merchant_order_id = ?", merchantOrderID).
		Update("created_at", past).Error; errUpdate != nil {
		t.Fatalf("backdate order: %v", errUpdate)
	}
}
