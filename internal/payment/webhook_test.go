package payment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tatlabs/tatserver/internal/models"
)

func webhookBody(t *testing.T, event, merchantOrderID string) ([]byte, WebhookBody) {
	t.Helper()
	raw := []byte(`{"event":"` + event + `","payload":{"merchantOrderId":"` + merchantOrderID + `","state":"COMPLETED"}}`)
	var body WebhookBody
	if errUnmarshal := json.Unmarshal(raw, &body); errUnmarshal != nil {
		t.Fatalf("unmarshal body: %v", errUnmarshal)
	}
	return raw, body
}

func TestProcessWebhookCompleted(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 300, 0)
	tracker := NewTracker(conn, &fakeGateway{}, "")
	ctx := context.Background()

	order, _, errCreate := tracker.CreateOrder(ctx, user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}

	raw, body := webhookBody(t, EventOrderCompleted, order.MerchantOrderID)
	if errProcess := tracker.ProcessWebhook(ctx, raw, body); errProcess != nil {
		t.Fatalf("process webhook: %v", errProcess)
	}

	var audit models.WebhookEvent
	if errFind := conn.Where("merchant_order_id = ?", order.MerchantOrderID).First(&audit).Error; errFind != nil {
		t.Fatalf("load audit row: %v", errFind)
	}
	if audit.Status != models.WebhookProcessed {
		t.Fatalf("audit status = %q, want processed", audit.Status)
	}
	if audit.ProcessedAt == nil {
		t.Fatal("audit processed_at not set")
	}
	if audit.Event != EventOrderCompleted {
		t.Fatalf("audit event = %q, want %q", audit.Event, EventOrderCompleted)
	}

	var reloadedUser models.User
	if errFind := conn.First(&reloadedUser, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloadedUser.CreditBalance != 300 {
		t.Fatalf("balance = %d, want 300", reloadedUser.CreditBalance)
	}
}

func TestProcessWebhookDuplicateDelivery(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	pkg := createPackage(t, conn, 300, 0)
	tracker := NewTracker(conn, &fakeGateway{}, "")
	ctx := context.Background()

	order, _, errCreate := tracker.CreateOrder(ctx, user.ID, pkg.ID)
	if errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}

	raw, body := webhookBody(t, EventOrderCompleted, order.MerchantOrderID)
	if errProcess := tracker.ProcessWebhook(ctx, raw, body); errProcess != nil {
		t.Fatalf("first delivery: %v", errProcess)
	}
	if errProcess := tracker.ProcessWebhook(ctx, raw, body); errProcess != nil {
		t.Fatalf("duplicate delivery: %v", errProcess)
	}

	// Both deliveries are audited; only one credits the user.
	var auditCount int64
	if errCount := conn.Model(&models.WebhookEvent{}).
		Where("merchant_order_id = ?", order.MerchantOrderID).
		Count(&auditCount).Error; errCount != nil {
		t.Fatalf("count audits: %v", errCount)
	}
	if auditCount != 2 {
		t.Fatalf("audit rows = %d, want 2", auditCount)
	}

	var reloadedUser models.User
	if errFind := conn.First(&reloadedUser, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloadedUser.CreditBalance != 300 {
		t.Fatalf("balance = %d, want exactly 300", reloadedUser.CreditBalance)
	}
}

func TestProcessWebhookUnknownEvent(t *testing.T) {
	conn := openTestDB(t)
	tracker := NewTracker(conn, &fakeGateway{}, "")

	raw, body := webhookBody(t, "checkout.order.refunded", "order-x")
	if errProcess := tracker.ProcessWebhook(context.Background(), raw, body); errProcess != nil {
		t.Fatalf("unknown event should be absorbed, got %v", errProcess)
	}

	var audit models.WebhookEvent
	if errFind := conn.Where("merchant_order_id = ?", "order-x").First(&audit).Error; errFind != nil {
		t.Fatalf("load audit row: %v", errFind)
	}
	if audit.Status != models.WebhookProcessed {
		t.Fatalf("audit status = %q, want processed", audit.Status)
	}
}

func TestProcessWebhookMissingOrderIsAuditedAsError(t *testing.T) {
	conn := openTestDB(t)
	tracker := NewTracker(conn, &fakeGateway{}, "")

	raw, body := webhookBody(t, EventOrderCompleted, "no-such-order")
	if errProcess := tracker.ProcessWebhook(context.Background(), raw, body); errProcess == nil {
		t.Fatal("expected error for unknown order")
	}

	var audit models.WebhookEvent
	if errFind := conn.Where("merchant_order_id = ?", "no-such-order").First(&audit).Error; errFind != nil {
		t.Fatalf("load audit row: %v", errFind)
	}
	if audit.Status != models.WebhookError {
		t.Fatalf("audit status = %q, want error", audit.Status)
	}
	if audit.Error == "" {
		t.Fatal("audit error detail not recorded")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"checkout.order.completed"}`)
	digest := SignPayload("secret", payload)

	if !VerifySignature("secret", payload, digest) {
		t.Fatal("valid signature rejected")
	}
	if !VerifySignature("secret", payload, "  "+digest+" ") {
		t.Fatal("whitespace-padded signature rejected")
	}
	if VerifySignature("secret", payload, digest[:len(digest)-1]+"x") {
		t.Fatal("tampered signature accepted")
	}
	if VerifySignature("other-secret", payload, digest) {
		t.Fatal("signature accepted under wrong secret")
	}
	if VerifySignature("secret", []byte(`{"event":"x"}`), digest) {
		t.Fatal("signature accepted for different payload")
	}
}
