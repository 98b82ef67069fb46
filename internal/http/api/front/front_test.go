package front

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tatlabs/tatserver/internal/analysis"
	"github.com/tatlabs/tatserver/internal/config"
	"github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/models"
	"github.com/tatlabs/tatserver/internal/payment"
	"github.com/tatlabs/tatserver/internal/session"
	"gorm.io/gorm"
)

const testGatewaySecret = "gw-secret"

// stubGateway satisfies payment.Gateway for route tests.
type stubGateway struct{}

func (stubGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResponse, error) {
	return &payment.CheckoutResponse{GatewayOrderID: "gw-1", CheckoutURL: "https://pay.example.com/1"}, nil
}

func (stubGateway) QueryOrder(ctx context.Context, merchantOrderID string) (*payment.StatusResponse, error) {
	return &payment.StatusResponse{State: payment.StatePending}, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "front.db") + "?_pragma=busy_timeout(5000)"
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	gateway := stubGateway{}
	tracker := payment.NewTracker(conn, gateway, "")
	reconciler := payment.NewReconciler(conn, gateway, tracker, time.Minute, 0)

	engine := gin.New()
	RegisterFrontRoutes(engine, Deps{
		DB:         conn,
		JWT:        config.JWTConfig{Secret: "test-secret", Expiry: time.Hour},
		Gateway:    config.GatewayConfig{Secret: testGatewaySecret},
		Reconcile:  config.ReconcileConfig{SchedulerToken: "sched-token"},
		Sessions:   session.NewService(conn),
		Analysis:   analysis.NewService(conn, nil),
		Tracker:    tracker,
		Reconciler: reconciler,
	})
	return engine, conn
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, engine *gin.Engine, email string) string {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/v0/auth/register", "", gin.H{
		"email":    email,
		"name":     "Tester",
		"password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil || out.Token == "" {
		t.Fatalf("register response missing token: %v %s", errDecode, rec.Body.String())
	}
	return out.Token
}

func TestRegisterLoginProfile(t *testing.T) {
	engine, _ := setupRouter(t)

	token := registerUser(t, engine, "alice@example.com")

	rec := doJSON(t, engine, http.MethodPost, "/v0/auth/register", "", gin.H{
		"email": "alice@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, engine, http.MethodPost, "/v0/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, engine, http.MethodPost, "/v0/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, engine, http.MethodGet, "/v0/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, engine, http.MethodGet, "/v0/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated profile status = %d, want 401", rec.Code)
	}
}

func TestStartSessionRequiresCredits(t *testing.T) {
	engine, conn := setupRouter(t)
	token := registerUser(t, engine, "bob@example.com")

	test := models.Test{Title: "Card 1", ImageURL: "u", DurationSeconds: 600, CreditCost: 2, IsEnabled: true}
	if errCreate := conn.Create(&test).Error; errCreate != nil {
		t.Fatalf("create test: %v", errCreate)
	}

	rec := doJSON(t, engine, http.MethodPost, "/v0/tests/1/sessions", token, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("broke start status = %d, want 402", rec.Code)
	}

	if errFund := conn.Model(&models.User{}).Where("email = ?", "bob@example.com").
		Update("credit_balance", 10).Error; errFund != nil {
		t.Fatalf("fund user: %v", errFund)
	}

	rec = doJSON(t, engine, http.MethodPost, "/v0/tests/1/sessions", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("funded start status = %d body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		RemainingSeconds int    `json:"remaining_seconds"`
		Status           string `json:"status"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode session: %v", errDecode)
	}
	if out.Status != string(models.SessionActive) {
		t.Fatalf("status = %q, want active", out.Status)
	}
	if out.RemainingSeconds <= 0 || out.RemainingSeconds > 600 {
		t.Fatalf("remaining_seconds = %d, want within (0, 600]", out.RemainingSeconds)
	}
}

func TestWebhookSignatureEnforced(t *testing.T) {
	engine, _ := setupRouter(t)
	payload := []byte(`{"event":"checkout.order.unknown","payload":{"merchantOrderId":"m-1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/v0/payment/webhook", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v0/payment/webhook", bytes.NewReader(payload))
	req.Header.Set("Authorization", "HMAC "+payment.SignPayload("wrong-secret", payload))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("badly signed webhook status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v0/payment/webhook", bytes.NewReader(payload))
	req.Header.Set("Authorization", "HMAC "+payment.SignPayload(testGatewaySecret, payload))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestReconcileSchedulerToken(t *testing.T) {
	engine, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v0/payment/reconcile", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("untokened reconcile status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v0/payment/reconcile", nil)
	req.Header.Set("X-Scheduler-Token", "sched-token")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d body = %s", rec.Code, rec.Body.String())
	}

	var result payment.SweepResult
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &result); errDecode != nil {
		t.Fatalf("decode sweep result: %v", errDecode)
	}
}

func TestPurchaseFlow(t *testing.T) {
	engine, conn := setupRouter(t)
	token := registerUser(t, engine, "carol@example.com")

	pkg := models.CreditPackage{Name: "Starter", Credits: 100, AmountMinor: 9900, Currency: "INR", Features: []byte(`[]`), IsEnabled: true}
	if errCreate := conn.Create(&pkg).Error; errCreate != nil {
		t.Fatalf("create package: %v", errCreate)
	}

	rec := doJSON(t, engine, http.MethodGet, "/v0/packages", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list packages status = %d", rec.Code)
	}

	rec = doJSON(t, engine, http.MethodPost, "/v0/purchases", token, gin.H{"package_id": pkg.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create purchase status = %d body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil || out.CheckoutURL == "" {
		t.Fatalf("purchase response missing checkout url: %v %s", errDecode, rec.Body.String())
	}

	rec = doJSON(t, engine, http.MethodGet, "/v0/purchases", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list purchases status = %d", rec.Code)
	}
}
