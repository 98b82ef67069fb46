// Package payment tracks payment orders against the external gateway and
// funnels every terminal transition through a single idempotent chokepoint.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tatlabs/tatserver/internal/config"
)

var (
	// ErrGatewayUnavailable indicates a transient gateway failure. Callers do
	// not retry inline; the next reconciliation sweep retries instead.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// OrderState is the gateway's view of an order.
type OrderState string

// OrderState constants mirror the gateway status vocabulary.
const (
	// StateCompleted means the gateway collected the payment.
	StateCompleted OrderState = "COMPLETED"
	// StateFailed means the payment attempt failed.
	StateFailed OrderState = "FAILED"
	// StatePending means the gateway is still waiting on the payer.
	StatePending OrderState = "PENDING"
	// StateExpired means the checkout lapsed without payment.
	StateExpired OrderState = "EXPIRED"
)

// CheckoutRequest describes an order to register with the gateway.
type CheckoutRequest struct {
	MerchantOrderID string `json:"merchantOrderId"`
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	RedirectURL     string `json:"redirectUrl"`
}

// CheckoutResponse carries the gateway's checkout handle.
type CheckoutResponse struct {
	GatewayOrderID string `json:"orderId"`
	CheckoutURL    string `json:"checkoutUrl"`
}

// StatusResponse carries the gateway's authoritative order state.
type StatusResponse struct {
	State         OrderState `json:"state"`
	AmountMinor   int64      `json:"amount"`
	TransactionID string     `json:"transactionId"`
}

// Gateway abstracts the payment gateway's outbound API.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	QueryOrder(ctx context.Context, merchantOrderID string) (*StatusResponse, error)
}

// HTTPGateway talks to the hosted payment gateway over HTTP. Requests are
// signed with an HMAC-SHA256 of the body under the shared merchant secret.
type HTTPGateway struct {
	baseURL    string
	merchantID string
	secret     string
	client     *http.Client
}

// NewHTTPGateway constructs an HTTPGateway from config.
func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		merchantID: strings.TrimSpace(cfg.MerchantID),
		secret:     cfg.Secret,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateCheckout registers an order with the gateway and returns the hosted
// checkout handle.
func (g *HTTPGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	body, errMarshal := json.Marshal(req)
	if errMarshal != nil {
		return nil, fmt.Errorf("payment: marshal checkout request: %w", errMarshal)
	}

	var out CheckoutResponse
	if errPost := g.post(ctx, "/checkout/v2/pay", body, &out); errPost != nil {
		return nil, errPost
	}
	if strings.TrimSpace(out.CheckoutURL) == "" {
		return nil, fmt.Errorf("payment: gateway returned empty checkout url")
	}
	return &out, nil
}

// QueryOrder fetches the gateway's authoritative state for a merchant order.
func (g *HTTPGateway) QueryOrder(ctx context.Context, merchantOrderID string) (*StatusResponse, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return nil, fmt.Errorf("payment: empty merchant order id")
	}

	url := fmt.Sprintf("%s/checkout/v2/order/%s/status", g.baseURL, merchantOrderID)
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if errReq != nil {
		return nil, fmt.Errorf("payment: build status request: %w", errReq)
	}
	httpReq.Header.Set("Authorization", "HMAC "+SignPayload(g.secret, []byte(merchantOrderID)))
	httpReq.Header.Set("X-Merchant-Id", g.merchantID)

	var out StatusResponse
	if errDo := g.do(httpReq, &out); errDo != nil {
		return nil, errDo
	}
	return &out, nil
}

// post sends a signed JSON POST and decodes the response into out.
func (g *HTTPGateway) post(ctx context.Context, path string, body []byte, out any) error {
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if errReq != nil {
		return fmt.Errorf("payment: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "HMAC "+SignPayload(g.secret, body))
	httpReq.Header.Set("X-Merchant-Id", g.merchantID)
	return g.do(httpReq, out)
}

// do executes a gateway request and maps transport and 5xx failures to
// ErrGatewayUnavailable.
func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, errDo := g.client.Do(req)
	if errDo != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, errRead)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if errUnmarshal := json.Unmarshal(data, out); errUnmarshal != nil {
		return fmt.Errorf("payment: decode gateway response: %w", errUnmarshal)
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under the shared secret.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the provided hex digest matches the payload
// signature. Comparison is constant-time.
func VerifySignature(secret string, payload []byte, provided string) bool {
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(provided)))
}
