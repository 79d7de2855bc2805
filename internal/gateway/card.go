package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"counselpay/internal/model"
)

// CardGateway drives card payments through a Toss-style REST API:
// basic auth with the secret key, checkout initiation, and a shared
// cancel endpoint that takes an optional cancelAmount for refunds.
type CardGateway struct {
	client *apiClient
	signer *signer
}

// CardConfig carries the credentials for the card provider.
type CardConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// NewCardGateway creates a card gateway.
func NewCardGateway(cfg CardConfig) *CardGateway {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":"))
	return &CardGateway{
		client: newAPIClient(cfg.BaseURL, auth, cfg.Timeout),
		signer: newSigner(cfg.WebhookSecret),
	}
}

type cardInitiateResponse struct {
	PaymentKey  string `json:"paymentKey"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Initiate opens a checkout session and returns the redirect URL.
func (g *CardGateway) Initiate(ctx context.Context, payment *model.Payment) (*Handle, error) {
	body := map[string]interface{}{
		"orderId":    payment.OrderID,
		"amount":     payment.Amount.String(),
		"currency":   "KRW",
		"orderName":  payment.Description,
		"successUrl": payment.SuccessURL,
		"failUrl":    payment.FailURL,
		"cancelUrl":  payment.CancelURL,
	}
	var resp cardInitiateResponse
	if err := g.client.postJSON(ctx, "/v1/payments", body, &resp); err != nil {
		return nil, err
	}
	return &Handle{
		ExternalPaymentKey: resp.PaymentKey,
		RedirectURL:        resp.CheckoutURL,
	}, nil
}

// VerifyWebhookSignature checks the HMAC signature and replay window.
func (g *CardGateway) VerifyWebhookSignature(payload []byte, signature string, timestamp int64) error {
	return g.signer.Verify(payload, signature, timestamp)
}

// Cancel voids an authorized payment before capture.
func (g *CardGateway) Cancel(ctx context.Context, payment *model.Payment, reason string) error {
	body := map[string]interface{}{"cancelReason": reason}
	path := fmt.Sprintf("/v1/payments/%s/cancel", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}

// Refund cancels part or all of a captured payment.
func (g *CardGateway) Refund(ctx context.Context, payment *model.Payment, amount string, reason string) error {
	body := map[string]interface{}{
		"cancelAmount": amount,
		"cancelReason": reason,
	}
	path := fmt.Sprintf("/v1/payments/%s/cancel", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}
