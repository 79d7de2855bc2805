package gateway

import (
	"context"
	"fmt"
	"time"

	"counselpay/internal/model"
)

// MobileGateway drives carrier/app payments (KakaoPay style): the payer
// approves in a wallet app reached through the redirect URL.
type MobileGateway struct {
	client *apiClient
	signer *signer
}

// MobileConfig carries the credentials for the mobile payment provider.
type MobileConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// NewMobileGateway creates a mobile payment gateway.
func NewMobileGateway(cfg MobileConfig) *MobileGateway {
	return &MobileGateway{
		client: newAPIClient(cfg.BaseURL, "Bearer "+cfg.APIKey, cfg.Timeout),
		signer: newSigner(cfg.WebhookSecret),
	}
}

type mobileInitiateResponse struct {
	TID        string `json:"tid"`
	AppLinkURL string `json:"appLinkUrl"`
}

// Initiate opens a wallet approval session.
func (g *MobileGateway) Initiate(ctx context.Context, payment *model.Payment) (*Handle, error) {
	body := map[string]interface{}{
		"partnerOrderId": payment.OrderID,
		"totalAmount":    payment.Amount.String(),
	}
	var resp mobileInitiateResponse
	if err := g.client.postJSON(ctx, "/v1/payment/ready", body, &resp); err != nil {
		return nil, err
	}
	return &Handle{
		ExternalPaymentKey: resp.TID,
		RedirectURL:        resp.AppLinkURL,
	}, nil
}

// VerifyWebhookSignature checks the HMAC signature and replay window.
func (g *MobileGateway) VerifyWebhookSignature(payload []byte, signature string, timestamp int64) error {
	return g.signer.Verify(payload, signature, timestamp)
}

// Cancel voids an unsettled wallet payment.
func (g *MobileGateway) Cancel(ctx context.Context, payment *model.Payment, reason string) error {
	body := map[string]interface{}{"reason": reason}
	path := fmt.Sprintf("/v1/payment/%s/cancel", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}

// Refund returns settled funds to the wallet.
func (g *MobileGateway) Refund(ctx context.Context, payment *model.Payment, amount string, reason string) error {
	body := map[string]interface{}{
		"cancelAmount": amount,
		"reason":       reason,
	}
	path := fmt.Sprintf("/v1/payment/%s/refund", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}
