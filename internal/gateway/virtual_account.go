package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"counselpay/internal/model"
)

// VirtualAccountGateway issues a one-off deposit account for the payer.
// Approval arrives asynchronously once the deposit is observed, so the
// initiate response carries the account details instead of a redirect.
type VirtualAccountGateway struct {
	client *apiClient
	signer *signer
}

// VirtualAccountConfig carries the credentials for the virtual account provider.
type VirtualAccountConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// NewVirtualAccountGateway creates a virtual account gateway.
func NewVirtualAccountGateway(cfg VirtualAccountConfig) *VirtualAccountGateway {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":"))
	return &VirtualAccountGateway{
		client: newAPIClient(cfg.BaseURL, auth, cfg.Timeout),
		signer: newSigner(cfg.WebhookSecret),
	}
}

type virtualAccountResponse struct {
	PaymentKey    string `json:"paymentKey"`
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
}

// Initiate issues the virtual account. The deposit deadline mirrors the
// payment's own expiry so both sides time out together.
func (g *VirtualAccountGateway) Initiate(ctx context.Context, payment *model.Payment) (*Handle, error) {
	body := map[string]interface{}{
		"orderId": payment.OrderID,
		"amount":  payment.Amount.String(),
		"dueDate": payment.ExpiresAt.Format(time.RFC3339),
	}
	var resp virtualAccountResponse
	if err := g.client.postJSON(ctx, "/v1/virtual-accounts", body, &resp); err != nil {
		return nil, err
	}
	return &Handle{
		ExternalPaymentKey: resp.PaymentKey,
		VirtualAccount:     resp.AccountNumber,
		VirtualAccountBank: resp.BankCode,
	}, nil
}

// VerifyWebhookSignature checks the HMAC signature and replay window.
func (g *VirtualAccountGateway) VerifyWebhookSignature(payload []byte, signature string, timestamp int64) error {
	return g.signer.Verify(payload, signature, timestamp)
}

// Cancel closes the issued account before any deposit.
func (g *VirtualAccountGateway) Cancel(ctx context.Context, payment *model.Payment, reason string) error {
	body := map[string]interface{}{"cancelReason": reason}
	path := fmt.Sprintf("/v1/virtual-accounts/%s/cancel", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}

// Refund wires a deposit back to the payer.
func (g *VirtualAccountGateway) Refund(ctx context.Context, payment *model.Payment, amount string, reason string) error {
	body := map[string]interface{}{
		"refundAmount": amount,
		"refundReason": reason,
	}
	path := fmt.Sprintf("/v1/virtual-accounts/%s/refund", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}
