package gateway

import (
	"context"
	"fmt"
	"time"

	"counselpay/internal/model"
)

// BankTransferGateway drives real-time account transfers through an
// Iamport-style API keyed by bearer token.
type BankTransferGateway struct {
	client *apiClient
	signer *signer
}

// BankTransferConfig carries the credentials for the bank transfer provider.
type BankTransferConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// NewBankTransferGateway creates a bank transfer gateway.
func NewBankTransferGateway(cfg BankTransferConfig) *BankTransferGateway {
	return &BankTransferGateway{
		client: newAPIClient(cfg.BaseURL, "Bearer "+cfg.APIKey, cfg.Timeout),
		signer: newSigner(cfg.WebhookSecret),
	}
}

type bankTransferResponse struct {
	TransactionID string `json:"transactionId"`
	RedirectURL   string `json:"redirectUrl"`
}

// Initiate starts a transfer session in the payer's banking app.
func (g *BankTransferGateway) Initiate(ctx context.Context, payment *model.Payment) (*Handle, error) {
	body := map[string]interface{}{
		"merchantUid": payment.OrderID,
		"amount":      payment.Amount.String(),
	}
	var resp bankTransferResponse
	if err := g.client.postJSON(ctx, "/transfers/prepare", body, &resp); err != nil {
		return nil, err
	}
	return &Handle{
		ExternalPaymentKey: resp.TransactionID,
		RedirectURL:        resp.RedirectURL,
	}, nil
}

// VerifyWebhookSignature checks the HMAC signature and replay window.
func (g *BankTransferGateway) VerifyWebhookSignature(payload []byte, signature string, timestamp int64) error {
	return g.signer.Verify(payload, signature, timestamp)
}

// Cancel aborts a transfer that has not settled.
func (g *BankTransferGateway) Cancel(ctx context.Context, payment *model.Payment, reason string) error {
	body := map[string]interface{}{"reason": reason}
	path := fmt.Sprintf("/transfers/%s/cancel", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}

// Refund returns settled funds to the payer's account.
func (g *BankTransferGateway) Refund(ctx context.Context, payment *model.Payment, amount string, reason string) error {
	body := map[string]interface{}{
		"amount": amount,
		"reason": reason,
	}
	path := fmt.Sprintf("/transfers/%s/refund", payment.ExternalPaymentKey)
	return g.client.postJSON(ctx, path, body, nil)
}
