package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "counselpay/internal/errors"
	"counselpay/internal/model"
)

// Handle carries back whatever the provider returned for the caller-facing
// response: a checkout redirect, a virtual account to wire money to, or
// nothing at all for desk payments.
type Handle struct {
	ExternalPaymentKey string `json:"external_payment_key,omitempty"`
	RedirectURL        string `json:"redirect_url,omitempty"`
	VirtualAccount     string `json:"virtual_account,omitempty"`
	VirtualAccountBank string `json:"virtual_account_bank,omitempty"`
}

// Gateway abstracts one payment-provider integration for one method.
// Implementations are stateless per call and hold only credentials.
type Gateway interface {
	Initiate(ctx context.Context, payment *model.Payment) (*Handle, error)
	VerifyWebhookSignature(payload []byte, signature string, timestamp int64) error
	Cancel(ctx context.Context, payment *model.Payment, reason string) error
	Refund(ctx context.Context, payment *model.Payment, amount string, reason string) error
}

// Registry resolves the gateway for a payment method.
type Registry struct {
	gateways map[model.PaymentMethod]Gateway
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[model.PaymentMethod]Gateway)}
}

// Register binds a gateway to a payment method.
func (r *Registry) Register(method model.PaymentMethod, gw Gateway) {
	r.gateways[method] = gw
}

// Resolve returns the gateway for a method, or ErrUnknownProvider.
func (r *Registry) Resolve(method model.PaymentMethod) (Gateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, apperrors.ErrUnknownProvider
	}
	return gw, nil
}

// replayWindow is how far a webhook timestamp may drift from local time
// before the delivery is refused even with a valid signature.
const replayWindow = 5 * time.Minute

// signer verifies HMAC-SHA256 webhook signatures for one provider secret.
type signer struct {
	secret []byte
	now    func() time.Time
}

func newSigner(secret string) *signer {
	return &signer{secret: []byte(secret), now: time.Now}
}

// Sign computes the hex signature of timestamp + "." + payload.
func (s *signer) Sign(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks freshness first, then the MAC with a constant-time compare.
func (s *signer) Verify(payload []byte, signature string, timestamp int64) error {
	drift := s.now().Sub(time.Unix(timestamp, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > replayWindow {
		return apperrors.ErrStaleWebhook
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	expected := s.Sign(payload, timestamp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

// apiClient is the outbound HTTP leg shared by all gateways. Every call
// carries the client timeout; a timeout or transport failure is an unknown
// outcome, never a success or a definitive failure.
type apiClient struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

func newAPIClient(baseURL, authHeader string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: authHeader,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// postJSON sends a JSON body and decodes a JSON response into out (when
// non-nil). Transport errors and 5xx map to ErrProviderUnavailable, any
// definitive 4xx to ErrProviderRejected.
func (c *apiClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout or transport failure: outcome unknown, caller must not
		// assume the provider applied anything.
		return apperrors.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.ErrProviderUnavailable
		}
		return json.Unmarshal(data, out)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.ErrProviderRejected
	default:
		return apperrors.ErrProviderUnavailable
	}
}
