package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event names the payment outcomes the notification service knows how to
// render (SMS / KakaoTalk / email templates live on its side).
type Event string

const (
	EventPaymentApproved  Event = "PAYMENT_APPROVED"
	EventPaymentCancelled Event = "PAYMENT_CANCELLED"
	EventPaymentRefunded  Event = "PAYMENT_REFUNDED"
)

// Notifier delivers a payment event to a user. Fire-and-forget: callers
// log failures and never propagate them.
type Notifier interface {
	Send(ctx context.Context, userID int64, event Event, params map[string]string) error
}

type httpNotifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPNotifier creates a notifier posting to the notification service.
func NewHTTPNotifier(baseURL string) Notifier {
	return &httpNotifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts one notification request.
func (n *httpNotifier) Send(ctx context.Context, userID int64, event Event, params map[string]string) error {
	body, err := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"event":   string(event),
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/internal/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification send: status %d", resp.StatusCode)
	}
	return nil
}
