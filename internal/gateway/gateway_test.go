package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	apperrors "counselpay/internal/errors"
	"counselpay/internal/model"
)

func TestSigner_Verify(t *testing.T) {
	base := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	payload := []byte(`{"paymentId":"PAY_1_abc","status":"APPROVED"}`)

	newFixedSigner := func(secret string) *signer {
		s := newSigner(secret)
		s.now = func() time.Time { return base }
		return s
	}

	t.Run("valid signature passes", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Unix()
		sig := s.Sign(payload, ts)

		assert.NoError(t, s.Verify(payload, sig, ts))
	})

	t.Run("sha256 prefix is accepted", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Unix()
		sig := "sha256=" + s.Sign(payload, ts)

		assert.NoError(t, s.Verify(payload, sig, ts))
	})

	t.Run("signature from the wrong secret is rejected", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		other := newFixedSigner("whsec-2")
		ts := base.Unix()
		sig := other.Sign(payload, ts)

		assert.ErrorIs(t, s.Verify(payload, sig, ts), apperrors.ErrSignatureInvalid)
	})

	t.Run("modified payload breaks the signature", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Unix()
		sig := s.Sign(payload, ts)
		tampered := []byte(`{"paymentId":"PAY_1_abc","status":"APPROVED","amount":"1"}`)

		assert.ErrorIs(t, s.Verify(tampered, sig, ts), apperrors.ErrSignatureInvalid)
	})

	t.Run("timestamp outside the replay window is stale", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Add(-6 * time.Minute).Unix()
		sig := s.Sign(payload, ts)

		assert.ErrorIs(t, s.Verify(payload, sig, ts), apperrors.ErrStaleWebhook)
	})

	t.Run("future timestamps are held to the same window", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Add(10 * time.Minute).Unix()
		sig := s.Sign(payload, ts)

		assert.ErrorIs(t, s.Verify(payload, sig, ts), apperrors.ErrStaleWebhook)
	})

	t.Run("drift inside the window is fresh", func(t *testing.T) {
		s := newFixedSigner("whsec-1")
		ts := base.Add(-4 * time.Minute).Unix()
		sig := s.Sign(payload, ts)

		assert.NoError(t, s.Verify(payload, sig, ts))
	})
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	card := NewCardGateway(CardConfig{BaseURL: "http://localhost", Timeout: time.Second})
	registry.Register(model.MethodCard, card)

	t.Run("registered method resolves", func(t *testing.T) {
		gw, err := registry.Resolve(model.MethodCard)
		assert.NoError(t, err)
		assert.Equal(t, card, gw)
	})

	t.Run("unregistered method fails", func(t *testing.T) {
		_, err := registry.Resolve(model.MethodMobile)
		assert.ErrorIs(t, err, apperrors.ErrUnknownProvider)
	})
}

func TestCardGateway_Initiate(t *testing.T) {
	payment := &model.Payment{
		PaymentID:   "PAY_1_abc",
		OrderID:     "O-1",
		Amount:      decimal.NewFromInt(100000),
		Description: "weekly session",
	}

	t.Run("returns checkout handle on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payments", r.URL.Path)
			assert.Contains(t, r.Header.Get("Authorization"), "Basic ")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"paymentKey":"tk-1","checkoutUrl":"https://pay.example/c/tk-1"}`))
		}))
		defer server.Close()

		gw := NewCardGateway(CardConfig{BaseURL: server.URL, SecretKey: "sk", Timeout: time.Second})
		handle, err := gw.Initiate(context.Background(), payment)

		assert.NoError(t, err)
		assert.Equal(t, "tk-1", handle.ExternalPaymentKey)
		assert.Equal(t, "https://pay.example/c/tk-1", handle.RedirectURL)
	})

	t.Run("4xx is a definitive rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		gw := NewCardGateway(CardConfig{BaseURL: server.URL, SecretKey: "sk", Timeout: time.Second})
		_, err := gw.Initiate(context.Background(), payment)

		assert.ErrorIs(t, err, apperrors.ErrProviderRejected)
	})

	t.Run("5xx is an unknown outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		gw := NewCardGateway(CardConfig{BaseURL: server.URL, SecretKey: "sk", Timeout: time.Second})
		_, err := gw.Initiate(context.Background(), payment)

		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})

	t.Run("unreachable provider is an unknown outcome", func(t *testing.T) {
		gw := NewCardGateway(CardConfig{BaseURL: "http://127.0.0.1:1", SecretKey: "sk", Timeout: 200 * time.Millisecond})
		_, err := gw.Initiate(context.Background(), payment)

		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})
}

func TestCardGateway_Refund(t *testing.T) {
	t.Run("posts to the cancel endpoint with the amount", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		gw := NewCardGateway(CardConfig{BaseURL: server.URL, SecretKey: "sk", Timeout: time.Second})
		payment := &model.Payment{ExternalPaymentKey: "tk-9"}

		err := gw.Refund(context.Background(), payment, "40000", "client request")

		assert.NoError(t, err)
		assert.Equal(t, "/v1/payments/tk-9/cancel", gotPath)
	})
}
