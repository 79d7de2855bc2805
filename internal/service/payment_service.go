package service

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"counselpay/internal/directory"
	apperrors "counselpay/internal/errors"
	"counselpay/internal/gateway"
	"counselpay/internal/model"
	"counselpay/internal/notification"
	"counselpay/internal/repository"
)

// Amount bounds accepted for a single payment, in KRW.
var (
	minPaymentAmount = decimal.NewFromInt(100)
	maxPaymentAmount = decimal.NewFromInt(100_000_000)
)

// maxCASRetries bounds how often a losing writer re-reads and retries
// before surfacing the conflict for manual reconciliation.
const maxCASRetries = 3

// CreatePaymentInput is the caller-facing creation request.
type CreatePaymentInput struct {
	OrderID        string
	Amount         decimal.Decimal
	Method         model.PaymentMethod
	Provider       model.PaymentProvider
	PayerID        int64
	RecipientID    int64
	BranchID       int64
	Description    string
	TimeoutMinutes int
	SuccessURL     string
	FailURL        string
	CancelURL      string
}

// WebhookInput is the normalized provider callback. RawPayload holds the
// exact bytes the provider signed.
type WebhookInput struct {
	RawPayload         []byte
	Signature          string
	Timestamp          int64
	EventID            string
	PaymentID          string
	OrderID            string
	Status             model.PaymentStatus
	Amount             decimal.Decimal
	Method             model.PaymentMethod
	Provider           model.PaymentProvider
	ExternalPaymentKey string
	ApprovedAt         *time.Time
	FailureReason      string
}

// PaymentService is the payment lifecycle engine. All five entry points
// (create, webhook, cancel, refund, sweep) funnel status writes through the
// store's compare-and-swap, which is the only mutual exclusion in play.
type PaymentService interface {
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, *gateway.Handle, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
	ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]model.Payment, int64, error)
	ProcessWebhook(ctx context.Context, in WebhookInput) (*model.Payment, error)
	ApprovePayment(ctx context.Context, paymentID string) (*model.Payment, error)
	CancelPayment(ctx context.Context, paymentID, reason string) (*model.Payment, error)
	RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*model.Payment, error)
	VerifyPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
}

type paymentService struct {
	payments  repository.PaymentRepository
	events    repository.PaymentEventRepository
	gateways  *gateway.Registry
	ledger    WebhookLedger
	directory directory.Directory
	notifier  notification.Notifier

	defaultTimeout time.Duration
	sweepBatchSize int

	// Channel for async audit event logging.
	eventChannel chan model.PaymentEvent
}

// NewPaymentService creates a new payment lifecycle engine.
func NewPaymentService(
	payments repository.PaymentRepository,
	events repository.PaymentEventRepository,
	gateways *gateway.Registry,
	ledger WebhookLedger,
	dir directory.Directory,
	notifier notification.Notifier,
	defaultTimeoutMinutes int,
	sweepBatchSize int,
) PaymentService {
	service := &paymentService{
		payments:       payments,
		events:         events,
		gateways:       gateways,
		ledger:         ledger,
		directory:      dir,
		notifier:       notifier,
		defaultTimeout: time.Duration(defaultTimeoutMinutes) * time.Minute,
		sweepBatchSize: sweepBatchSize,
		eventChannel:   make(chan model.PaymentEvent, 100),
	}

	// Start async audit worker
	go service.eventWorker(context.Background())

	return service
}

// eventWorker persists audit events asynchronously in small batches.
func (s *paymentService) eventWorker(ctx context.Context) {
	batch := make([]model.PaymentEvent, 0, 10)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.eventChannel:
			if !ok {
				if len(batch) > 0 {
					_ = s.events.CreateBatch(ctx, batch)
				}
				return
			}
			batch = append(batch, event)
			if len(batch) >= 10 {
				_ = s.events.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				_ = s.events.CreateBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			return
		}
	}
}

// recordEvent queues an audit event, falling back to a synchronous write
// when the channel is full.
func (s *paymentService) recordEvent(ctx context.Context, p *model.Payment, from, to model.PaymentStatus, source model.EventSource, detail string) {
	event := model.PaymentEvent{
		PaymentUID: p.ID,
		FromStatus: from,
		ToStatus:   to,
		Source:     source,
		Detail:     detail,
	}
	select {
	case s.eventChannel <- event:
	default:
		_ = s.events.Create(ctx, &event)
	}
}

// notifyTerminal fires the notification hook for APPROVED, CANCELLED and
// REFUNDED outcomes. Fire-and-forget: failures are logged, never returned.
func (s *paymentService) notifyTerminal(p *model.Payment) {
	var event notification.Event
	switch p.Status {
	case model.PaymentStatusApproved:
		event = notification.EventPaymentApproved
	case model.PaymentStatusCancelled:
		event = notification.EventPaymentCancelled
	case model.PaymentStatusRefunded:
		event = notification.EventPaymentRefunded
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		params := map[string]string{
			"payment_id": p.PaymentID,
			"amount":     p.Amount.String(),
		}
		if err := s.notifier.Send(ctx, p.PayerID, event, params); err != nil {
			log.Printf("notification send failed: payment=%s event=%s: %v", p.PaymentID, event, err)
		}
	}()
}

// CreatePayment creates a PENDING payment and opens the provider-side flow.
// Idempotent on order id: a retry of a creation request that timed out on
// the caller's side returns the existing record, never a second row.
func (s *paymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, *gateway.Handle, error) {
	if in.Amount.LessThan(minPaymentAmount) || in.Amount.GreaterThan(maxPaymentAmount) {
		return nil, nil, apperrors.ErrInvalidAmount
	}

	if existing, err := s.payments.FindByOrderID(ctx, in.OrderID); err == nil {
		return s.resumeExisting(ctx, existing)
	} else if err != apperrors.ErrPaymentNotFound {
		return nil, nil, err
	}

	// Payer lookup is advisory: the directory service being down must not
	// block revenue, so only a definitive "no such user" rejects.
	if _, err := s.directory.GetUser(ctx, in.PayerID); err != nil {
		log.Printf("payer lookup failed for payer=%d: %v", in.PayerID, err)
	}

	timeout := time.Duration(in.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	provider := in.Provider
	if !in.Method.RequiresProvider() {
		provider = model.ProviderNone
	}

	payment := &model.Payment{
		OrderID:        in.OrderID,
		Amount:         in.Amount,
		RefundedAmount: decimal.Zero,
		Method:         in.Method,
		Provider:       provider,
		Status:         model.PaymentStatusPending,
		PayerID:        in.PayerID,
		RecipientID:    in.RecipientID,
		BranchID:       in.BranchID,
		Description:    in.Description,
		SuccessURL:     in.SuccessURL,
		FailURL:        in.FailURL,
		CancelURL:      in.CancelURL,
		ExpiresAt:      time.Now().Add(timeout),
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if err == apperrors.ErrDuplicateOrderID {
			// Lost a concurrent create race; resolve to the winner's row.
			existing, ferr := s.payments.FindByOrderID(ctx, in.OrderID)
			if ferr != nil {
				return nil, nil, ferr
			}
			return s.resumeExisting(ctx, existing)
		}
		return nil, nil, err
	}

	s.recordEvent(ctx, payment, "", model.PaymentStatusPending, model.SourceSystem, "payment created")

	handle, err := s.initiate(ctx, payment)
	if err != nil {
		// Row stays PENDING; a later webhook or the sweeper reconciles it.
		log.Printf("provider initiate failed: payment=%s: %v", payment.PaymentID, err)
		return payment, nil, err
	}
	return payment, handle, nil
}

// resumeExisting finishes an idempotent create hit: PENDING payments
// without a provider leg yet get a fresh initiate so the caller still
// receives a usable handle.
func (s *paymentService) resumeExisting(ctx context.Context, p *model.Payment) (*model.Payment, *gateway.Handle, error) {
	if p.Status != model.PaymentStatusPending || !p.Method.RequiresProvider() {
		return p, nil, nil
	}
	handle, err := s.initiate(ctx, p)
	if err != nil {
		return p, nil, err
	}
	return p, handle, nil
}

// initiate opens the provider-side flow and records the provider key when
// one is acknowledged synchronously.
func (s *paymentService) initiate(ctx context.Context, p *model.Payment) (*gateway.Handle, error) {
	if !p.Method.RequiresProvider() {
		return &gateway.Handle{}, nil
	}

	gw, err := s.gateways.Resolve(p.Method)
	if err != nil {
		return nil, err
	}
	handle, err := gw.Initiate(ctx, p)
	if err != nil {
		return nil, err
	}
	if handle.ExternalPaymentKey != "" && handle.ExternalPaymentKey != p.ExternalPaymentKey {
		if err := s.payments.SetExternalPaymentKey(ctx, p.PaymentID, handle.ExternalPaymentKey); err != nil {
			return nil, err
		}
		p.ExternalPaymentKey = handle.ExternalPaymentKey
	}
	return handle, nil
}

// GetPayment returns a payment by its external id.
func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	return s.payments.FindByPaymentID(ctx, paymentID)
}

// ListPayments returns payments matching the filter.
func (s *paymentService) ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]model.Payment, int64, error) {
	return s.payments.ListByFilter(ctx, filter)
}

// ProcessWebhook applies a provider callback exactly once. Verification
// order: signature and freshness first, then the duplicate ledger, then
// amount, then the CAS loop. Replaying an already-applied webhook returns
// the payment unchanged with no version bump.
func (s *paymentService) ProcessWebhook(ctx context.Context, in WebhookInput) (*model.Payment, error) {
	gw, err := s.gateways.Resolve(in.Method)
	if err != nil {
		return nil, err
	}
	if err := gw.VerifyWebhookSignature(in.RawPayload, in.Signature, in.Timestamp); err != nil {
		// Potential replay or forgery; worth an operator's attention.
		log.Printf("webhook rejected: provider=%s event=%s: %v", in.Provider, in.EventID, err)
		return nil, err
	}

	if in.Status != model.PaymentStatusApproved &&
		in.Status != model.PaymentStatusFailed &&
		in.Status != model.PaymentStatusCancelled {
		return nil, apperrors.ErrIllegalTransition
	}

	claimed, _ := s.ledger.Claim(ctx, string(in.Provider), in.EventID)
	if !claimed {
		// Duplicate delivery. Only report success once the row shows the
		// transition applied (or superseded); if the first copy is still in
		// flight, a conflict keeps the provider retrying in case it fails
		// and releases the claim.
		payment, err := s.lookupWebhookPayment(ctx, in)
		if err != nil {
			return nil, err
		}
		if payment.Status == in.Status || !payment.Status.CanTransitionTo(in.Status) {
			return payment, nil
		}
		return nil, apperrors.ErrVersionConflict
	}

	payment, err := s.applyWebhook(ctx, in)
	if err != nil {
		// Let a provider retry reach the CAS path instead of the ledger.
		_ = s.ledger.Release(ctx, string(in.Provider), in.EventID)
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) lookupWebhookPayment(ctx context.Context, in WebhookInput) (*model.Payment, error) {
	if in.PaymentID != "" {
		return s.payments.FindByPaymentID(ctx, in.PaymentID)
	}
	return s.payments.FindByOrderID(ctx, in.OrderID)
}

func (s *paymentService) applyWebhook(ctx context.Context, in WebhookInput) (*model.Payment, error) {
	payment, err := s.lookupWebhookPayment(ctx, in)
	if err != nil {
		return nil, err
	}

	// The stored amount is authoritative; a tampered or wrong amount is a
	// hard rejection, never adjusted to match.
	if in.Status == model.PaymentStatusApproved || !in.Amount.IsZero() {
		if !payment.Amount.Equal(in.Amount) {
			log.Printf("webhook amount mismatch: payment=%s stored=%s reported=%s",
				payment.PaymentID, payment.Amount, in.Amount)
			s.recordEvent(ctx, payment, payment.Status, in.Status, model.SourceWebhook, "amount mismatch, flagged for review")
			return nil, apperrors.ErrAmountMismatch
		}
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if payment.Status == in.Status {
			// Provider retry storm: transition already applied.
			return payment, nil
		}
		if !payment.Status.CanTransitionTo(in.Status) {
			return nil, apperrors.ErrIllegalTransition
		}

		fields := s.webhookFields(in)
		updated, err := s.payments.UpdateStatusCAS(ctx, payment.PaymentID, payment.Version, in.Status, fields)
		if err == apperrors.ErrVersionConflict {
			// Another writer (admin cancel, sweeper) got there first;
			// re-read and re-run the idempotency check.
			payment, err = s.payments.FindByPaymentID(ctx, payment.PaymentID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordEvent(ctx, updated, payment.Status, updated.Status, model.SourceWebhook, "webhook "+in.EventID)
		s.notifyTerminal(updated)
		return updated, nil
	}

	return nil, apperrors.ErrVersionConflict
}

func (s *paymentService) webhookFields(in WebhookInput) map[string]interface{} {
	now := time.Now()
	fields := map[string]interface{}{}
	if in.ExternalPaymentKey != "" {
		fields["external_payment_key"] = in.ExternalPaymentKey
	}
	switch in.Status {
	case model.PaymentStatusApproved:
		approvedAt := in.ApprovedAt
		if approvedAt == nil {
			approvedAt = &now
		}
		fields["approved_at"] = approvedAt
	case model.PaymentStatusFailed:
		fields["failure_reason"] = in.FailureReason
	case model.PaymentStatusCancelled:
		fields["cancelled_at"] = &now
		fields["failure_reason"] = in.FailureReason
	}
	return fields
}

// ApprovePayment settles a PENDING payment at the desk. Only methods
// without a provider leg qualify; provider-backed payments are approved by
// their webhook, never by hand.
func (s *paymentService) ApprovePayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method.RequiresProvider() {
		return nil, apperrors.ErrIllegalTransition
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if payment.Status == model.PaymentStatusApproved {
			return payment, nil
		}
		if !payment.Status.CanTransitionTo(model.PaymentStatusApproved) {
			return nil, apperrors.ErrIllegalTransition
		}

		now := time.Now()
		fields := map[string]interface{}{
			"approved_at": &now,
		}
		updated, err := s.payments.UpdateStatusCAS(ctx, payment.PaymentID, payment.Version, model.PaymentStatusApproved, fields)
		if err == apperrors.ErrVersionConflict {
			payment, err = s.payments.FindByPaymentID(ctx, payment.PaymentID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordEvent(ctx, updated, payment.Status, updated.Status, model.SourceAdmin, "approved at desk")
		s.notifyTerminal(updated)
		return updated, nil
	}

	return nil, apperrors.ErrVersionConflict
}

// CancelPayment cancels a PENDING payment locally, or an APPROVED payment
// after the provider definitively accepts the cancellation. A provider
// timeout leaves local state untouched.
func (s *paymentService) CancelPayment(ctx context.Context, paymentID, reason string) (*model.Payment, error) {
	payment, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	providerCancelled := false
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if payment.Status == model.PaymentStatusCancelled {
			return payment, nil
		}
		if !payment.Status.CanTransitionTo(model.PaymentStatusCancelled) {
			return nil, apperrors.ErrIllegalTransition
		}

		// An approved payment has provider-side money movement to undo.
		// The outbound call happens outside any lock; the CAS below is
		// what resolves races with a concurrent webhook. Issued at most
		// once even when the CAS retries.
		if !providerCancelled && payment.Status == model.PaymentStatusApproved && payment.Method.RequiresProvider() {
			gw, err := s.gateways.Resolve(payment.Method)
			if err != nil {
				return nil, err
			}
			if err := gw.Cancel(ctx, payment, reason); err != nil {
				return nil, err
			}
			providerCancelled = true
		}

		now := time.Now()
		fields := map[string]interface{}{
			"cancelled_at":   &now,
			"failure_reason": reason,
		}
		updated, err := s.payments.UpdateStatusCAS(ctx, payment.PaymentID, payment.Version, model.PaymentStatusCancelled, fields)
		if err == apperrors.ErrVersionConflict {
			payment, err = s.payments.FindByPaymentID(ctx, payment.PaymentID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordEvent(ctx, updated, payment.Status, updated.Status, model.SourceAdmin, "cancelled: "+reason)
		s.notifyTerminal(updated)
		return updated, nil
	}

	return nil, apperrors.ErrVersionConflict
}

// RefundPayment refunds part or all of an APPROVED payment. A partial
// refund keeps the payment APPROVED with the accumulator updated; the
// refund that exhausts the amount moves it to REFUNDED.
func (s *paymentService) RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*model.Payment, error) {
	payment, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	refund := amount
	if refund.IsZero() {
		refund = payment.RemainingRefundable()
	}
	if refund.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.ErrInvalidAmount
	}

	providerRefunded := false
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if payment.Status != model.PaymentStatusApproved {
			return nil, apperrors.ErrIllegalTransition
		}
		if refund.GreaterThan(payment.RemainingRefundable()) {
			return nil, apperrors.ErrRefundExceedsAmount
		}

		// The provider moves the money at most once; a CAS retry only
		// re-validates local state before recording the same refund.
		if !providerRefunded && payment.Method.RequiresProvider() {
			gw, err := s.gateways.Resolve(payment.Method)
			if err != nil {
				return nil, err
			}
			if err := gw.Refund(ctx, payment, refund.String(), reason); err != nil {
				return nil, err
			}
			providerRefunded = true
		}

		newRefunded := payment.RefundedAmount.Add(refund)
		target := model.PaymentStatusApproved
		fields := map[string]interface{}{
			"refunded_amount": newRefunded,
		}
		if newRefunded.Equal(payment.Amount) {
			target = model.PaymentStatusRefunded
			now := time.Now()
			fields["refunded_at"] = &now
			fields["failure_reason"] = reason
		}

		updated, err := s.payments.UpdateStatusCAS(ctx, payment.PaymentID, payment.Version, target, fields)
		if err == apperrors.ErrVersionConflict {
			payment, err = s.payments.FindByPaymentID(ctx, payment.PaymentID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordEvent(ctx, updated, payment.Status, updated.Status, model.SourceAdmin, "refund "+refund.String()+": "+reason)
		if updated.Status == model.PaymentStatusRefunded {
			s.notifyTerminal(updated)
		}
		return updated, nil
	}

	return nil, apperrors.ErrVersionConflict
}

// VerifyPayment checks a caller-reported amount against the stored record.
// Exact decimal equality; mismatches are reported, never corrected.
func (s *paymentService) VerifyPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (bool, error) {
	payment, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	return payment.Status == model.PaymentStatusApproved && payment.Amount.Equal(amount), nil
}

// SweepExpired moves timed-out PENDING payments to EXPIRED through the
// same CAS path webhooks use, so a sweep can never clobber an approval
// that committed first. Per-payment failures are logged and skipped.
func (s *paymentService) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.payments.FindExpiredPending(ctx, time.Now(), s.sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		p := &candidates[i]
		fields := map[string]interface{}{
			"failure_reason": "payment expired",
		}
		updated, err := s.payments.UpdateStatusCAS(ctx, p.PaymentID, p.Version, model.PaymentStatusExpired, fields)
		if err == apperrors.ErrVersionConflict {
			// A webhook or admin action resolved it between scan and CAS.
			continue
		}
		if err != nil {
			log.Printf("sweep failed for payment=%s: %v", p.PaymentID, err)
			continue
		}
		s.recordEvent(ctx, updated, model.PaymentStatusPending, model.PaymentStatusExpired, model.SourceSweeper, "expired by sweeper")
		expired++
	}
	return expired, nil
}
