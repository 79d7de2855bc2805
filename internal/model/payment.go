package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents the status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
)

// IsTerminal returns true if the status is an absorbing state. APPROVED is
// not absorbing: it can still move to CANCELLED or REFUNDED.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled ||
		s == PaymentStatusRefunded || s == PaymentStatusExpired
}

// CanTransitionTo returns true if the status may legally move to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return target == PaymentStatusApproved || target == PaymentStatusFailed ||
			target == PaymentStatusCancelled || target == PaymentStatusExpired
	case PaymentStatusApproved:
		return target == PaymentStatusCancelled || target == PaymentStatusRefunded
	default:
		return false
	}
}

// PaymentMethod represents how a payment is made.
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "CARD"
	MethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodMobile         PaymentMethod = "MOBILE"
	MethodCash           PaymentMethod = "CASH"
)

// RequiresProvider returns true when the method involves an external
// provider leg. Cash payments are recorded and settled at the desk.
func (m PaymentMethod) RequiresProvider() bool {
	return m != MethodCash
}

// PaymentProvider identifies which gateway implementation handles the payment.
type PaymentProvider string

const (
	ProviderToss     PaymentProvider = "TOSS"
	ProviderIamport  PaymentProvider = "IAMPORT"
	ProviderKakaoPay PaymentProvider = "KAKAOPAY"
	ProviderNone     PaymentProvider = "NONE"
)

// Payment represents a counseling-session payment and its full lifecycle.
// Rows are never deleted; terminal states are kept for audit and statistics.
type Payment struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	PaymentID          string          `json:"payment_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	OrderID            string          `json:"order_id" gorm:"type:varchar(128);not null;uniqueIndex"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	RefundedAmount     decimal.Decimal `json:"refunded_amount" gorm:"type:decimal(20,2);not null;default:0"`
	Method             PaymentMethod   `json:"method" gorm:"type:varchar(20);not null;index"`
	Provider           PaymentProvider `json:"provider" gorm:"type:varchar(20);not null;index"`
	Status             PaymentStatus   `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Version            int64           `json:"version" gorm:"not null;default:0"`
	PayerID            int64           `json:"payer_id" gorm:"not null;index"`
	RecipientID        int64           `json:"recipient_id" gorm:"not null"`
	BranchID           int64           `json:"branch_id" gorm:"not null;index"`
	Description        string          `json:"description,omitempty" gorm:"type:varchar(255)"`
	FailureReason      string          `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	ExternalPaymentKey string          `json:"external_payment_key,omitempty" gorm:"type:varchar(128);index"`
	SuccessURL         string          `json:"success_url,omitempty" gorm:"type:varchar(512)"`
	FailURL            string          `json:"fail_url,omitempty" gorm:"type:varchar(512)"`
	CancelURL          string          `json:"cancel_url,omitempty" gorm:"type:varchar(512)"`
	ExpiresAt          time.Time       `json:"expires_at" gorm:"not null;index"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// BeforeCreate sets UUID and external payment id before creating the record.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PaymentID == "" {
		p.PaymentID = NewPaymentID()
	}
	return nil
}

// RemainingRefundable returns how much of the payment can still be refunded.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// NewPaymentID generates the externally visible payment identifier,
// PAY_<unix-millis>_<uuid prefix>.
func NewPaymentID() string {
	return fmt.Sprintf("PAY_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
