package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentEvent is an append-only audit record of a payment state transition.
// Every committed transition (and every rejected attempt worth reviewing,
// such as an amount mismatch) produces one row.
type PaymentEvent struct {
	ID         uuid.UUID     `json:"id" gorm:"type:char(36);primaryKey"`
	PaymentUID uuid.UUID     `json:"payment_uid" gorm:"type:char(36);not null;index"`
	FromStatus PaymentStatus `json:"from_status" gorm:"type:varchar(20);not null"`
	ToStatus   PaymentStatus `json:"to_status" gorm:"type:varchar(20);not null;index"`
	Source     EventSource   `json:"source" gorm:"type:varchar(20);not null"`
	Detail     string        `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EventSource identifies which entry point produced a transition.
type EventSource string

const (
	SourceWebhook EventSource = "WEBHOOK"
	SourceAdmin   EventSource = "ADMIN"
	SourceSweeper EventSource = "SWEEPER"
	SourceSystem  EventSource = "SYSTEM"
)

// BeforeCreate sets UUID before creating the record.
func (e *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
