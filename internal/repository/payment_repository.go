package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "counselpay/internal/errors"
	"counselpay/internal/model"
)

// PaymentFilter narrows payment listings and statistics queries.
// Zero values mean "no constraint".
type PaymentFilter struct {
	Status   model.PaymentStatus
	Method   model.PaymentMethod
	Provider model.PaymentProvider
	PayerID  int64
	BranchID int64
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// StatusCount is one row of a grouped aggregation.
type StatusCount struct {
	Key    string `json:"key"`
	Count  int64  `json:"count"`
	Volume string `json:"volume"`
}

// MonthlyCount is one month of the yearly rollup.
type MonthlyCount struct {
	Month  int    `json:"month"`
	Count  int64  `json:"count"`
	Volume string `json:"volume"`
}

// PaymentRepository defines payment persistence operations. All status
// mutations go through UpdateStatusCAS; there is no unconditional update.
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	UpdateStatusCAS(ctx context.Context, paymentID string, expectedVersion int64, newStatus model.PaymentStatus, fields map[string]interface{}) (*model.Payment, error)
	SetExternalPaymentKey(ctx context.Context, paymentID, key string) error
	ListByFilter(ctx context.Context, filter PaymentFilter) ([]model.Payment, int64, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Payment, error)
	CountByGroup(ctx context.Context, column string, filter PaymentFilter) ([]StatusCount, error)
	MonthlyTotals(ctx context.Context, year int) ([]MonthlyCount, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create inserts a new payment. A unique-index violation on order_id is
// mapped to ErrDuplicateOrderID so callers can resolve the existing row.
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return apperrors.ErrDuplicateOrderID
		}
		return err
	}
	return nil
}

// FindByPaymentID finds a payment by its external payment id.
func (r *paymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&payment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// FindByOrderID finds a payment by the caller-supplied order id.
func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatusCAS applies a status transition guarded by the expected
// version. The single UPDATE with the version predicate is the only
// mutual-exclusion mechanism; no row lock is held across provider calls.
// RowsAffected == 0 means another writer committed first.
func (r *paymentRepository) UpdateStatusCAS(ctx context.Context, paymentID string, expectedVersion int64, newStatus model.PaymentStatus, fields map[string]interface{}) (*model.Payment, error) {
	updates := map[string]interface{}{
		"status":  newStatus,
		"version": expectedVersion + 1,
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_id = ? AND version = ?", paymentID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrVersionConflict
	}
	return r.FindByPaymentID(ctx, paymentID)
}

// SetExternalPaymentKey records the provider's transaction key after a
// synchronous initiate acknowledgment. Not a status transition, so it does
// not bump the version.
func (r *paymentRepository) SetExternalPaymentKey(ctx context.Context, paymentID, key string) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_id = ?", paymentID).
		Update("external_payment_key", key).Error
}

// ListByFilter returns payments matching the filter plus the total count.
func (r *paymentRepository) ListByFilter(ctx context.Context, filter PaymentFilter) ([]model.Payment, int64, error) {
	q := r.applyFilter(r.db.WithContext(ctx).Model(&model.Payment{}), filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	var payments []model.Payment
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// FindExpiredPending returns PENDING payments whose deadline has passed,
// oldest first, capped at limit per sweep.
func (r *paymentRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.PaymentStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// CountByGroup aggregates count and volume grouped by the given column
// (status, method or provider). The column name is restricted to a known
// set by the statistics service; it is never caller input.
func (r *paymentRepository) CountByGroup(ctx context.Context, column string, filter PaymentFilter) ([]StatusCount, error) {
	var rows []StatusCount
	q := r.applyFilter(r.db.WithContext(ctx).Model(&model.Payment{}), filter)
	if err := q.Select(column + " AS `key`, COUNT(*) AS `count`, COALESCE(SUM(amount), 0) AS `volume`").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MonthlyTotals aggregates approved payment volume per month of a year.
func (r *paymentRepository) MonthlyTotals(ctx context.Context, year int) ([]MonthlyCount, error) {
	var rows []MonthlyCount
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	if err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("MONTH(created_at) AS `month`, COUNT(*) AS `count`, COALESCE(SUM(amount), 0) AS `volume`").
		Where("status IN ? AND created_at >= ? AND created_at < ?",
			[]model.PaymentStatus{model.PaymentStatusApproved, model.PaymentStatusRefunded}, start, end).
		Group("MONTH(created_at)").
		Order("`month` ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *paymentRepository) applyFilter(q *gorm.DB, filter PaymentFilter) *gorm.DB {
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		q = q.Where("method = ?", filter.Method)
	}
	if filter.Provider != "" {
		q = q.Where("provider = ?", filter.Provider)
	}
	if filter.PayerID != 0 {
		q = q.Where("payer_id = ?", filter.PayerID)
	}
	if filter.BranchID != 0 {
		q = q.Where("branch_id = ?", filter.BranchID)
	}
	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("created_at < ?", filter.To)
	}
	return q
}

// PaymentEventRepository defines audit event persistence operations.
type PaymentEventRepository interface {
	Create(ctx context.Context, event *model.PaymentEvent) error
	CreateBatch(ctx context.Context, events []model.PaymentEvent) error
	ListByPayment(ctx context.Context, paymentUID string) ([]model.PaymentEvent, error)
}

type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository.
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// Create creates a single audit event.
func (r *paymentEventRepository) Create(ctx context.Context, event *model.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CreateBatch creates multiple audit events in a single statement.
func (r *paymentEventRepository) CreateBatch(ctx context.Context, events []model.PaymentEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// ListByPayment returns the audit trail of one payment, oldest first.
func (r *paymentEventRepository) ListByPayment(ctx context.Context, paymentUID string) ([]model.PaymentEvent, error) {
	var events []model.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("payment_uid = ?", paymentUID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
