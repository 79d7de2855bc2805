package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"counselpay/internal/cache"
	"counselpay/internal/repository"
)

const summaryCacheTTL = 1 * time.Minute

// StatisticsService exposes read-side payment rollups. Pure queries over
// committed rows; the only state it carries is a short-lived cache.
type StatisticsService interface {
	Summary(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error)
	ByMethod(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error)
	ByProvider(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error)
	ByBranch(ctx context.Context, branchID int64, from, to time.Time) ([]repository.StatusCount, error)
	ByPayer(ctx context.Context, payerID int64, from, to time.Time) ([]repository.StatusCount, error)
	Monthly(ctx context.Context, year int) ([]repository.MonthlyCount, error)
}

type statisticsService struct {
	payments repository.PaymentRepository
	cache    *cache.Client
}

// NewStatisticsService creates a new statistics service.
func NewStatisticsService(payments repository.PaymentRepository, c *cache.Client) StatisticsService {
	return &statisticsService{payments: payments, cache: c}
}

// Summary returns count and volume grouped by status, cached briefly since
// the dashboard polls it.
func (s *statisticsService) Summary(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error) {
	key := fmt.Sprintf("stats:summary:%d:%d", from.Unix(), to.Unix())
	if data, _ := s.cache.Get(ctx, key); data != nil {
		var cached []repository.StatusCount
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.payments.CountByGroup(ctx, "status", repository.PaymentFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rows); err == nil {
		_ = s.cache.Set(ctx, key, data, summaryCacheTTL)
	}
	return rows, nil
}

// ByMethod returns count and volume grouped by payment method.
func (s *statisticsService) ByMethod(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error) {
	return s.payments.CountByGroup(ctx, "method", repository.PaymentFilter{From: from, To: to})
}

// ByProvider returns count and volume grouped by provider.
func (s *statisticsService) ByProvider(ctx context.Context, from, to time.Time) ([]repository.StatusCount, error) {
	return s.payments.CountByGroup(ctx, "provider", repository.PaymentFilter{From: from, To: to})
}

// ByBranch returns count and volume grouped by status for one branch.
func (s *statisticsService) ByBranch(ctx context.Context, branchID int64, from, to time.Time) ([]repository.StatusCount, error) {
	return s.payments.CountByGroup(ctx, "status", repository.PaymentFilter{BranchID: branchID, From: from, To: to})
}

// ByPayer returns count and volume grouped by status for one payer.
func (s *statisticsService) ByPayer(ctx context.Context, payerID int64, from, to time.Time) ([]repository.StatusCount, error) {
	return s.payments.CountByGroup(ctx, "status", repository.PaymentFilter{PayerID: payerID, From: from, To: to})
}

// Monthly returns per-month approved volume for a year.
func (s *statisticsService) Monthly(ctx context.Context, year int) ([]repository.MonthlyCount, error) {
	return s.payments.MonthlyTotals(ctx, year)
}
