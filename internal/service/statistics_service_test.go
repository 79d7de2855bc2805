package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"counselpay/internal/cache"
	"counselpay/internal/model"
	"counselpay/internal/repository"
)

func TestStatisticsService(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("summary groups by status for the range", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewStatisticsService(repo, (*cache.Client)(nil))

		rows := []repository.StatusCount{
			{Key: "APPROVED", Count: 12, Volume: "1200000"},
			{Key: "REFUNDED", Count: 2, Volume: "150000"},
		}
		repo.On("CountByGroup", mock.Anything, "status", repository.PaymentFilter{From: from, To: to}).
			Return(rows, nil)

		got, err := svc.Summary(context.Background(), from, to)

		assert.NoError(t, err)
		assert.Equal(t, rows, got)
		repo.AssertExpectations(t)
	})

	t.Run("method rollup groups by method column", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewStatisticsService(repo, (*cache.Client)(nil))

		repo.On("CountByGroup", mock.Anything, "method", repository.PaymentFilter{From: from, To: to}).
			Return([]repository.StatusCount{{Key: "CARD", Count: 8, Volume: "800000"}}, nil)

		got, err := svc.ByMethod(context.Background(), from, to)

		assert.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, "CARD", got[0].Key)
	})

	t.Run("branch rollup scopes the filter to the branch", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewStatisticsService(repo, (*cache.Client)(nil))

		repo.On("CountByGroup", mock.Anything, "status", repository.PaymentFilter{BranchID: 3, From: from, To: to}).
			Return([]repository.StatusCount{{Key: "APPROVED", Count: 4, Volume: "400000"}}, nil)

		_, err := svc.ByBranch(context.Background(), 3, from, to)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("payer rollup scopes the filter to the payer", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewStatisticsService(repo, (*cache.Client)(nil))

		repo.On("CountByGroup", mock.Anything, "status", repository.PaymentFilter{PayerID: 7, From: from, To: to}).
			Return([]repository.StatusCount{{Key: "APPROVED", Count: 2, Volume: "160000"}}, nil)

		_, err := svc.ByPayer(context.Background(), 7, from, to)

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("monthly rollup delegates by year", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewStatisticsService(repo, (*cache.Client)(nil))

		repo.On("MonthlyTotals", mock.Anything, 2026).
			Return([]repository.MonthlyCount{{Month: 1, Count: 14, Volume: "1350000"}}, nil)

		got, err := svc.Monthly(context.Background(), 2026)

		assert.NoError(t, err)
		assert.Equal(t, 1, got[0].Month)
	})
}

func TestSweeper_RunOnce(t *testing.T) {
	svc, deps := newTestService(t)
	sweeper := NewSweeper(svc, "@every 1m")

	deps.repo.On("FindExpiredPending", mock.Anything, mock.Anything, 200).
		Return([]model.Payment{}, nil)

	count, err := sweeper.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}
