package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires timed-out PENDING payments. It is a thin
// scheduler around PaymentService.SweepExpired, which owns the CAS logic.
type Sweeper struct {
	payments PaymentService
	spec     string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper with a cron spec such as "@every 1m".
func NewSweeper(payments PaymentService, spec string) *Sweeper {
	return &Sweeper{
		payments: payments,
		spec:     spec,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep, used by the admin endpoint and tests.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.payments.SweepExpired(ctx)
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.payments.SweepExpired(ctx)
	if err != nil {
		log.Printf("payment sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("payment sweep expired %d payments", expired)
	}
}
