// Package reconcile drives the periodic sweep over stale awaiting_payment
// orders. It adds no transition logic of its own: each candidate is pushed
// through the lifecycle engine's reconcile path, whose built-in expiry rule
// ages out genuinely abandoned orders.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
)

// Engine is the slice of the lifecycle engine the sweep needs.
type Engine interface {
	StaleAwaitingPayment(ctx context.Context, limit int) ([]orders.Order, error)
	Reconcile(ctx context.Context, orderID string) (*orders.Order, error)
}

type Sweeper struct {
	Engine   Engine
	Logger   *zap.Logger
	Interval time.Duration
	Workers  int
	Batch    int
}

// Run sweeps on a ticker until the context is cancelled. One immediate pass
// runs at startup.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.Logger.Warn("sweep failed", zap.Error(err))
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				s.Logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one reconciliation pass. Gateway outages are tolerated per
// order: the order keeps its state and is retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) error {
	batch := s.Batch
	if batch <= 0 {
		batch = 500
	}
	stale, err := s.Engine.StaleAwaitingPayment(ctx, batch)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Workers, 1))
	for _, o := range stale {
		o := o
		g.Go(func() error {
			res, err := s.Engine.Reconcile(gctx, o.ID)
			switch {
			case errors.Is(err, payment.ErrUnavailable):
				s.Logger.Warn("gateway unavailable, order left as-is",
					zap.String("order_id", o.ID))
				return nil
			case err != nil:
				s.Logger.Error("reconcile failed",
					zap.String("order_id", o.ID), zap.Error(err))
				return nil // keep sweeping the rest of the batch
			}
			if res.Status != o.Status {
				s.Logger.Info("order reconciled",
					zap.String("order_id", o.ID),
					zap.String("status", string(res.Status)),
					zap.String("payment_status", string(res.PaymentStatus)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.Logger.Info("sweep done", zap.Int("checked", len(stale)))
	return nil
}
