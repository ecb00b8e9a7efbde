package app

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopfront/commerce/internal/domain/order"
)

// Sweeper periodically auto-cancels pending orders older than the configured
// staleness threshold.
type Sweeper struct {
	orders *order.Service
	cfg    SweepConfig
}

func NewSweeper(orders *order.Service, cfg SweepConfig) *Sweeper {
	return &Sweeper{orders: orders, cfg: cfg}
}

// Run executes the sweep on a fixed interval until the context is cancelled.
// The first sweep runs after one full interval so startup is not delayed.
func (s *Sweeper) Run(ctx context.Context) {
	lg := zctx.From(ctx).Named("sweeper")
	lg.Info("Starting", zap.Duration("interval", s.cfg.Interval), zap.Duration("stale_after", s.cfg.StaleAfter))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Stopping")
			return
		case <-ticker.C:
			s.sweep(ctx, lg)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, lg *zap.Logger) {
	res, err := s.orders.AutoCancelPending(ctx, s.cfg.StaleAfter)
	if err != nil {
		lg.Error("Sweep failed", zap.Error(err))
		return
	}
	if len(res.Cancelled) == 0 && res.Skipped == 0 && len(res.Failures) == 0 {
		return
	}
	lg.Info("Sweep completed",
		zap.Int("cancelled", len(res.Cancelled)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Failures)),
	)
}
