package settlement

import (
	"context"
	"time"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"go.uber.org/zap"
)

// PriceProvider resolves prices for many pairs at once.
type PriceProvider interface {
	GetPrices(ctx context.Context, pairs map[string]models.MarketType) map[string]float64
}

// Worker keeps server-side trade state moving when no client is polling: it stores
// prices for active pairs, recomputes profits (which enforces liquidation) and accrues interest.
type Worker struct {
	svc            *Service
	prices         PriceProvider
	interval       time.Duration
	accrueInterest bool
	logger         *zap.Logger
}

func NewWorker(svc *Service, prices PriceProvider, interval time.Duration, accrueInterest bool, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		svc:            svc,
		prices:         prices,
		interval:       interval,
		accrueInterest: accrueInterest,
		logger:         logger.Named("worker"),
	}
}

// Run ticks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting settlement loop", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping settlement loop...")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("Settlement tick failed", zap.Error(err))
			}
		}
	}
}

// Tick performs one settlement round.
func (w *Worker) Tick(ctx context.Context) error {
	pairs, err := w.svc.ActivePairs(ctx)
	if err != nil {
		return err
	}

	if len(pairs) > 0 {
		prices := w.prices.GetPrices(ctx, pairs)
		updates := make([]backend.PriceUpdate, 0, len(prices))
		for pair, price := range prices {
			updates = append(updates, backend.PriceUpdate{TradingPair: pair, Price: price})
		}
		if err := w.svc.storePrices(ctx, updates); err != nil {
			return err
		}

		res, err := w.svc.SyncTradingProfits(ctx)
		if err != nil {
			return err
		}
		if res.Liquidated > 0 || res.Updated > 0 {
			w.logger.Debug("Profits synced", zap.Int("updated", res.Updated), zap.Int("liquidated", res.Liquidated))
		}
	}

	if w.accrueInterest {
		if _, err := w.svc.UpdateLiveInterestEarned(ctx); err != nil {
			return err
		}
	}
	return nil
}
