package market

import (
	"context"
	"sync"

	"crypto-invest-platform-go/internal/models"
)

// CandleFeed serves one chart consumer. Each Load supersedes the previous one:
// the older request is canceled and returns an empty series.
type CandleFeed struct {
	source CandleSource

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

func NewCandleFeed(source CandleSource) *CandleFeed {
	return &CandleFeed{source: source}
}

func (f *CandleFeed) Load(ctx context.Context, pair, timeframe string, marketType models.MarketType) ([]Candle, error) {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	candles, err := f.source.GetCandles(ctx, pair, timeframe, marketType)

	f.mu.Lock()
	superseded := gen != f.gen
	if !superseded {
		f.cancel = nil
	}
	f.mu.Unlock()
	cancel()

	if superseded {
		return []Candle{}, nil
	}
	return candles, err
}

// Close cancels any in-flight load.
func (f *CandleFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
}
