package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-invest-platform-go/internal/cache"
	"crypto-invest-platform-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newPriceSource(client *MockRestClient, clock *testClock) (*PriceSource, *History) {
	history := NewHistory(50)
	src := NewPriceSource(
		client,
		cache.NewMemoryStore[float64](clock.Now),
		NewSimulator(3, clock.Now),
		history,
		PriceOptions{TTL: 30 * time.Second, Timeout: time.Second, Now: clock.Now},
		zap.NewNop(),
	)
	return src, history
}

func TestGetPrice_CachesLiveQuote(t *testing.T) {
	client := new(MockRestClient)
	clock := newTestClock()
	src, history := newPriceSource(client, clock)
	ctx := context.Background()

	client.On("SpotPrice", mock.Anything, "bitcoin").Return(94500.0, nil).Once()
	client.On("SpotPrice", mock.Anything, "bitcoin").Return(95000.0, nil).Once()

	first := src.GetPrice(ctx, "BTC/USDT", models.MarketCrypto)
	clock.Advance(29 * time.Second)
	second := src.GetPrice(ctx, "BTC/USDT", models.MarketCrypto)

	assert.Equal(t, 94500.0, first)
	assert.Equal(t, first, second, "within the TTL the cached quote is returned")

	clock.Advance(2 * time.Second)
	third := src.GetPrice(ctx, "BTC/USDT", models.MarketCrypto)
	assert.Equal(t, 95000.0, third)

	assert.Equal(t, 3, history.Len("BTC/USDT"))
	client.AssertExpectations(t)
}

func TestGetPrice_FallsBackToSimulation(t *testing.T) {
	client := new(MockRestClient)
	clock := newTestClock()
	src, _ := newPriceSource(client, clock)

	client.On("SpotPrice", mock.Anything, "ethereum").Return(0.0, errors.New("connection refused"))

	p := src.GetPrice(context.Background(), "ETH/USDT", models.MarketCrypto)

	base := Base("ETH/USDT")
	assert.InDelta(t, base, p, base*Band)
}

func TestGetPrice_ForexNeverCallsProvider(t *testing.T) {
	client := new(MockRestClient)
	clock := newTestClock()
	src, _ := newPriceSource(client, clock)

	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		p := src.GetPrice(context.Background(), "EUR/USD", models.MarketForex)
		assert.InDelta(t, 1.085, p, 1.085*Band)
	}

	client.AssertNotCalled(t, "SpotPrice", mock.Anything, mock.Anything)
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	client := new(MockRestClient)
	clock := newTestClock()
	src, _ := newPriceSource(client, clock)
	ctx := context.Background()

	client.On("SpotPrice", mock.Anything, "solana").Return(190.0, nil).Once()
	client.On("SpotPrice", mock.Anything, "solana").Return(191.5, nil).Once()

	assert.Equal(t, 190.0, src.GetPrice(ctx, "SOL/USDT", models.MarketCrypto))
	src.Invalidate(ctx, "SOL/USDT")
	assert.Equal(t, 191.5, src.GetPrice(ctx, "SOL/USDT", models.MarketCrypto))

	client.AssertExpectations(t)
}

func TestGetPrices_BatchesMissingQuotes(t *testing.T) {
	client := new(MockRestClient)
	clock := newTestClock()
	src, history := newPriceSource(client, clock)
	ctx := context.Background()

	client.On("SpotPrice", mock.Anything, "bitcoin").Return(94000.0, nil).Once()
	src.GetPrice(ctx, "BTC/USDT", models.MarketCrypto)

	client.On("SpotPrices", mock.Anything, []string{"ethereum"}).Return(map[string]float64{"ethereum": 3410.0}, nil).Once()

	prices := src.GetPrices(ctx, map[string]models.MarketType{
		"BTC/USDT": models.MarketCrypto,
		"ETH/USDT": models.MarketCrypto,
		"GBP/USD":  models.MarketForex,
	})

	assert.Equal(t, 94000.0, prices["BTC/USDT"])
	assert.Equal(t, 3410.0, prices["ETH/USDT"])
	assert.InDelta(t, 1.27, prices["GBP/USD"], 1.27*Band)
	assert.Equal(t, 1, history.Len("GBP/USD"))
	client.AssertExpectations(t)
}

func TestPairIDs_Overrides(t *testing.T) {
	ids := PairIDs(map[string]string{"PEPE/USDT": "pepe", "BTC/USDT": "wrapped-bitcoin"})

	assert.Equal(t, "pepe", ids["PEPE/USDT"])
	assert.Equal(t, "wrapped-bitcoin", ids["BTC/USDT"])
	assert.Equal(t, "ethereum", ids["ETH/USDT"])
	assert.Equal(t, "bitcoin", DefaultPairIDs["BTC/USDT"], "defaults are not mutated")
}
