package market

import (
	"context"

	"crypto-invest-platform-go/internal/coingecko"
	"github.com/stretchr/testify/mock"
)

// MockRestClient is a mock for the coingecko.RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

var _ coingecko.RestClientInterface = (*MockRestClient)(nil)

func (m *MockRestClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRestClient) SpotPrice(ctx context.Context, id string) (float64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRestClient) SpotPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockRestClient) OHLC(ctx context.Context, id string, days int) ([]coingecko.OHLCPoint, error) {
	args := m.Called(ctx, id, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coingecko.OHLCPoint), args.Error(1)
}
