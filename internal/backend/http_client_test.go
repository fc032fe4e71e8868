package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(handler http.Handler) (*HTTPClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewHTTPClient(&config.Backend{BaseURL: server.URL, Token: "test-token", Timeout: 5 * time.Second}, zap.NewNop())
	return client, server
}

func TestStartTradeValidated(t *testing.T) {
	tradeID := uuid.New()
	userID := uuid.New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rpc/start_trade_validated", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req StartTradeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, userID, req.UserID)
		assert.Equal(t, uuid.Nil, req.SignalID)
		assert.True(t, req.Amount.Equal(decimal.NewFromInt(100)))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StartTradeResult{Success: true, TradeID: &tradeID, Engine: models.EngineGeneral})
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	res, err := client.StartTradeValidated(context.Background(), StartTradeRequest{
		UserID:    userID,
		TradeType: models.TradeBuy,
		Amount:    decimal.NewFromInt(100),
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, tradeID, *res.TradeID)
	assert.Equal(t, models.EngineGeneral, res.Engine)
}

func TestStopSingleTrade_RejectionIsRPCError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"trade not found"}`))
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	err := client.StopSingleTrade(context.Background(), uuid.New(), uuid.New())

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "trade not found", rpcErr.Message)
}

func TestRPC_IsNotRetried(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	_, err := client.SwapBalances(context.Background(), SwapRequest{UserID: uuid.New()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc swap_balances")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReads_AreRetried(t *testing.T) {
	var calls int32
	userID := uuid.New()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/rows/trades", r.URL.Path)
		assert.Equal(t, userID.String(), r.URL.Query().Get("user_id"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]models.Trade{{ID: uuid.New(), UserID: userID, TradingPair: "BTC/USDT"}})
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	trades, err := client.ListActiveTrades(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC/USDT", trades[0].TradingPair)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetProfile_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	_, err := client.GetProfile(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngineSettings_Resolve(t *testing.T) {
	general := models.EngineGeneral
	def := models.EngineDefault

	assert.Equal(t, models.EngineRising, EngineSettings{}.Resolve())
	assert.Equal(t, models.EngineGeneral, EngineSettings{Global: &general}.Resolve())
	assert.Equal(t, models.EngineGeneral, EngineSettings{UserOverride: &def, Global: &general}.Resolve())
}

func TestGetPrices_ReadsServerQuotes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/prices", r.URL.Path)
		assert.Equal(t, "BTC/USDT,EUR/USD", r.URL.Query().Get("pairs"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"BTC/USDT":94500,"EUR/USD":1.0834}`))
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	quotes := client.GetPrices(context.Background(), map[string]models.MarketType{
		"EUR/USD":  models.MarketForex,
		"BTC/USDT": models.MarketCrypto,
	})

	assert.Equal(t, map[string]float64{"BTC/USDT": 94500, "EUR/USD": 1.0834}, quotes)
}

func TestGetPrice_ServerDownYieldsZero(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"pairs is required"}`))
	})

	client, server := setupTestServer(handler)
	defer server.Close()

	assert.Zero(t, client.GetPrice(context.Background(), "EUR/USD", models.MarketForex))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
