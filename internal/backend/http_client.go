package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/httpretry"
	"crypto-invest-platform-go/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxReadRetries = 3

// ErrorBody is the JSON body of every non-2xx server response.
type ErrorBody struct {
	Error string `json:"error"`
}

// HTTPClient talks to a remote server exposing /rpc and /rows.
// Reads are retried; RPCs are sent once since they move money.
type HTTPClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var (
	_ Backend = (*HTTPClient)(nil)
	_ Store   = (*HTTPClient)(nil)
)

func NewHTTPClient(cfg *config.Backend, logger *zap.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(20), 10),
		logger:  logger.Named("backend"),
	}
}

func (c *HTTPClient) rpc(ctx context.Context, name string, body, result any) error {
	req := c.client.R().SetContext(ctx).SetBody(body).SetError(&ErrorBody{})
	if result != nil {
		req.SetResult(result)
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/rpc/"+name, req, 1)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", name, err)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query map[string]string, result any) error {
	req := c.client.R().SetContext(ctx).SetQueryParams(query).SetResult(result).SetError(&ErrorBody{})
	_, err := c.doRequest(ctx, http.MethodGet, path, req, maxReadRetries)
	return err
}

// doRequest executes req, retrying throttling and server errors up to attempts times.
// 404 maps to ErrNotFound and 422 to the server's structured rejection.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, req *resty.Request, attempts int) (*resty.Response, error) {
	return httpretry.Do(ctx, c.limiter, httpretry.Policy{
		Attempts: attempts,
		Backoff:  250 * time.Millisecond,
		Classify: classify,
	}, c.logger, method, url, req)
}

func classify(resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return &RPCError{Message: errorMessage(resp)}
	}
	return nil
}

func errorMessage(resp *resty.Response) string {
	if body, ok := resp.Error().(*ErrorBody); ok && body.Error != "" {
		return body.Error
	}
	return resp.String()
}

func (c *HTTPClient) StartTradeValidated(ctx context.Context, req StartTradeRequest) (StartTradeResult, error) {
	var out StartTradeResult
	err := c.rpc(ctx, RPCStartTradeValidated, req, &out)
	return out, err
}

func (c *HTTPClient) SyncTradingPrices(ctx context.Context, updates []PriceUpdate) error {
	return c.rpc(ctx, RPCSyncTradingPrices, updates, nil)
}

func (c *HTTPClient) SyncTradingProfits(ctx context.Context) (SyncResult, error) {
	var out SyncResult
	err := c.rpc(ctx, RPCSyncTradingProfits, struct{}{}, &out)
	return out, err
}

func (c *HTTPClient) UpdateLiveInterestEarned(ctx context.Context) (InterestResult, error) {
	var out InterestResult
	err := c.rpc(ctx, RPCUpdateLiveInterestEarned, struct{}{}, &out)
	return out, err
}

func (c *HTTPClient) StopSingleTrade(ctx context.Context, tradeID, userID uuid.UUID) error {
	err := c.rpc(ctx, RPCStopSingleTrade, RPCRequest{UserID: userID, TradeID: tradeID}, nil)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return err
}

func (c *HTTPClient) StopAllUserTrades(ctx context.Context, userID uuid.UUID) (StopAllResult, error) {
	var out StopAllResult
	err := c.rpc(ctx, RPCStopAllUserTrades, RPCRequest{UserID: userID}, &out)
	return out, err
}

func (c *HTTPClient) SwapBalances(ctx context.Context, req SwapRequest) (Result, error) {
	var out Result
	err := c.rpc(ctx, RPCSwapBalances, req, &out)
	return out, err
}

func (c *HTTPClient) PurchaseSignal(ctx context.Context, userID, signalID uuid.UUID) (PurchaseSignalResult, error) {
	var out PurchaseSignalResult
	err := c.rpc(ctx, RPCPurchaseSignal, RPCRequest{UserID: userID, SignalID: signalID}, &out)
	return out, err
}

func (c *HTTPClient) AdminAdjustUserBalance(ctx context.Context, req AdminAdjustRequest) (Result, error) {
	var out Result
	err := c.rpc(ctx, RPCAdminAdjustUserBalance, req, &out)
	return out, err
}

func (c *HTTPClient) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var out models.Profile
	if err := c.get(ctx, "/rows/profiles/"+userID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListActiveTrades(ctx context.Context, userID uuid.UUID) ([]models.Trade, error) {
	var out []models.Trade
	err := c.get(ctx, "/rows/trades", map[string]string{
		"user_id": userID.String(),
		"status":  string(models.TradeActive),
	}, &out)
	return out, err
}

func (c *HTTPClient) ListTradeHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	var out []models.Trade
	err := c.get(ctx, "/rows/trades", map[string]string{
		"user_id": userID.String(),
		"status":  "closed",
		"limit":   strconv.Itoa(limit),
	}, &out)
	return out, err
}

func (c *HTTPClient) GetAsset(ctx context.Context, assetID uuid.UUID) (*models.TradeableAsset, error) {
	var out models.TradeableAsset
	if err := c.get(ctx, "/rows/tradeable_assets/"+assetID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListAssets(ctx context.Context) ([]models.TradeableAsset, error) {
	var out []models.TradeableAsset
	err := c.get(ctx, "/rows/tradeable_assets", nil, &out)
	return out, err
}

func (c *HTTPClient) ListSignals(ctx context.Context) ([]models.Signal, error) {
	var out []models.Signal
	err := c.get(ctx, "/rows/signals", nil, &out)
	return out, err
}

func (c *HTTPClient) GetPurchasedSignal(ctx context.Context, id uuid.UUID) (*models.PurchasedSignal, error) {
	var out models.PurchasedSignal
	if err := c.get(ctx, "/rows/purchased_signals/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListPurchasedSignals(ctx context.Context, userID uuid.UUID) ([]models.PurchasedSignal, error) {
	var out []models.PurchasedSignal
	err := c.get(ctx, "/rows/purchased_signals", map[string]string{"user_id": userID.String()}, &out)
	return out, err
}

func (c *HTTPClient) EngineSettings(ctx context.Context, userID uuid.UUID) (EngineSettings, error) {
	var out EngineSettings
	err := c.get(ctx, "/rows/engine_settings", map[string]string{"user_id": userID.String()}, &out)
	return out, err
}

func (c *HTTPClient) InsertTransactions(ctx context.Context, txs []models.Transaction) error {
	req := c.client.R().SetContext(ctx).SetBody(txs).SetError(&ErrorBody{})
	if _, err := c.doRequest(ctx, http.MethodPost, "/rows/transactions", req, 1); err != nil {
		return fmt.Errorf("failed to insert transactions: %w", err)
	}
	return nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := c.get(ctx, "/rows/transactions", map[string]string{
		"user_id": userID.String(),
		"limit":   strconv.Itoa(limit),
	}, &out)
	return out, err
}

// GetPrices reads the server's quotes for pairs. The server resolves market types itself;
// a failed read yields no quotes.
func (c *HTTPClient) GetPrices(ctx context.Context, pairs map[string]models.MarketType) map[string]float64 {
	out := make(map[string]float64, len(pairs))
	if len(pairs) == 0 {
		return out
	}
	names := make([]string, 0, len(pairs))
	for pair := range pairs {
		names = append(names, pair)
	}
	sort.Strings(names)

	if err := c.get(ctx, "/api/prices", map[string]string{"pairs": strings.Join(names, ",")}, &out); err != nil {
		c.logger.Warn("Failed to read server prices", zap.Strings("pairs", names), zap.Error(err))
		return map[string]float64{}
	}
	return out
}

// GetPrice reads the server's quote for one pair, 0 when it has none.
func (c *HTTPClient) GetPrice(ctx context.Context, pair string, marketType models.MarketType) float64 {
	return c.GetPrices(ctx, map[string]models.MarketType{pair: marketType})[pair]
}

// Invalidate does nothing: quotes are cached by the server.
func (c *HTTPClient) Invalidate(context.Context, string) {}
