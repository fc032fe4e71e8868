package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/httpretry"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	vsCurrency     = "usd"
	apiKeyHeader   = "x-cg-demo-api-key"
)

// ErrNoQuote is returned when the provider answered but had no price for the id.
var ErrNoQuote = errors.New("no quote for id")

// RestClientInterface defines the market data calls used by the price and candle services.
type RestClientInterface interface {
	Ping(ctx context.Context) error
	SpotPrice(ctx context.Context, id string) (float64, error)
	SpotPrices(ctx context.Context, ids []string) (map[string]float64, error)
	OHLC(ctx context.Context, id string, days int) ([]OHLCPoint, error)
}

// RestClient is a client for the CoinGecko public REST API.
type RestClient struct {
	client     *resty.Client
	apiKey     string
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
}

var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new market data client.
func NewRestClient(cfg *config.Market, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}

	client := resty.New().SetBaseURL(url)

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &RestClient{
		client:     client,
		apiKey:     cfg.ApiKey,
		logger:     logger.Named("coingecko"),
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
	}
}

func (c *RestClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader(apiKeyHeader, c.apiKey)
	}
	return req
}

// Ping checks that the provider is reachable.
func (c *RestClient) Ping(ctx context.Context) error {
	type pingResponse struct {
		GeckoSays string `json:"gecko_says"`
	}

	req := c.request(ctx).SetResult(&pingResponse{})
	if _, err := c.doRequest(ctx, http.MethodGet, "/ping", req); err != nil {
		return fmt.Errorf("failed to ping market data provider: %w", err)
	}
	return nil
}

// SpotPrice returns the USD price of a single coin id.
func (c *RestClient) SpotPrice(ctx context.Context, id string) (float64, error) {
	prices, err := c.SpotPrices(ctx, []string{id})
	if err != nil {
		return 0, err
	}
	price, ok := prices[id]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, id)
	}
	return price, nil
}

// SpotPrices returns USD prices keyed by coin id. Ids the provider does not know are absent.
func (c *RestClient) SpotPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	var body map[string]map[string]float64

	req := c.request(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetQueryParam("vs_currencies", vsCurrency).
		SetResult(&body)

	resp, err := c.doRequest(ctx, http.MethodGet, "/simple/price", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get spot prices: %w", err)
	}

	result := *resp.Result().(*map[string]map[string]float64)
	prices := make(map[string]float64, len(result))
	for id, quotes := range result {
		if p, ok := quotes[vsCurrency]; ok {
			prices[id] = p
		}
	}
	return prices, nil
}

// OHLCPoint is one provider candle. Time is the candle close in unix milliseconds.
type OHLCPoint struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// OHLC returns candles covering the last days for a coin id, oldest first.
func (c *RestClient) OHLC(ctx context.Context, id string, days int) ([]OHLCPoint, error) {
	var rows [][]float64

	req := c.request(ctx).
		SetQueryParam("vs_currency", vsCurrency).
		SetQueryParam("days", strconv.Itoa(days)).
		SetResult(&rows)

	resp, err := c.doRequest(ctx, http.MethodGet, "/coins/"+id+"/ohlc", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get ohlc for %s: %w", id, err)
	}

	result := *resp.Result().(*[][]float64)
	points := make([]OHLCPoint, 0, len(result))
	for _, row := range result {
		if len(row) < 5 {
			continue
		}
		points = append(points, OHLCPoint{
			Time:  int64(row[0]),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		})
	}
	return points, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	resp, err := httpretry.Do(ctx, c.limiter, httpretry.Policy{
		Attempts: c.maxRetries,
		Backoff:  time.Second,
	}, c.logger, method, url, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
