package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"crypto-invest-platform-go/internal/cache"
	"crypto-invest-platform-go/internal/coingecko"
	"crypto-invest-platform-go/internal/models"
	"go.uber.org/zap"
)

// Candle is one OHLC bar. Time is unix seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Timeframe is a chart resolution and the provider lookback it maps to.
type Timeframe struct {
	Name         string
	Interval     time.Duration
	LookbackDays int
}

var timeframes = map[string]Timeframe{
	"1m":  {"1m", time.Minute, 1},
	"5m":  {"5m", 5 * time.Minute, 1},
	"15m": {"15m", 15 * time.Minute, 1},
	"30m": {"30m", 30 * time.Minute, 1},
	"1h":  {"1h", time.Hour, 7},
	"4h":  {"4h", 4 * time.Hour, 14},
	"1d":  {"1d", 24 * time.Hour, 30},
}

func ParseTimeframe(name string) (Timeframe, error) {
	tf, ok := timeframes[name]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q", name)
	}
	return tf, nil
}

const (
	DefaultCandleCount = 30
	minHistorySamples  = 5
	flatCenter         = 100.0
)

// Synthesize fabricates count candles ending at current. A missing or invalid current
// price yields a flat series around 100.
func Synthesize(current float64, count int, interval time.Duration, end time.Time, rng *rand.Rand) []Candle {
	if count <= 0 {
		count = DefaultCandleCount
	}
	if interval <= 0 {
		interval = time.Minute
	}
	candles := make([]Candle, count)
	start := end.Add(-time.Duration(count-1) * interval)

	if current <= 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		for i := range candles {
			candles[i] = Candle{
				Time:  start.Add(time.Duration(i) * interval).Unix(),
				Open:  flatCenter,
				High:  flatCenter * 1.005,
				Low:   flatCenter * 0.995,
				Close: flatCenter,
			}
		}
		return candles
	}

	// Walk backwards from the current price so the last close is exact.
	closes := make([]float64, count)
	closes[count-1] = current
	for i := count - 2; i >= 0; i-- {
		trend := 0.002 * math.Sin(float64(i)/4)
		noise := (rng.Float64()*2 - 1) * 0.003
		closes[i] = closes[i+1] * (1 - trend - noise)
	}

	open := closes[0] * (1 + (rng.Float64()*2-1)*0.001)
	for i := range candles {
		cl := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		candles[i] = Candle{
			Time:  start.Add(time.Duration(i) * interval).Unix(),
			Open:  open,
			High:  math.Max(open, cl) * (1 + rng.Float64()*0.002),
			Low:   math.Min(open, cl) * (1 - rng.Float64()*0.002),
			Close: cl,
		}
	}
	return candles
}

// FromHistory groups recorded samples into at most count candles, oldest first.
func FromHistory(samples []Sample, count int) []Candle {
	if len(samples) == 0 {
		return []Candle{}
	}
	if count <= 0 {
		count = DefaultCandleCount
	}
	chunk := (len(samples) + count - 1) / count

	candles := make([]Candle, 0, count)
	for i := 0; i < len(samples); i += chunk {
		end := i + chunk
		if end > len(samples) {
			end = len(samples)
		}
		group := samples[i:end]
		c := Candle{
			Time:  group[len(group)-1].Time.Unix(),
			Open:  group[0].Price,
			High:  group[0].Price,
			Low:   group[0].Price,
			Close: group[len(group)-1].Price,
		}
		for _, s := range group[1:] {
			c.High = math.Max(c.High, s.Price)
			c.Low = math.Min(c.Low, s.Price)
		}
		candles = append(candles, c)
	}
	return candles
}

// CandleSource is anything that can produce a candle series.
type CandleSource interface {
	GetCandles(ctx context.Context, pair, timeframe string, marketType models.MarketType) ([]Candle, error)
}

// CandleOptions tunes a CandleService.
type CandleOptions struct {
	TTL     time.Duration
	Timeout time.Duration
	Count   int
	Seed    int64
	Now     func() time.Time
}

// CandleService returns provider OHLC data when available and synthesized candles otherwise.
type CandleService struct {
	client  coingecko.RestClientInterface
	prices  *PriceSource
	history *History
	cache   cache.Store[[]Candle]
	ttl     time.Duration
	timeout time.Duration
	count   int
	now     func() time.Time
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ CandleSource = (*CandleService)(nil)

func NewCandleService(client coingecko.RestClientInterface, prices *PriceSource, history *History, store cache.Store[[]Candle], opts CandleOptions, logger *zap.Logger) *CandleService {
	if opts.TTL <= 0 {
		opts.TTL = 60 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Count <= 0 {
		opts.Count = DefaultCandleCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CandleService{
		client:  client,
		prices:  prices,
		history: history,
		cache:   store,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		count:   opts.Count,
		now:     opts.Now,
		logger:  logger.Named("candles"),
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}
}

func candleKey(pair string, tf Timeframe) string {
	return pair + "|" + tf.Name
}

// GetCandles returns the candle series of pair. A canceled ctx yields an empty series
// and leaves the cache untouched. The only error is an unknown timeframe.
func (s *CandleService) GetCandles(ctx context.Context, pair, timeframe string, marketType models.MarketType) ([]Candle, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	if id, ok := s.prices.ProviderID(pair, marketType); ok {
		key := candleKey(pair, tf)
		if candles, ok := s.cache.Get(ctx, key); ok {
			return candles, nil
		}

		candles, err := s.fetch(ctx, id, tf)
		if ctx.Err() != nil {
			return []Candle{}, nil
		}
		if err == nil && len(candles) > 0 {
			s.cache.Set(ctx, key, candles, s.ttl)
			return candles, nil
		}
		if err != nil {
			s.logger.Warn("OHLC unavailable, synthesizing", zap.String("pair", pair), zap.String("timeframe", tf.Name), zap.Error(err))
		}
	}

	if ctx.Err() != nil {
		return []Candle{}, nil
	}
	return s.synthesize(ctx, pair, tf, marketType), nil
}

func (s *CandleService) fetch(ctx context.Context, id string, tf Timeframe) ([]Candle, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	points, err := s.client.OHLC(fetchCtx, id, tf.LookbackDays)
	if err != nil {
		return nil, err
	}
	candles := make([]Candle, len(points))
	for i, p := range points {
		candles[i] = Candle{
			Time:  p.Time / 1000,
			Open:  p.Open,
			High:  p.High,
			Low:   p.Low,
			Close: p.Close,
		}
	}
	return candles, nil
}

func (s *CandleService) synthesize(ctx context.Context, pair string, tf Timeframe, marketType models.MarketType) []Candle {
	if samples := s.history.Snapshot(pair); len(samples) >= minHistorySamples {
		return FromHistory(samples, s.count)
	}

	price := s.prices.GetPrice(ctx, pair, marketType)

	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return Synthesize(price, s.count, tf.Interval, s.now(), s.rng)
}
