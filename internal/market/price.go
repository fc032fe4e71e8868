package market

import (
	"context"
	"time"

	"crypto-invest-platform-go/internal/cache"
	"crypto-invest-platform-go/internal/coingecko"
	"crypto-invest-platform-go/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultPairIDs maps crypto pairs to market data provider ids.
var DefaultPairIDs = map[string]string{
	"BTC/USDT":   "bitcoin",
	"ETH/USDT":   "ethereum",
	"BNB/USDT":   "binancecoin",
	"SOL/USDT":   "solana",
	"XRP/USDT":   "ripple",
	"ADA/USDT":   "cardano",
	"DOGE/USDT":  "dogecoin",
	"DOT/USDT":   "polkadot",
	"AVAX/USDT":  "avalanche-2",
	"LINK/USDT":  "chainlink",
	"LTC/USDT":   "litecoin",
	"MATIC/USDT": "matic-network",
}

// PairIDs merges configured ids over the defaults.
func PairIDs(overrides map[string]string) map[string]string {
	ids := make(map[string]string, len(DefaultPairIDs)+len(overrides))
	for k, v := range DefaultPairIDs {
		ids[k] = v
	}
	for k, v := range overrides {
		ids[k] = v
	}
	return ids
}

// PriceOptions tunes a PriceSource.
type PriceOptions struct {
	TTL     time.Duration
	Timeout time.Duration
	PairIDs map[string]string
	Now     func() time.Time
}

// PriceSource returns a usable price for any pair: a cached or live quote when the
// provider knows the pair, a simulated one otherwise. It never fails.
type PriceSource struct {
	client  coingecko.RestClientInterface
	cache   cache.Store[float64]
	sim     *Simulator
	history *History
	ids     map[string]string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group
	logger  *zap.Logger
}

func NewPriceSource(client coingecko.RestClientInterface, store cache.Store[float64], sim *Simulator, history *History, opts PriceOptions, logger *zap.Logger) *PriceSource {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.PairIDs == nil {
		opts.PairIDs = DefaultPairIDs
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PriceSource{
		client:  client,
		cache:   store,
		sim:     sim,
		history: history,
		ids:     opts.PairIDs,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  logger.Named("price"),
	}
}

// ProviderID returns the market data id of a crypto pair.
func (p *PriceSource) ProviderID(pair string, marketType models.MarketType) (string, bool) {
	if marketType != models.MarketCrypto || p.client == nil {
		return "", false
	}
	id, ok := p.ids[pair]
	return id, ok
}

// GetPrice returns the current price of pair.
func (p *PriceSource) GetPrice(ctx context.Context, pair string, marketType models.MarketType) float64 {
	price := p.lookup(ctx, pair, marketType)
	p.history.Record(pair, price, p.now())
	return price
}

func (p *PriceSource) lookup(ctx context.Context, pair string, marketType models.MarketType) float64 {
	id, ok := p.ProviderID(pair, marketType)
	if !ok {
		return p.sim.Price(pair)
	}

	if price, ok := p.cache.Get(ctx, pair); ok {
		return price
	}

	v, err, _ := p.group.Do(pair, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		price, err := p.client.SpotPrice(fetchCtx, id)
		if err != nil {
			return 0.0, err
		}
		p.cache.Set(ctx, pair, price, p.ttl)
		return price, nil
	})
	if err != nil {
		p.logger.Warn("Live price unavailable, using simulation", zap.String("pair", pair), zap.Error(err))
		return p.sim.Price(pair)
	}
	return v.(float64)
}

// GetPrices resolves many pairs, fetching every uncached live quote in one request.
func (p *PriceSource) GetPrices(ctx context.Context, pairs map[string]models.MarketType) map[string]float64 {
	out := make(map[string]float64, len(pairs))
	missing := make(map[string]string)

	for pair, mt := range pairs {
		id, ok := p.ProviderID(pair, mt)
		if !ok {
			continue
		}
		if price, ok := p.cache.Get(ctx, pair); ok {
			out[pair] = price
			continue
		}
		missing[id] = pair
	}

	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		quotes, err := p.client.SpotPrices(fetchCtx, ids)
		cancel()
		if err != nil {
			p.logger.Warn("Live prices unavailable, using simulation", zap.Int("pairs", len(ids)), zap.Error(err))
		}
		for id, price := range quotes {
			if pair, ok := missing[id]; ok && price > 0 {
				p.cache.Set(ctx, pair, price, p.ttl)
				out[pair] = price
			}
		}
	}

	now := p.now()
	for pair := range pairs {
		if _, ok := out[pair]; !ok {
			out[pair] = p.sim.Price(pair)
		}
		p.history.Record(pair, out[pair], now)
	}
	return out
}

// Invalidate drops the cached quote of a pair so the next lookup goes to the provider.
func (p *PriceSource) Invalidate(ctx context.Context, pair string) {
	p.cache.Delete(ctx, pair)
}
