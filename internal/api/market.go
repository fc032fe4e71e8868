package api

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-invest-platform-go/internal/chart"
	"crypto-invest-platform-go/internal/market"
	"crypto-invest-platform-go/internal/models"
	"go.uber.org/zap"
)

const (
	defaultChartPoints = 60
	maxChartPoints     = 1000
)

// marketTypes maps every listed symbol to its market type.
func (h *Handler) marketTypes(r *http.Request) map[string]models.MarketType {
	types := make(map[string]models.MarketType)
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		h.log.Warn("Failed to list assets, treating pairs as forex", zap.Error(err))
		return types
	}
	for _, a := range assets {
		types[a.Symbol] = a.MarketType
	}
	return types
}

// PricesHandler returns the latest price of each pair in the comma separated pairs parameter.
func (h *Handler) PricesHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pairs")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "pairs is required")
		return
	}

	known := h.marketTypes(r)
	pairs := make(map[string]models.MarketType)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		mt, ok := known[pair]
		if !ok {
			mt = models.MarketForex
		}
		pairs[pair] = mt
	}

	h.writeJSON(w, http.StatusOK, h.prices.GetPrices(r.Context(), pairs))
}

func (h *Handler) CandlesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := q.Get("pair")
	if pair == "" {
		h.writeError(w, http.StatusBadRequest, "pair is required")
		return
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}
	if _, err := market.ParseTimeframe(timeframe); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mt := models.MarketType(q.Get("market_type"))
	if mt == "" {
		if known, ok := h.marketTypes(r)[pair]; ok {
			mt = known
		} else {
			mt = models.MarketForex
		}
	}

	candles, err := h.candles.GetCandles(r.Context(), pair, timeframe, mt)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, candles)
}

// RisingChartHandler renders the display series shown for rising-engine accounts.
func (h *Handler) RisingChartHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, _ := strconv.ParseFloat(q.Get("start"), 64)

	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		count = defaultChartPoints
	}
	count = min(count, maxChartPoints)

	interval, err := time.ParseDuration(q.Get("interval"))
	if err != nil || interval <= 0 {
		interval = time.Minute
	}

	now := h.now()
	rng := rand.New(rand.NewSource(now.UnixNano()))
	h.writeJSON(w, http.StatusOK, chart.Rising(start, count, interval, now, rng))
}
