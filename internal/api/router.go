// Package api serves the backend over HTTP: the RPC contract, filtered row reads, the
// realtime feed and the market data endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/market"
	"crypto-invest-platform-go/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// PriceLookup resolves prices for many pairs at once.
type PriceLookup interface {
	GetPrices(ctx context.Context, pairs map[string]models.MarketType) map[string]float64
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Backend   backend.Backend
	Store     backend.Store
	Prices    PriceLookup
	Candles   market.CandleSource
	Realtime  http.Handler
	JWTSecret string
	Logger    *zap.Logger
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	backend  backend.Backend
	store    backend.Store
	prices   PriceLookup
	candles  market.CandleSource
	realtime http.Handler
	secret   string
	now      func() time.Time
	log      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		backend:  d.Backend,
		store:    d.Store,
		prices:   d.Prices,
		candles:  d.Candles,
		realtime: d.Realtime,
		secret:   d.JWTSecret,
		now:      time.Now,
		log:      d.Logger.Named("api"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			h.log.Error("Failed to write health response", zap.Error(err))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/rpc/{name}", h.RPCHandler)

		r.Route("/rows", func(r chi.Router) {
			r.Get("/profiles/{id}", h.ProfileHandler)
			r.Get("/trades", h.TradesHandler)
			r.Get("/tradeable_assets", h.AssetsHandler)
			r.Get("/tradeable_assets/{id}", h.AssetHandler)
			r.Get("/signals", h.SignalsHandler)
			r.Get("/purchased_signals", h.PurchasedSignalsHandler)
			r.Get("/purchased_signals/{id}", h.PurchasedSignalHandler)
			r.Get("/engine_settings", h.EngineSettingsHandler)
			r.Get("/transactions", h.TransactionsHandler)
			r.Post("/transactions", h.InsertTransactionsHandler)
		})

		if h.realtime != nil {
			r.Handle("/realtime", h.realtime)
		}

		r.Get("/api/prices", h.PricesHandler)
		r.Get("/api/candles", h.CandlesHandler)
		r.Get("/api/chart/rising", h.RisingChartHandler)
		r.Get("/api/statistics", h.StatisticsHandler)
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, backend.ErrorBody{Error: msg})
}

// writeBackendError maps errors from the backend to status codes the HTTP client understands.
func (h *Handler) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var rpcErr *backend.RPCError
	switch {
	case errors.As(err, &rpcErr):
		h.writeError(w, http.StatusUnprocessableEntity, rpcErr.Message)
	case errors.Is(err, backend.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	default:
		h.log.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
