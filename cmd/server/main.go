package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-invest-platform-go/internal/api"
	"crypto-invest-platform-go/internal/cache"
	"crypto-invest-platform-go/internal/coingecko"
	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/database"
	"crypto-invest-platform-go/internal/logger"
	"crypto-invest-platform-go/internal/market"
	"crypto-invest-platform-go/internal/realtime"
	"crypto-invest-platform-go/internal/settlement"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Server.JWTSecret == "" {
		log.Fatal("server.jwt_secret must be set")
	}

	// Connect to the database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Market data
	restClient := coingecko.NewRestClient(&cfg.Market, log)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.Market.PriceTimeout)
	if err := restClient.Ping(pingCtx); err != nil {
		log.Warn("Market data provider unreachable, prices will be simulated until it recovers", zap.Error(err))
	}
	cancelPing()

	priceStore, candleStore := newCaches(cfg, log)
	history := market.NewHistory(cfg.Market.HistorySize)
	prices := market.NewPriceSource(restClient, priceStore, market.NewSimulator(time.Now().UnixNano(), time.Now), history, market.PriceOptions{
		TTL:     cfg.Market.PriceTTL,
		Timeout: cfg.Market.PriceTimeout,
		PairIDs: market.PairIDs(cfg.Market.PairIDs),
	}, log)
	// The server's price source is the only one trades settle against.
	feed := realtime.NewFeed(cfg.Realtime.Buffer, log)
	svc := settlement.NewService(db, feed, settlement.Options{
		PaymentBucket: cfg.Settlement.PaymentBucket,
		Prices:        prices,
	}, log)

	candles := market.NewCandleService(restClient, prices, history, candleStore, market.CandleOptions{
		TTL:     cfg.Market.CandleTTL,
		Timeout: cfg.Market.OHLCTimeout,
		Count:   cfg.Market.CandleCount,
		Seed:    time.Now().UnixNano(),
	}, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := settlement.NewWorker(svc, prices, cfg.Settlement.SyncInterval, cfg.Settlement.AccrueInterest, log)
	go worker.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Backend:   svc,
		Store:     svc,
		Prices:    prices,
		Candles:   candles,
		Realtime:  realtime.NewHandler(feed, api.UserFromRequest, log),
		JWTSecret: cfg.Server.JWTSecret,
		Logger:    log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting web server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}

// newCaches picks the backing store for quotes and candles.
func newCaches(cfg config.Config, log *zap.Logger) (cache.Store[float64], cache.Store[[]market.Candle]) {
	if cfg.Cache.Driver == "redis" {
		rdb, err := cache.NewRedisClient(cfg.Cache.Redis)
		if err == nil {
			log.Info("Using redis cache", zap.String("addr", cfg.Cache.Redis.Addr))
			return cache.NewRedisStore[float64](rdb, cfg.Cache.Redis.Prefix+"price:", log),
				cache.NewRedisStore[[]market.Candle](rdb, cfg.Cache.Redis.Prefix+"candles:", log)
		}
		log.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
	}
	return cache.NewMemoryStore[float64](time.Now), cache.NewMemoryStore[[]market.Candle](time.Now)
}
