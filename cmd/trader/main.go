package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"crypto-invest-platform-go/internal/account"
	"crypto-invest-platform-go/internal/apperr"
	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/cache"
	"crypto-invest-platform-go/internal/coingecko"
	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/database"
	"crypto-invest-platform-go/internal/logger"
	"crypto-invest-platform-go/internal/market"
	"crypto-invest-platform-go/internal/realtime"
	"crypto-invest-platform-go/internal/settlement"
	"crypto-invest-platform-go/internal/trader"
	"github.com/google/uuid"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "trader"
	app.Usage = "Open, watch and close trades on the investment platform"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Value: "./configs", Usage: "directory holding config.yml"},
		cli.StringFlag{Name: "user", Usage: "user id to act as (defaults to client.user_id)"},
	}

	app.Commands = []cli.Command{
		openCMD,
		closeCMD,
		stopAllCMD,
		swapCMD,
		buySignalCMD,
		adjustBalanceCMD,
		positionsCMD,
		watchCMD,
		tokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is everything a command needs to act for one user.
type session struct {
	cfg        config.Config
	log        *zap.Logger
	userID     uuid.UUID
	backend    backend.Backend
	store      backend.Store
	subscriber realtime.Subscriber
	prices     trader.PriceSource
	view       *account.View
	account    *account.Service
	engine     *trader.Engine
}

// newSession loads configuration and connects to the backend selected by backend.mode.
func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}

	s := &session{cfg: cfg, log: log}

	rawUser := c.GlobalString("user")
	if rawUser == "" {
		rawUser = cfg.Client.UserID
	}
	if rawUser != "" {
		if s.userID, err = uuid.Parse(rawUser); err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", rawUser, err)
		}
	}

	switch cfg.Backend.Mode {
	case "remote":
		// Prices come from the server, which settles against its own quotes.
		client := backend.NewHTTPClient(&cfg.Backend, log)
		s.backend, s.store, s.prices = client, client, client
		s.subscriber = realtime.NewClient(cfg.Realtime.URL, cfg.Backend.Token, cfg.Realtime.Buffer, log)
		log.Info("Using remote backend", zap.String("base_url", cfg.Backend.BaseURL))
	case "local", "":
		db, err := database.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		prices := newPriceSource(cfg, log)
		feed := realtime.NewFeed(cfg.Realtime.Buffer, log)
		svc := settlement.NewService(db, feed, settlement.Options{
			PaymentBucket: cfg.Settlement.PaymentBucket,
			Prices:        prices,
		}, log)
		s.backend, s.store, s.subscriber, s.prices = svc, svc, feed, prices
		log.Debug("Using in-process backend", zap.String("driver", cfg.Database.Driver))
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}

	s.view = account.NewView(time.Now)
	s.account = account.NewService(s.userID, s.backend, s.store, s.view, log)
	s.engine = trader.NewEngine(s.userID, s.backend, s.store, s.prices, s.account, trader.Options{Poll: cfg.Client.TradingPoll}, log)
	return s, nil
}

// newPriceSource builds the one price source shared by the engine and the in-process settlement.
func newPriceSource(cfg config.Config, log *zap.Logger) *market.PriceSource {
	restClient := coingecko.NewRestClient(&cfg.Market, log)
	return market.NewPriceSource(restClient, cache.NewMemoryStore[float64](time.Now), market.NewSimulator(time.Now().UnixNano(), time.Now),
		market.NewHistory(cfg.Market.HistorySize), market.PriceOptions{
			TTL:     cfg.Market.PriceTTL,
			Timeout: cfg.Market.PriceTimeout,
			PairIDs: market.PairIDs(cfg.Market.PairIDs),
		}, log)
}

func (s *session) close() {
	_ = s.log.Sync()
}

// requireUser fails commands that act for a user when none was configured.
func (s *session) requireUser() error {
	if s.userID == uuid.Nil {
		return cli.NewExitError("no user selected: pass --user or set client.user_id", 1)
	}
	return nil
}

// userError turns a classified error into the message shown to the user.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return cli.NewExitError(apperr.UserMessage(err), 1)
}

// withSession runs action with a connected session for the selected user.
func withSession(action func(ctx context.Context, c *cli.Context, s *session) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.requireUser(); err != nil {
			return err
		}
		return action(context.Background(), c, s)
	}
}
