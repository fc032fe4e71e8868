package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-invest-platform-go/internal/account"
	"crypto-invest-platform-go/internal/api"
	"crypto-invest-platform-go/internal/apperr"
	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/trader"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	openCMD = cli.Command{
		Name:      "open",
		Usage:     "open a trade",
		ArgsUsage: "SYMBOL",
		Action:    withSession(openAction),
		Flags: []cli.Flag{
			cli.StringFlag{Name: "type", Value: string(models.TradeBuy), Usage: "buy or sell"},
			cli.StringFlag{Name: "amount", Usage: "stake to commit"},
			cli.StringFlag{Name: "source", Value: models.BucketUSDT, Usage: "balance bucket funding the trade"},
			cli.StringFlag{Name: "signal", Usage: "purchased signal id (required by the rising engine)"},
			cli.Float64Flag{Name: "stop-loss", Usage: "liquidate when the price crosses this level against the trade"},
			cli.Float64Flag{Name: "take-profit", Usage: "liquidate when the price reaches this level"},
			cli.StringFlag{Name: "duration", Value: string(models.DurationUnlimited), Usage: "1h, 6h, 24h, 7d or unlimited"},
		},
		Description: `Resync the asset price and open a trade with one atomic call`,
	}
	closeCMD = cli.Command{
		Name:      "close",
		Usage:     "close one active trade",
		ArgsUsage: "TRADE_ID",
		Action:    withSession(closeAction),
	}
	stopAllCMD = cli.Command{
		Name:   "stop-all",
		Usage:  "close every active trade",
		Action: withSession(stopAllAction),
	}
	swapCMD = cli.Command{
		Name:      "swap",
		Usage:     "swap between crypto balances at 1:1",
		ArgsUsage: "FROM TO AMOUNT",
		Action:    withSession(swapAction),
	}
	buySignalCMD = cli.Command{
		Name:      "buy-signal",
		Usage:     "purchase a signal by name or id",
		ArgsUsage: "SIGNAL",
		Action:    withSession(buySignalAction),
	}
	adjustBalanceCMD = cli.Command{
		Name:      "adjust-balance",
		Usage:     "adjust a user's balance (admin only)",
		ArgsUsage: "USER_ID BUCKET add|subtract|set AMOUNT",
		Action:    withSession(adjustBalanceAction),
		Flags: []cli.Flag{
			cli.StringFlag{Name: "reason", Usage: "audit note stored with the adjustment"},
		},
	}
	positionsCMD = cli.Command{
		Name:   "positions",
		Usage:  "show balances and active trades",
		Action: withSession(positionsAction),
		Flags: []cli.Flag{
			cli.IntFlag{Name: "history", Usage: "also show this many closed trades"},
		},
	}
	watchCMD = cli.Command{
		Name:   "watch",
		Usage:  "keep prices, profits and balances live until interrupted",
		Action: withSession(watchAction),
		Flags: []cli.Flag{
			cli.IntFlag{Name: "api-port", Usage: "serve /status and /positions on this port (0 disables)"},
		},
	}
	tokenCMD = cli.Command{
		Name:   "token",
		Usage:  "mint a bearer token for a user",
		Action: tokenAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "secret", Usage: "signing secret (defaults to server.jwt_secret)"},
			cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
		},
	}
)

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, cli.NewExitError(fmt.Sprintf("invalid amount %q", raw), 1)
	}
	return amount, nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, cli.NewExitError(fmt.Sprintf("invalid %s %q", what, raw), 1)
	}
	return id, nil
}

func openAction(ctx context.Context, c *cli.Context, s *session) error {
	symbol := c.Args().First()
	if symbol == "" {
		return cli.NewExitError("usage: trader open SYMBOL --amount N", 1)
	}

	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return userError(apperr.FromBackend(err))
	}
	var assetID uuid.UUID
	for _, a := range assets {
		if strings.EqualFold(a.Symbol, symbol) {
			assetID = a.ID
			break
		}
	}
	if assetID == uuid.Nil {
		return cli.NewExitError(fmt.Sprintf("unknown asset %q", symbol), 1)
	}

	amount, err := parseAmount(c.String("amount"))
	if err != nil {
		return err
	}

	req := trader.OpenRequest{
		AssetID:       assetID,
		TradeType:     models.TradeType(c.String("type")),
		Amount:        amount,
		BalanceSource: c.String("source"),
		Duration:      models.Duration(c.String("duration")),
	}
	if raw := c.String("signal"); raw != "" {
		if req.PurchasedSignalID, err = parseID(raw, "purchased signal id"); err != nil {
			return err
		}
	}
	if c.IsSet("stop-loss") {
		v := c.Float64("stop-loss")
		req.StopLoss = &v
	}
	if c.IsSet("take-profit") {
		v := c.Float64("take-profit")
		req.TakeProfit = &v
	}

	tradeID, err := s.engine.OpenTrade(ctx, req)
	if err != nil {
		return userError(err)
	}
	fmt.Printf("Trade opened: %s\n", tradeID)
	return nil
}

func closeAction(ctx context.Context, c *cli.Context, s *session) error {
	tradeID, err := parseID(c.Args().First(), "trade id")
	if err != nil {
		return err
	}
	if err := s.engine.CloseTrade(ctx, tradeID); err != nil {
		return userError(err)
	}
	fmt.Println("Trade closed.")
	return nil
}

func stopAllAction(ctx context.Context, _ *cli.Context, s *session) error {
	res, err := s.engine.StopAll(ctx)
	if err != nil {
		return userError(err)
	}
	fmt.Printf("%s (%d trades, total profit %s)\n", res.Message, res.TradesStopped, res.TotalProfit.StringFixed(2))
	return nil
}

func swapAction(ctx context.Context, c *cli.Context, s *session) error {
	if c.NArg() != 3 {
		return cli.NewExitError("usage: trader swap FROM TO AMOUNT", 1)
	}
	amount, err := parseAmount(c.Args().Get(2))
	if err != nil {
		return err
	}
	snap, err := s.account.Swap(ctx, c.Args().Get(0), c.Args().Get(1), amount)
	if err != nil {
		return userError(err)
	}
	printBalances(snap)
	return nil
}

func buySignalAction(ctx context.Context, c *cli.Context, s *session) error {
	ref := c.Args().First()
	if ref == "" {
		return cli.NewExitError("usage: trader buy-signal SIGNAL", 1)
	}

	signalID, err := uuid.Parse(ref)
	if err != nil {
		signalID = uuid.Nil
		signals, err := s.store.ListSignals(ctx)
		if err != nil {
			return userError(apperr.FromBackend(err))
		}
		for _, sig := range signals {
			if strings.EqualFold(sig.Name, ref) {
				signalID = sig.ID
				break
			}
		}
		if signalID == uuid.Nil {
			return cli.NewExitError(fmt.Sprintf("unknown signal %q", ref), 1)
		}
	}

	res, err := s.account.PurchaseSignal(ctx, signalID)
	if err != nil {
		return userError(err)
	}
	fmt.Printf("Purchased %s for %s.\n", res.SignalName, res.AmountPaid.StringFixed(2))
	if res.PurchasedSignalID != nil {
		fmt.Printf("Use --signal %s when opening trades.\n", res.PurchasedSignalID)
	}
	return nil
}

func adjustBalanceAction(ctx context.Context, c *cli.Context, s *session) error {
	if c.NArg() != 4 {
		return cli.NewExitError("usage: trader adjust-balance USER_ID BUCKET add|subtract|set AMOUNT", 1)
	}
	userID, err := parseID(c.Args().Get(0), "user id")
	if err != nil {
		return err
	}
	amount, err := parseAmount(c.Args().Get(3))
	if err != nil {
		return err
	}
	msg, err := s.account.AdjustBalance(ctx, userID, c.Args().Get(1), c.Args().Get(2), amount, c.String("reason"))
	if err != nil {
		return userError(err)
	}
	fmt.Println(msg)
	return nil
}

func positionsAction(ctx context.Context, c *cli.Context, s *session) error {
	snap, err := s.account.Balances(ctx)
	if err != nil {
		return userError(err)
	}
	printBalances(snap)

	if err := s.engine.Refresh(ctx); err != nil {
		return userError(apperr.FromBackend(err))
	}
	printPositions(s.engine.Positions())

	if limit := c.Int("history"); limit > 0 {
		trades, err := s.engine.History(ctx, limit)
		if err != nil {
			return userError(err)
		}
		fmt.Println("Closed trades:")
		for _, t := range trades {
			fmt.Printf("  %s %-9s %-4s %10s -> %10s (%s%%) %s\n",
				t.ID, t.TradingPair, t.TradeType, t.InitialAmount.StringFixed(2),
				t.Equity().StringFixed(2), models.PercentPnL(t.CurrentProfit, t.InitialAmount), t.Status)
		}
	}
	return nil
}

func watchAction(ctx context.Context, c *cli.Context, s *session) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var apiServer *trader.APIServer
	if port := c.Int("api-port"); port > 0 {
		apiServer = trader.NewAPIServer(s.engine, port, s.log)
		apiServer.Start()
	}

	watcher := account.NewWatcher(s.userID, s.backend, s.store, s.subscriber, s.view, account.WatcherOptions{
		Poll: s.cfg.Client.DashboardPoll,
		OnUpdate: func(snap account.Snapshot) {
			s.log.Info("Balances updated",
				zap.String("origin", snap.Origin.String()),
				zap.Uint64("seq", snap.Seq),
				zap.String("net", snap.Net.StringFixed(2)),
			)
		},
	}, s.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.engine.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	err := g.Wait()

	if apiServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
			s.log.Error("Failed to stop API server", zap.Error(stopErr))
		}
	}
	s.log.Info("Trader has been shut down.")
	return userError(err)
}

func tokenAction(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	rawUser := c.GlobalString("user")
	if rawUser == "" {
		rawUser = cfg.Client.UserID
	}
	userID, err := parseID(rawUser, "user id")
	if err != nil {
		return err
	}

	secret := c.String("secret")
	if secret == "" {
		secret = cfg.Server.JWTSecret
	}
	token, err := api.IssueToken(secret, userID, c.Duration("ttl"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(token)
	return nil
}

func printBalances(snap account.Snapshot) {
	fmt.Printf("Net %s | BTC %s | ETH %s | USDT %s | Interest %s | Commissions %s\n",
		snap.Net.StringFixed(2), snap.BTC.StringFixed(2), snap.ETH.StringFixed(2),
		snap.USDT.StringFixed(2), snap.Interest.StringFixed(2), snap.Commissions.StringFixed(2))
}

func printPositions(positions []trader.Position) {
	if len(positions) == 0 {
		fmt.Println("No active trades.")
		return
	}
	fmt.Println("Active trades:")
	for _, p := range positions {
		t := p.Trade
		fmt.Printf("  %s %-9s %-4s %10s equity %10s (%s%%) %s\n",
			t.ID, t.TradingPair, t.TradeType, t.InitialAmount.StringFixed(2),
			p.Equity.StringFixed(2), p.PercentPnL, t.Engine)
	}
}
