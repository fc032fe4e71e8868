package account

import (
	"context"

	"crypto-invest-platform-go/internal/apperr"
	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service performs the user's balance operations. Nothing is applied locally until the
// server confirms; the view is then refreshed from the stored row.
type Service struct {
	userID  uuid.UUID
	backend backend.Backend
	store   backend.Store
	view    *View
	logger  *zap.Logger
}

func NewService(userID uuid.UUID, be backend.Backend, store backend.Store, view *View, logger *zap.Logger) *Service {
	return &Service{
		userID:  userID,
		backend: be,
		store:   store,
		view:    view,
		logger:  logger.Named("account").With(zap.String("user_id", userID.String())),
	}
}

// Balances returns the current snapshot, fetching it when the view is still empty.
func (s *Service) Balances(ctx context.Context) (Snapshot, error) {
	if snap, ok := s.view.Current(); ok {
		return snap, nil
	}
	return s.refresh(ctx)
}

// Available returns the amount held in bucket according to the current snapshot.
func (s *Service) Available(ctx context.Context, bucket string) (decimal.Decimal, error) {
	snap, err := s.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	available, _ := snap.Bucket(bucket)
	return available, nil
}

// Swap moves amount from one crypto bucket to another at 1:1.
func (s *Service) Swap(ctx context.Context, from, to string, amount decimal.Decimal) (Snapshot, error) {
	if from == to {
		return Snapshot{}, apperr.Validation("choose two different balances to swap")
	}
	if !models.IsSwappableBucket(from) || !models.IsSwappableBucket(to) {
		return Snapshot{}, apperr.Validation("only btc, eth and usdt balances can be swapped")
	}
	if !amount.IsPositive() {
		return Snapshot{}, apperr.Validation("amount must be greater than zero")
	}
	current, err := s.Balances(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	available, _ := current.Bucket(from)
	if amount.GreaterThan(available) {
		return Snapshot{}, apperr.Validation("insufficient %s: available %s", from, available.StringFixed(2))
	}

	res, err := s.backend.SwapBalances(ctx, backend.SwapRequest{UserID: s.userID, FromBucket: from, ToBucket: to, Amount: amount})
	if err != nil {
		return Snapshot{}, s.fail("swap", err)
	}
	if !res.Success {
		return Snapshot{}, apperr.Rejected(res.Error)
	}

	s.logger.Info("Balances swapped", zap.String("from", from), zap.String("to", to), zap.String("amount", amount.String()))
	return s.refresh(ctx)
}

// PurchaseSignal buys a signal and returns the new ownership record.
func (s *Service) PurchaseSignal(ctx context.Context, signalID uuid.UUID) (backend.PurchaseSignalResult, error) {
	if signalID == uuid.Nil {
		return backend.PurchaseSignalResult{}, apperr.Validation("select a signal")
	}
	res, err := s.backend.PurchaseSignal(ctx, s.userID, signalID)
	if err != nil {
		return backend.PurchaseSignalResult{}, s.fail("purchase signal", err)
	}
	if !res.Success {
		return backend.PurchaseSignalResult{}, apperr.Rejected(res.Error)
	}
	if _, err := s.refresh(ctx); err != nil {
		s.logger.Warn("Balance refresh after purchase failed", zap.Error(err))
	}
	return res, nil
}

// AdjustBalance applies an admin adjustment to another user's bucket. The acting user is the admin.
func (s *Service) AdjustBalance(ctx context.Context, userID uuid.UUID, bucket, action string, amount decimal.Decimal, reason string) (string, error) {
	if userID == uuid.Nil {
		return "", apperr.Validation("select a user")
	}
	if !models.IsComponentBucket(bucket) {
		return "", apperr.Validation("invalid balance type %q", bucket)
	}
	switch action {
	case backend.AdjustAdd, backend.AdjustSubtract, backend.AdjustSet:
	default:
		return "", apperr.Validation("invalid action %q", action)
	}
	if amount.IsNegative() {
		return "", apperr.Validation("amount cannot be negative")
	}

	res, err := s.backend.AdminAdjustUserBalance(ctx, backend.AdminAdjustRequest{
		AdminID:     s.userID,
		UserID:      userID,
		BalanceType: bucket,
		Action:      action,
		Amount:      amount,
		Reason:      reason,
	})
	if err != nil {
		return "", s.fail("adjust balance", err)
	}
	if !res.Success {
		return "", apperr.Rejected(res.Error)
	}
	return res.Message, nil
}

// RefreshBalances re-reads the profile row after money moved elsewhere.
func (s *Service) RefreshBalances(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

func (s *Service) refresh(ctx context.Context) (Snapshot, error) {
	p, err := s.store.GetProfile(ctx, s.userID)
	if err != nil {
		return Snapshot{}, s.fail("fetch profile", err)
	}
	return s.view.Apply(p, OriginAction), nil
}

func (s *Service) fail(op string, err error) error {
	classified := apperr.FromBackend(err)
	if apperr.IsKind(classified, apperr.KindUnexpected) {
		s.logger.Error("Operation failed", zap.String("op", op), zap.Error(err))
	}
	return classified
}
