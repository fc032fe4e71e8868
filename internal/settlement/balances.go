package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SwapBalances moves amount between two crypto buckets at 1:1. The net balance is unchanged.
func (s *Service) SwapBalances(ctx context.Context, req backend.SwapRequest) (backend.Result, error) {
	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		if req.FromBucket == req.ToBucket {
			return reject("cannot swap a balance into itself")
		}
		if !models.IsSwappableBucket(req.FromBucket) || !models.IsSwappableBucket(req.ToBucket) {
			return reject("only btc, eth and usdt balances can be swapped")
		}
		if !req.Amount.IsPositive() {
			return reject("amount must be greater than zero")
		}

		p, err := s.loadProfile(tx, req.UserID)
		if err != nil {
			return err
		}
		available, _ := p.Bucket(req.FromBucket)
		if available.LessThan(req.Amount) {
			return reject("insufficient %s", req.FromBucket)
		}

		if err := p.AddToBucket(req.FromBucket, req.Amount.Neg()); err != nil {
			return err
		}
		if err := p.AddToBucket(req.ToBucket, req.Amount); err != nil {
			return err
		}
		if err := s.saveBalances(tx, ch, p); err != nil {
			return err
		}

		record := models.Transaction{
			UserID:      req.UserID,
			Type:        models.TxSwap,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Swapped %s from %s to %s", req.Amount.StringFixed(2), req.FromBucket, req.ToBucket),
		}
		return s.insertTransaction(tx, ch, &record)
	})

	if msg, ok := asRejection(err); ok {
		return backend.Result{Success: false, Error: msg}, nil
	}
	if err != nil {
		return backend.Result{}, err
	}
	return backend.Result{Success: true, Message: "Swap completed"}, nil
}

// PurchaseSignal debits the signal price from the payment bucket and grants ownership.
func (s *Service) PurchaseSignal(ctx context.Context, userID, signalID uuid.UUID) (backend.PurchaseSignalResult, error) {
	var result backend.PurchaseSignalResult

	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		var signal models.Signal
		if err := tx.First(&signal, "id = ?", signalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reject("signal not found")
			}
			return fmt.Errorf("failed to load signal: %w", err)
		}
		if !signal.Active {
			return reject("signal %s is no longer available", signal.Name)
		}

		p, err := s.loadProfile(tx, userID)
		if err != nil {
			return err
		}
		available, err := p.Bucket(s.paymentBucket)
		if err != nil {
			return err
		}
		if available.LessThan(signal.Price) {
			return reject("insufficient %s to purchase %s", s.paymentBucket, signal.Name)
		}
		if err := p.AddToBucket(s.paymentBucket, signal.Price.Neg()); err != nil {
			return err
		}
		if err := s.saveBalances(tx, ch, p); err != nil {
			return err
		}

		owned := models.PurchasedSignal{
			UserID:     userID,
			SignalID:   signal.ID,
			Status:     models.PurchasedSignalActive,
			AmountPaid: signal.Price,
		}
		if err := tx.Omit("Signal").Create(&owned).Error; err != nil {
			return fmt.Errorf("failed to record purchase: %w", err)
		}
		owned.Signal = signal
		ch.add(models.TablePurchasedSignals, realtime.Insert, userID, owned)

		ref := owned.ID
		record := models.Transaction{
			UserID:      userID,
			Type:        models.TxSignalPurchase,
			Amount:      signal.Price.Neg(),
			Description: fmt.Sprintf("Purchased signal %s", signal.Name),
			ReferenceID: &ref,
		}
		if err := s.insertTransaction(tx, ch, &record); err != nil {
			return err
		}

		result = backend.PurchaseSignalResult{
			Success:           true,
			SignalName:        signal.Name,
			AmountPaid:        signal.Price,
			PurchasedSignalID: &ref,
		}
		return nil
	})

	if msg, ok := asRejection(err); ok {
		return backend.PurchaseSignalResult{Success: false, Error: msg}, nil
	}
	if err != nil {
		return backend.PurchaseSignalResult{}, err
	}
	return result, nil
}

// AdminAdjustUserBalance lets an admin add to, subtract from or set a component bucket.
func (s *Service) AdminAdjustUserBalance(ctx context.Context, req backend.AdminAdjustRequest) (backend.Result, error) {
	var message string

	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		var admin models.Profile
		if err := tx.First(&admin, "id = ?", req.AdminID).Error; err != nil || !admin.IsAdmin {
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load admin: %w", err)
			}
			return reject("admin privileges required")
		}
		if !models.IsComponentBucket(req.BalanceType) {
			return reject("invalid balance type %q", req.BalanceType)
		}
		if req.Amount.IsNegative() {
			return reject("amount cannot be negative")
		}

		p, err := s.loadProfile(tx, req.UserID)
		if err != nil {
			return err
		}
		current, _ := p.Bucket(req.BalanceType)

		var next decimal.Decimal
		switch req.Action {
		case backend.AdjustAdd:
			if req.Amount.IsZero() {
				return reject("amount must be greater than zero")
			}
			next = current.Add(req.Amount)
		case backend.AdjustSubtract:
			if req.Amount.IsZero() {
				return reject("amount must be greater than zero")
			}
			if current.LessThan(req.Amount) {
				return reject("cannot subtract %s from %s: balance is %s", req.Amount.StringFixed(2), req.BalanceType, current.StringFixed(2))
			}
			next = current.Sub(req.Amount)
		case backend.AdjustSet:
			next = req.Amount
		default:
			return reject("invalid action %q", req.Action)
		}

		if err := p.SetBucket(req.BalanceType, next); err != nil {
			return err
		}
		if err := s.saveBalances(tx, ch, p); err != nil {
			return err
		}

		delta := next.Sub(current)
		reason := req.Reason
		if reason == "" {
			reason = "Balance adjustment"
		}
		ref := admin.ID
		record := models.Transaction{
			UserID:      req.UserID,
			Type:        models.TxAdminAdjustment,
			Amount:      delta,
			Description: fmt.Sprintf("%s (%s %s %s)", reason, req.Action, req.Amount.StringFixed(2), req.BalanceType),
			ReferenceID: &ref,
		}
		if err := s.insertTransaction(tx, ch, &record); err != nil {
			return err
		}

		message = fmt.Sprintf("%s updated from %s to %s", req.BalanceType, current.StringFixed(2), next.StringFixed(2))
		return nil
	})

	if msg, ok := asRejection(err); ok {
		return backend.Result{Success: false, Error: msg}, nil
	}
	if err != nil {
		return backend.Result{}, err
	}

	s.logger.Info("Balance adjusted by admin",
		zap.String("admin_id", req.AdminID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("balance_type", req.BalanceType),
		zap.String("action", req.Action),
	)
	return backend.Result{Success: true, Message: message}, nil
}

// UpdateLiveInterestEarned accrues the daily interest rate on the crypto buckets of every
// user, pro rata since the user's previous accrual. The first call only starts the clock.
func (s *Service) UpdateLiveInterestEarned(ctx context.Context) (backend.InterestResult, error) {
	result := backend.InterestResult{Accrued: decimal.Zero}

	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		rate, err := dailyInterestRate(tx)
		if err != nil {
			return err
		}

		var profiles []models.Profile
		if err := forUpdate(tx).Order("id").Find(&profiles).Error; err != nil {
			return fmt.Errorf("failed to load profiles: %w", err)
		}

		now := s.now()
		day := decimal.NewFromInt(int64(24 * time.Hour))

		for i := range profiles {
			p := &profiles[i]
			last := p.InterestAccruedAt
			if err := tx.Model(&models.Profile{}).Where("id = ?", p.ID).Update("interest_accrued_at", now).Error; err != nil {
				return fmt.Errorf("failed to stamp interest accrual: %w", err)
			}
			if last == nil || !rate.IsPositive() || !now.After(*last) {
				continue
			}

			principal := p.BTCBalance.Add(p.ETHBalance).Add(p.USDTBalance)
			if !principal.IsPositive() {
				continue
			}
			elapsed := decimal.NewFromInt(int64(now.Sub(*last))).Div(day)
			interest := principal.Mul(rate).Mul(elapsed).Round(8)
			if !interest.IsPositive() {
				continue
			}

			if err := p.AddToBucket(models.BucketInterest, interest); err != nil {
				return err
			}
			if err := s.saveBalances(tx, ch, p); err != nil {
				return err
			}
			result.Users++
			result.Accrued = result.Accrued.Add(interest)
		}
		return nil
	})
	if err != nil {
		return backend.InterestResult{}, err
	}
	return result, nil
}

func dailyInterestRate(tx *gorm.DB) (decimal.Decimal, error) {
	var setting models.AdminSetting
	err := tx.First(&setting, "setting_key = ?", models.SettingDailyInterestRate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load interest rate: %w", err)
	}
	rate, err := decimal.NewFromString(setting.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s setting %q: %w", models.SettingDailyInterestRate, setting.Value, err)
	}
	return rate, nil
}
