// Package settlement is the in-process backend: every RPC runs in a single database
// transaction and publishes change events once committed.
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
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options tunes a Service.
type Options struct {
	// PaymentBucket is the bucket debited when a signal is purchased.
	PaymentBucket string
	// Prices quotes the market. Client-supplied prices are checked against it and
	// never stored; without it SyncTradingPrices stores nothing.
	Prices PriceProvider
	Now    func() time.Time
}

// Service implements backend.Backend and backend.Store over gorm.
type Service struct {
	db            *gorm.DB
	publisher     realtime.Publisher
	paymentBucket string
	prices        PriceProvider
	now           func() time.Time
	logger        *zap.Logger
}

var (
	_ backend.Backend = (*Service)(nil)
	_ backend.Store   = (*Service)(nil)
)

func NewService(db *gorm.DB, publisher realtime.Publisher, opts Options, logger *zap.Logger) *Service {
	if opts.PaymentBucket == "" {
		opts.PaymentBucket = models.BucketUSDT
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		db:            db,
		publisher:     publisher,
		paymentBucket: opts.PaymentBucket,
		prices:        opts.Prices,
		now:           opts.Now,
		logger:        logger.Named("settlement"),
	}
}

// rejection aborts a transaction with a message meant for the caller.
type rejection struct {
	msg string
}

func (r *rejection) Error() string { return r.msg }

func reject(format string, args ...any) error {
	return &rejection{msg: fmt.Sprintf(format, args...)}
}

func asRejection(err error) (string, bool) {
	var r *rejection
	if errors.As(err, &r) {
		return r.msg, true
	}
	return "", false
}

// changes collects the events of one transaction.
type changes struct {
	events []realtime.Event
	logger *zap.Logger
}

func (c *changes) add(table string, typ realtime.EventType, userID uuid.UUID, row any) {
	e, err := realtime.NewEvent(table, typ, userID, row)
	if err != nil {
		c.logger.Error("Failed to build change event", zap.String("table", table), zap.Error(err))
		return
	}
	c.events = append(c.events, e)
}

// atomically runs fn in one transaction and publishes its events only if it commits.
func (s *Service) atomically(ctx context.Context, fn func(tx *gorm.DB, ch *changes) error) error {
	ch := &changes{logger: s.logger}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, ch)
	})
	if err != nil {
		return err
	}
	if s.publisher != nil {
		for _, e := range ch.events {
			s.publisher.Publish(e)
		}
	}
	return nil
}

// forUpdate adds a row lock where the dialect supports it. sqlite serializes writers anyway.
// Every transaction locks trade rows before the profile row.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *Service) loadProfile(tx *gorm.DB, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := forUpdate(tx).First(&p, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reject("user not found")
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

// loadProfiles locks the profiles of the given users in id order.
func (s *Service) loadProfiles(tx *gorm.DB, userIDs []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	var rows []models.Profile
	if err := forUpdate(tx).Where("id IN ?", userIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	profiles := make(map[uuid.UUID]*models.Profile, len(rows))
	for i := range rows {
		profiles[rows[i].ID] = &rows[i]
	}
	return profiles, nil
}

func (s *Service) saveBalances(tx *gorm.DB, ch *changes, p *models.Profile) error {
	p.RecomputeNet()
	if err := tx.Model(&models.Profile{}).Where("id = ?", p.ID).Updates(p.BalanceColumns()).Error; err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}
	ch.add(models.TableProfiles, realtime.Update, p.ID, p)
	return nil
}

func (s *Service) insertTransaction(tx *gorm.DB, ch *changes, t *models.Transaction) error {
	if err := tx.Create(t).Error; err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	ch.add(models.TableTransactions, realtime.Insert, t.UserID, t)
	return nil
}

// engineSettings reads both engine levels. Missing rows mean "not configured".
func engineSettings(tx *gorm.DB, userID uuid.UUID) (backend.EngineSettings, error) {
	var out backend.EngineSettings

	var override models.UserTradingEngine
	err := tx.First(&override, "user_id = ?", userID).Error
	switch {
	case err == nil:
		mode := override.Engine
		out.UserOverride = &mode
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return out, fmt.Errorf("failed to load user engine: %w", err)
	}

	var setting models.AdminSetting
	err = tx.First(&setting, "setting_key = ?", models.SettingTradingEngine).Error
	switch {
	case err == nil:
		mode := models.EngineMode(setting.Value)
		out.Global = &mode
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return out, fmt.Errorf("failed to load engine setting: %w", err)
	}

	return out, nil
}
