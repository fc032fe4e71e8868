package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance bucket names. They double as column names on the profiles table.
const (
	BucketNet         = "balance"
	BucketBTC         = "btc_balance"
	BucketETH         = "eth_balance"
	BucketUSDT        = "usdt_balance"
	BucketInterest    = "interest_earned"
	BucketCommissions = "commissions"
)

// ComponentBuckets are the buckets whose sum is the net balance.
var ComponentBuckets = []string{BucketBTC, BucketETH, BucketUSDT, BucketInterest, BucketCommissions}

// SwappableBuckets are the crypto-denominated buckets that may be swapped 1:1.
var SwappableBuckets = []string{BucketBTC, BucketETH, BucketUSDT}

// Profile is a user's account row. It owns the balance set.
// Balance always equals the sum of the component buckets.
type Profile struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Email             string          `gorm:"uniqueIndex" json:"email"`
	FullName          string          `json:"full_name"`
	IsAdmin           bool            `gorm:"default:false" json:"is_admin"`
	Balance           decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
	BTCBalance        decimal.Decimal `gorm:"column:btc_balance;type:decimal(20,8);not null;default:0" json:"btc_balance"`
	ETHBalance        decimal.Decimal `gorm:"column:eth_balance;type:decimal(20,8);not null;default:0" json:"eth_balance"`
	USDTBalance       decimal.Decimal `gorm:"column:usdt_balance;type:decimal(20,8);not null;default:0" json:"usdt_balance"`
	InterestEarned    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"interest_earned"`
	Commissions       decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"commissions"`
	InterestAccruedAt *time.Time      `json:"interest_accrued_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.RecomputeNet()
	return nil
}

// IsComponentBucket reports whether name is one of the buckets that make up the net balance.
func IsComponentBucket(name string) bool {
	for _, b := range ComponentBuckets {
		if b == name {
			return true
		}
	}
	return false
}

// IsSwappableBucket reports whether name may take part in a balance swap.
func IsSwappableBucket(name string) bool {
	for _, b := range SwappableBuckets {
		if b == name {
			return true
		}
	}
	return false
}

// Bucket returns the value of a named bucket.
func (p *Profile) Bucket(name string) (decimal.Decimal, error) {
	switch name {
	case BucketNet:
		return p.Balance, nil
	case BucketBTC:
		return p.BTCBalance, nil
	case BucketETH:
		return p.ETHBalance, nil
	case BucketUSDT:
		return p.USDTBalance, nil
	case BucketInterest:
		return p.InterestEarned, nil
	case BucketCommissions:
		return p.Commissions, nil
	}
	return decimal.Zero, fmt.Errorf("unknown balance bucket %q", name)
}

// SetBucket overwrites a component bucket and keeps the net balance consistent.
// The net balance itself cannot be set directly.
func (p *Profile) SetBucket(name string, value decimal.Decimal) error {
	switch name {
	case BucketBTC:
		p.BTCBalance = value
	case BucketETH:
		p.ETHBalance = value
	case BucketUSDT:
		p.USDTBalance = value
	case BucketInterest:
		p.InterestEarned = value
	case BucketCommissions:
		p.Commissions = value
	default:
		return fmt.Errorf("balance bucket %q is not writable", name)
	}
	p.RecomputeNet()
	return nil
}

// AddToBucket adds delta (possibly negative) to a component bucket.
func (p *Profile) AddToBucket(name string, delta decimal.Decimal) error {
	current, err := p.Bucket(name)
	if err != nil {
		return err
	}
	return p.SetBucket(name, current.Add(delta))
}

// RecomputeNet sets Balance to the aggregate of the component buckets.
func (p *Profile) RecomputeNet() {
	p.Balance = p.BTCBalance.
		Add(p.ETHBalance).
		Add(p.USDTBalance).
		Add(p.InterestEarned).
		Add(p.Commissions)
}

// BalanceColumns returns the bucket columns for a partial update.
func (p *Profile) BalanceColumns() map[string]any {
	return map[string]any{
		BucketNet:         p.Balance,
		BucketBTC:         p.BTCBalance,
		BucketETH:         p.ETHBalance,
		BucketUSDT:        p.USDTBalance,
		BucketInterest:    p.InterestEarned,
		BucketCommissions: p.Commissions,
	}
}
