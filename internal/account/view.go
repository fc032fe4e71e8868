// Package account keeps the client's projection of a user's balances current and
// performs the money-moving operations that touch them.
package account

import (
	"sync/atomic"
	"time"

	"crypto-invest-platform-go/internal/models"
	"github.com/shopspring/decimal"
)

// Origin names the path that produced a snapshot.
type Origin int

const (
	OriginPoll Origin = iota
	OriginPush
	OriginAction
)

func (o Origin) String() string {
	switch o {
	case OriginPush:
		return "push"
	case OriginAction:
		return "action"
	}
	return "poll"
}

// Balances is the balance set of one profile row.
type Balances struct {
	Net         decimal.Decimal `json:"balance"`
	BTC         decimal.Decimal `json:"btc_balance"`
	ETH         decimal.Decimal `json:"eth_balance"`
	USDT        decimal.Decimal `json:"usdt_balance"`
	Interest    decimal.Decimal `json:"interest_earned"`
	Commissions decimal.Decimal `json:"commissions"`
}

func BalancesFromProfile(p *models.Profile) Balances {
	return Balances{
		Net:         p.Balance,
		BTC:         p.BTCBalance,
		ETH:         p.ETHBalance,
		USDT:        p.USDTBalance,
		Interest:    p.InterestEarned,
		Commissions: p.Commissions,
	}
}

// Bucket returns the value of a named bucket.
func (b Balances) Bucket(name string) (decimal.Decimal, bool) {
	switch name {
	case models.BucketNet:
		return b.Net, true
	case models.BucketBTC:
		return b.BTC, true
	case models.BucketETH:
		return b.ETH, true
	case models.BucketUSDT:
		return b.USDT, true
	case models.BucketInterest:
		return b.Interest, true
	case models.BucketCommissions:
		return b.Commissions, true
	}
	return decimal.Zero, false
}

// Snapshot is one applied state of the view.
type Snapshot struct {
	Balances
	Seq       uint64
	Origin    Origin
	AppliedAt time.Time
}

// View is the single reducer both refresh paths write into. Every update replaces the
// whole snapshot, so readers see one complete row or the next one, never a mix.
// The last update to arrive wins.
type View struct {
	current atomic.Pointer[Snapshot]
	seq     atomic.Uint64
	now     func() time.Time
}

func NewView(now func() time.Time) *View {
	if now == nil {
		now = time.Now
	}
	return &View{now: now}
}

// Apply replaces the snapshot with the balances of p.
func (v *View) Apply(p *models.Profile, origin Origin) Snapshot {
	s := &Snapshot{
		Balances:  BalancesFromProfile(p),
		Seq:       v.seq.Add(1),
		Origin:    origin,
		AppliedAt: v.now(),
	}
	v.current.Store(s)
	return *s
}

// Current returns the latest snapshot, or false before the first update.
func (v *View) Current() (Snapshot, bool) {
	s := v.current.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}
