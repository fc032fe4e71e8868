package models

import (
	"time"

	"github.com/google/uuid"
)

// EngineMode is the profit accrual policy for a user's trades.
type EngineMode string

const (
	EngineDefault EngineMode = "default"
	EngineRising  EngineMode = "rising"
	EngineGeneral EngineMode = "general"
)

// SettingTradingEngine is the admin_settings key of the global engine mode.
const SettingTradingEngine = "trading_engine"

// SettingDailyInterestRate is the admin_settings key of the daily interest rate (e.g. "0.001").
const SettingDailyInterestRate = "daily_interest_rate"

// AdminSetting is a global key/value setting.
type AdminSetting struct {
	Key       string    `gorm:"column:setting_key;primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserTradingEngine is a per-user engine override.
type UserTradingEngine struct {
	UserID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	Engine    EngineMode `gorm:"not null" json:"engine"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ResolveEngine applies the resolution order: user override, then global setting,
// then rising. "default" at either level defers to the next one.
func ResolveEngine(userOverride, global *EngineMode) EngineMode {
	for _, m := range []*EngineMode{userOverride, global} {
		if m == nil {
			continue
		}
		switch *m {
		case EngineRising, EngineGeneral:
			return *m
		}
	}
	return EngineRising
}
