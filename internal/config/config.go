package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Market     Market     `mapstructure:"market"`
	Cache      Cache      `mapstructure:"cache"`
	Settlement Settlement `mapstructure:"settlement"`
	Backend    Backend    `mapstructure:"backend"`
	Client     Client     `mapstructure:"client"`
	Realtime   Realtime   `mapstructure:"realtime"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Server holds the configuration for the backend HTTP server.
type Server struct {
	Port            int           `mapstructure:"port"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
	Seed   bool   `mapstructure:"seed"`
}

// Market holds the configuration for the market data provider and local price caches.
type Market struct {
	BaseURL        string            `mapstructure:"base_url"`
	ApiKey         string            `mapstructure:"api_key"`
	RateLimit      float64           `mapstructure:"rate_limit"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`
	MaxRetries     int               `mapstructure:"max_retries"`
	PriceTTL       time.Duration     `mapstructure:"price_ttl"`
	CandleTTL      time.Duration     `mapstructure:"candle_ttl"`
	PriceTimeout   time.Duration     `mapstructure:"price_timeout"`
	OHLCTimeout    time.Duration     `mapstructure:"ohlc_timeout"`
	HistorySize    int               `mapstructure:"history_size"`
	CandleCount    int               `mapstructure:"candle_count"`
	PairIDs        map[string]string `mapstructure:"pair_ids"`
}

// Cache selects the backing store for price and candle caches.
type Cache struct {
	Driver string `mapstructure:"driver"` // "memory" or "redis"
	Redis  Redis  `mapstructure:"redis"`
}

// Redis holds the connection settings for the shared cache.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Settlement holds the configuration for the in-process trade settlement service.
type Settlement struct {
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	PaymentBucket  string        `mapstructure:"payment_bucket"`
	AccrueInterest bool          `mapstructure:"accrue_interest"`
}

// Backend selects where the trading client sends RPCs and row queries.
type Backend struct {
	Mode    string        `mapstructure:"mode"` // "local" or "remote"
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client holds the configuration for the trading client.
type Client struct {
	UserID        string        `mapstructure:"user_id"`
	DashboardPoll time.Duration `mapstructure:"dashboard_poll"`
	TradingPoll   time.Duration `mapstructure:"trading_poll"`
}

// Realtime holds the configuration for the change feed.
type Realtime struct {
	Buffer int    `mapstructure:"buffer"`
	URL    string `mapstructure:"url"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is normal outside of local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "platform.db")
	v.SetDefault("database.seed", true)

	v.SetDefault("market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.rate_limit", 5)       // requests per second
	v.SetDefault("market.rate_limit_burst", 5) // burst size
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.price_ttl", 30*time.Second)
	v.SetDefault("market.candle_ttl", 60*time.Second)
	v.SetDefault("market.price_timeout", 5*time.Second)
	v.SetDefault("market.ohlc_timeout", 10*time.Second)
	v.SetDefault("market.history_size", 100)
	v.SetDefault("market.candle_count", 30)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.prefix", "platform:")

	v.SetDefault("settlement.sync_interval", 5*time.Second)
	v.SetDefault("settlement.payment_bucket", "usdt_balance")
	v.SetDefault("settlement.accrue_interest", true)

	v.SetDefault("backend.mode", "local")
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("client.dashboard_poll", 3*time.Second)
	v.SetDefault("client.trading_poll", 5*time.Second)

	v.SetDefault("realtime.buffer", 64)
	v.SetDefault("realtime.url", "ws://localhost:8080/realtime")
}
