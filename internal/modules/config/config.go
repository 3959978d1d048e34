package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	kiteAPIKeyENV     = "KITE_API_KEY"
	kiteTokenENV      = "KITE_ACCESS_TOKEN"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Instrument — элемент вотчлиста: числовой токен для данных,
// торговый символ для ордеров.
type Instrument struct {
	Token  string `yaml:"token"`
	Symbol string `yaml:"symbol"`
}

// Config ...
type Config struct {
	Kite struct {
		APIKey      string `yaml:"api_key"`
		AccessToken string `yaml:"access_token"`
		BaseURL     string `yaml:"base_url"`
		WSURL       string `yaml:"ws_url"`
	} `yaml:"kite"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"service"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	Exchange    string       `yaml:"exchange"` // NSE
	Instruments []Instrument `yaml:"instruments"`

	// Сессия
	MarketOpen  string `yaml:"market_open"`  // "09:15"
	StrategyEnd string `yaml:"strategy_end"` // "15:00"
	ResetAt     string `yaml:"reset_at"`     // дневной reset стратегий, "09:00"

	// Агрегация
	SeriesCapacity int `yaml:"series_capacity"` // свечей на серию, 1000

	// Стратегия (ORB)
	RangeMinutes     int     `yaml:"range_minutes"`     // 15
	VolumeLookback   int     `yaml:"volume_lookback"`   // 10
	SpikeFactor      float64 `yaml:"spike_factor"`      // 1.5
	MomentumLookback int     `yaml:"momentum_lookback"` // 5
	MinDayRangePct   float64 `yaml:"min_day_range_pct"` // 2.0
	MinDayVolume     int64   `yaml:"min_day_volume"`    // 1000000
	Quantity         int64   `yaml:"quantity"`

	// Риск
	// Тейк через RR: tp = entry ± RR * (entry - stop)
	TakeProfitRR      float64 `yaml:"take_profit_rr"` // 2.0
	MaxDrawdownPct    float64 `yaml:"max_drawdown_pct"`
	RiskCheckInterval string  `yaml:"risk_check_interval"` // "1s", go duration
	StartingCapital   float64 `yaml:"starting_capital"`

	WarmupDays int `yaml:"warmup_days"` // сколько дней 1m истории тянуть на старте
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Exchange:    "NSE",
		MarketOpen:  getenvDefault("MARKET_OPEN", "09:15"),
		StrategyEnd: getenvDefault("STRATEGY_END", "15:00"),
		ResetAt:     getenvDefault("RESET_AT", "09:00"),

		SeriesCapacity: intFromEnv("SERIES_CAPACITY", 1000),

		RangeMinutes:     intFromEnv("ORB_RANGE_MINUTES", 15),
		VolumeLookback:   intFromEnv("VOLUME_LOOKBACK", 10),
		SpikeFactor:      floatFromEnv("SPIKE_FACTOR", 1.5),
		MomentumLookback: intFromEnv("MOMENTUM_LOOKBACK", 5),
		MinDayRangePct:   floatFromEnv("MIN_DAY_RANGE_PCT", 2.0),
		MinDayVolume:     int64(intFromEnv("MIN_DAY_VOLUME", 1000000)),
		Quantity:         int64(intFromEnv("ORDER_QUANTITY", 1)),

		TakeProfitRR:      floatFromEnv("TAKE_PROFIT_RR", 2.0),
		MaxDrawdownPct:    floatFromEnv("MAX_DRAWDOWN_PCT", 10.0),
		RiskCheckInterval: getenvDefault("RISK_CHECK_INTERVAL", "1s"),
		StartingCapital:   floatFromEnv("STARTING_CAPITAL", 100000),

		WarmupDays: intFromEnv("WARMUP_DAYS", 2),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if v := os.Getenv(kiteAPIKeyENV); v != "" {
		config.Kite.APIKey = v
	}
	if v := os.Getenv(kiteTokenENV); v != "" {
		config.Kite.AccessToken = v
	}
	if v := os.Getenv(tokenTelegramENV); v != "" {
		config.Telegram.Token = v
	}
	if v := os.Getenv(databaseDSN); v != "" {
		config.DB = v
	}

	if config.Kite.BaseURL == "" {
		config.Kite.BaseURL = "https://api.kite.trade"
	}
	if config.Kite.WSURL == "" {
		config.Kite.WSURL = "wss://ws.kite.trade"
	}
	if config.Service.HealthAddr == "" {
		config.Service.HealthAddr = ":8080"
	}

	return &config, nil
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
