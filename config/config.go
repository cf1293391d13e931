package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// Martingale holds the loss-recovery staking configuration
type Martingale struct {
	Enabled     bool
	MaxLevels   int
	Multipliers []float64
}

// Risk holds the account-level risk configuration
type Risk struct {
	ConfidenceThreshold int
	MaxTradeAmount      float64
	MaxRiskPerTrade     float64 // percent of balance per trade
	AccountRiskLimit    float64 // percent of balance, portfolio ceiling
	MaxDailyLossPct     float64 // percent of the daily high-water mark
	MaxConcurrentTrades int
	Martingale          Martingale
}

// Config holds all application configuration
type Config struct {
	OpenAIAPIKey         string
	OpenAIModel          string
	ExtractTimeout       time.Duration
	ExtractRetries       int
	TelegramBotToken     string
	BrokerWSURL          string
	MetricsAddr          string
	LogLevel             string
	SupportedAssets      []string
	SupportedTimeframes  []string
	SupportedBrokers     []string
	DefaultBroker        string
	SignalKeywords       []string
	MinHistoricalSignals int
	CacheTTL             time.Duration
	CacheSize            int
	Workers              int
	QueueSize            int
	InitialBalance       float64
	Risk                 Risk
	BrokerLimits         map[string]models.BrokerLimits
	Database             Database
}

// Database holds PostgreSQL connection parameters
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnvWithDefault("OPENAI_MODEL", "gpt-4"),
		ExtractTimeout:       time.Duration(getEnvIntWithDefault("EXTRACT_TIMEOUT", 10)) * time.Second,
		ExtractRetries:       getEnvIntWithDefault("EXTRACT_RETRIES", 3),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		BrokerWSURL:          os.Getenv("BROKER_WS_URL"),
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9090"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		SupportedAssets:      getEnvListWithDefault("SUPPORTED_ASSETS", defaultAssets),
		SupportedTimeframes:  getEnvListWithDefault("SUPPORTED_TIMEFRAMES", defaultTimeframes),
		SupportedBrokers:     getEnvListWithDefault("SUPPORTED_BROKERS", defaultBrokers),
		DefaultBroker:        getEnvWithDefault("DEFAULT_BROKER", "quotex"),
		SignalKeywords:       getEnvListWithDefault("SIGNAL_KEYWORDS", defaultKeywords),
		MinHistoricalSignals: getEnvIntWithDefault("MIN_HISTORICAL_SIGNALS", 10),
		CacheTTL:             time.Duration(getEnvIntWithDefault("ANALYSIS_CACHE_TTL", 300)) * time.Second,
		CacheSize:            getEnvIntWithDefault("ANALYSIS_CACHE_SIZE", 1000),
		Workers:              getEnvIntWithDefault("PIPELINE_WORKERS", 1),
		QueueSize:            getEnvIntWithDefault("PIPELINE_QUEUE_SIZE", 256),
		InitialBalance:       getEnvFloatWithDefault("INITIAL_BALANCE", 1000),
		Risk: Risk{
			ConfidenceThreshold: getEnvIntWithDefault("CONFIDENCE_THRESHOLD", 70),
			MaxTradeAmount:      getEnvFloatWithDefault("MAX_TRADE_AMOUNT", 100),
			MaxRiskPerTrade:     getEnvFloatWithDefault("MAX_RISK_PER_TRADE", 2),
			AccountRiskLimit:    getEnvFloatWithDefault("ACCOUNT_RISK_LIMIT", 10),
			MaxDailyLossPct:     getEnvFloatWithDefault("MAX_DAILY_LOSS_PCT", 50),
			MaxConcurrentTrades: getEnvIntWithDefault("MAX_CONCURRENT_TRADES", 3),
			Martingale: Martingale{
				Enabled:     getEnvBoolWithDefault("MARTINGALE_ENABLED", true),
				MaxLevels:   getEnvIntWithDefault("MARTINGALE_MAX_LEVELS", 9),
				Multipliers: getEnvFloatListWithDefault("MARTINGALE_MULTIPLIERS", defaultMultipliers()),
			},
		},
		Database: Database{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnvWithDefault("DB_NAME", "signalflow"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
	}

	cfg.BrokerLimits = make(map[string]models.BrokerLimits, len(cfg.SupportedBrokers))
	for _, b := range cfg.SupportedBrokers {
		cfg.BrokerLimits[b] = models.BrokerLimits{
			MinAmount:     getEnvFloatWithDefault(limitKey(b, "MIN_AMOUNT"), 1),
			MaxAmount:     getEnvFloatWithDefault(limitKey(b, "MAX_AMOUNT"), 1000),
			MinExpiration: getEnvIntWithDefault(limitKey(b, "MIN_EXPIRATION"), 30),
			MaxExpiration: getEnvIntWithDefault(limitKey(b, "MAX_EXPIRATION"), 14400),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails eagerly on configuration the pipeline cannot run with.
// Every error names the offending key.
func (c *Config) Validate() error {
	if len(c.SupportedAssets) == 0 {
		return fmt.Errorf("config: SUPPORTED_ASSETS must not be empty")
	}
	if len(c.SupportedTimeframes) == 0 {
		return fmt.Errorf("config: SUPPORTED_TIMEFRAMES must not be empty")
	}
	if len(c.SupportedBrokers) == 0 {
		return fmt.Errorf("config: SUPPORTED_BROKERS must not be empty")
	}
	if !contains(c.SupportedBrokers, c.DefaultBroker) {
		return fmt.Errorf("config: DEFAULT_BROKER %q is not in SUPPORTED_BROKERS", c.DefaultBroker)
	}
	if c.Risk.ConfidenceThreshold < 0 || c.Risk.ConfidenceThreshold > 100 {
		return fmt.Errorf("config: CONFIDENCE_THRESHOLD must be in [0,100], got %d", c.Risk.ConfidenceThreshold)
	}
	if c.Risk.MaxTradeAmount <= 0 {
		return fmt.Errorf("config: MAX_TRADE_AMOUNT must be positive, got %v", c.Risk.MaxTradeAmount)
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 100 {
		return fmt.Errorf("config: MAX_RISK_PER_TRADE must be in (0,100], got %v", c.Risk.MaxRiskPerTrade)
	}
	if c.Risk.AccountRiskLimit <= 0 || c.Risk.AccountRiskLimit > 100 {
		return fmt.Errorf("config: ACCOUNT_RISK_LIMIT must be in (0,100], got %v", c.Risk.AccountRiskLimit)
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100 {
		return fmt.Errorf("config: MAX_DAILY_LOSS_PCT must be in (0,100], got %v", c.Risk.MaxDailyLossPct)
	}
	if c.Risk.MaxConcurrentTrades <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_TRADES must be positive, got %d", c.Risk.MaxConcurrentTrades)
	}
	if c.Risk.Martingale.MaxLevels < 0 {
		return fmt.Errorf("config: MARTINGALE_MAX_LEVELS must not be negative, got %d", c.Risk.Martingale.MaxLevels)
	}
	for i, m := range c.Risk.Martingale.Multipliers {
		if m <= 0 {
			return fmt.Errorf("config: MARTINGALE_MULTIPLIERS[%d] must be positive, got %v", i, m)
		}
	}
	if c.MinHistoricalSignals <= 0 {
		return fmt.Errorf("config: MIN_HISTORICAL_SIGNALS must be positive, got %d", c.MinHistoricalSignals)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: PIPELINE_WORKERS must be positive, got %d", c.Workers)
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("config: EXTRACT_TIMEOUT must be positive, got %v", c.ExtractTimeout)
	}
	return nil
}

var (
	defaultAssets = []string{
		"EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD",
		"USD/CAD", "USD/CHF", "NZD/USD", "EUR/GBP",
		"EUR/JPY", "GBP/JPY", "BTC/USD", "ETH/USD",
	}

	defaultTimeframes = []string{
		"30s", "1min", "2min", "3min", "5min", "15min", "30min", "1h", "4h",
	}

	defaultBrokers = []string{"quotex", "pocketoption", "binomo"}

	defaultKeywords = []string{
		"call", "put", "buy", "sell", "entry", "trade",
		"up", "down", "high", "low", "strike",
	}
)

func defaultMultipliers() []float64 {
	m := make([]float64, 9)
	for i := range m {
		m[i] = 2.0
	}
	return m
}

func limitKey(broker, suffix string) string {
	b := strings.ToUpper(strings.ReplaceAll(broker, "-", "_"))
	return "BROKER_" + b + "_" + suffix
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvFloatListWithDefault(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}
