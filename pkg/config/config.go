package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration for the fx-router service.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // "fx-router"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Port        int

	DataDir     string // reference tables, rules and deal journal live here
	DatabaseURL string // optional Postgres mirror for deals; empty disables it
	NATSURL     string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	AWSRegion   string

	// Rate source behaviour
	RateFeedURL    string        // optional websocket market-data feed
	RateFeedSecret string        // Secrets Manager key holding feed credentials
	RateTimeout    time.Duration // budget for a rate-source fetch
	RateStaleTTL   time.Duration // how stale a cached rate may be served

	// Pricing / rules behaviour
	QuoteValidity  time.Duration
	RulesTimezone  string // single documented zone for time_of_day rule criteria
	NegotiatedFile string // customer negotiated discounts table

	// Eventing
	DealSubject  string
	QuoteSubject string
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:    GetEnv("SERVICE_NAME", "fx-router"),
		Env:            GetEnv("ENV", "dev"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		Port:           GetEnvInt("FX_ROUTER_PORT", 9040),
		DataDir:        GetEnv("DATA_DIR", "data"),
		DatabaseURL:    GetEnv("DATABASE_URL", ""),
		NATSURL:        GetEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:      GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        GetEnvInt("REDIS_DB", 0),
		RedisPass:      GetEnv("REDIS_PASS", ""),
		AWSRegion:      GetEnv("AWS_REGION", "us-east-2"),
		RateFeedURL:    GetEnv("RATE_FEED_URL", ""),
		RateFeedSecret: GetEnv("RATE_FEED_SECRET", ""),
		RateTimeout:    GetEnvDuration("RATE_TIMEOUT", 2*time.Second),
		RateStaleTTL:   GetEnvDuration("RATE_STALE_TTL", 30*time.Second),
		QuoteValidity:  GetEnvDuration("QUOTE_VALIDITY", 60*time.Second),
		RulesTimezone:  GetEnv("RULES_TIMEZONE", "UTC"),
		NegotiatedFile: GetEnv("NEGOTIATED_RATES_FILE", "negotiated_rates.json"),
		DealSubject:    GetEnv("DEAL_SUBJECT", "evt.fx.deal.v1"),
		QuoteSubject:   GetEnv("QUOTE_SUBJECT", "evt.fx.quote.v1"),
	}
}
