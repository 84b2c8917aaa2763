package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Gateway holds the mobile-money gateway credentials and endpoints.
type Gateway struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Config is the process configuration, read from the environment.
type Config struct {
	Port    string
	GinMode string
	Env     string

	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Gateway Gateway

	PaymentTimeout          time.Duration
	SweepSchedule           string
	RestockOnPaymentFailure bool
	PhoneRegion             string
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:    getenv("PORT", "8081"),
		GinMode: getenv("GIN_MODE", "release"),
		Env:     getenv("APP_ENV", "development"),

		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,

		Gateway: Gateway{
			BaseURL:        strings.TrimRight(getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORTCODE"),
			PassKey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			Timeout:        time.Duration(intFromEnv("MPESA_TIMEOUT_SECONDS", 30)) * time.Second,
		},

		PaymentTimeout:          time.Duration(intFromEnv("PAYMENT_TIMEOUT_SECONDS", 180)) * time.Second,
		SweepSchedule:           getenv("PAYMENT_SWEEP_SCHEDULE", "@every 30s"),
		RestockOnPaymentFailure: boolFromEnv("RESTOCK_ON_PAYMENT_FAILURE", false),
		PhoneRegion:             getenv("PHONE_REGION", "KE"),
	}
}

// IsProduction reports whether APP_ENV selects production logging.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
