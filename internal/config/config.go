package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN string
	MongoURI    string
	RedisAddr   string
	RabbitURL   string

	KhaltiBaseURL   string
	KhaltiSecretKey string
	KhaltiReturnURL string
	WebsiteURL      string
	GatewayTimeout  time.Duration

	// DefaultCommissionPercent applies when the settings table has no
	// COMMISSION_RATE row. PlatformAccountID receives the commission.
	DefaultCommissionPercent int
	PlatformAccountID        string

	SweepInterval time.Duration
	OTLPEndpoint  string
	ListenAddr    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	gwTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gwTimeout == 0 {
		gwTimeout = 15 * time.Second
	}
	sweep, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweep == 0 {
		sweep = time.Minute
	}

	commission := 10
	if v := os.Getenv("DEFAULT_COMMISSION_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			commission = n
		}
	}

	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	baseURL := os.Getenv("KHALTI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://a.khalti.com/api/v2"
	}

	return &Config{
		PostgresDSN: os.Getenv("PG_DSN"),
		MongoURI:    os.Getenv("MONGO_URI"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RabbitURL:   os.Getenv("RABBIT_URL"),

		KhaltiBaseURL:   baseURL,
		KhaltiSecretKey: os.Getenv("KHALTI_SECRET_KEY"),
		KhaltiReturnURL: os.Getenv("KHALTI_RETURN_URL"),
		WebsiteURL:      os.Getenv("WEBSITE_URL"),
		GatewayTimeout:  gwTimeout,

		DefaultCommissionPercent: commission,
		PlatformAccountID:        os.Getenv("PLATFORM_ACCOUNT_ID"),

		SweepInterval: sweep,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ListenAddr:    listen,
	}, nil
}
