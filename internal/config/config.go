package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL          string        `env:"DATABASE_URL,required,notEmpty"`
	CORSAllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAge           time.Duration `env:"CORS_MAX_AGE" envDefault:"5m"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	WorkerInterval time.Duration `env:"WORKER_INTERVAL" envDefault:"1s"`
	WorkerBatch    int           `env:"WORKER_BATCH" envDefault:"200"`

	BillingURL      string        `env:"BILLING_URL"`
	BillingToken    string        `env:"BILLING_TOKEN"`
	BillingCacheTTL time.Duration `env:"BILLING_CACHE_TTL" envDefault:"1m"`

	TrialTrailer   string `env:"TRIAL_TRAILER" envDefault:"\n\nSent with waflow (trial)"`
	ContactTrailer string `env:"CONTACT_TRAILER" envDefault:"Contact shared with waflow (trial)"`

	CSVNumberColumn string `env:"CSV_NUMBER_COLUMN" envDefault:"number"`

	RabbitURL   string `env:"RABBITMQ_URL"`
	RabbitQueue string `env:"RABBITMQ_QUEUE" envDefault:"waflow.events"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"true"`

	WhatsAppStoreDSN string `env:"WHATSAPP_STORE_DSN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	origins := cfg.CORSAllowedOrigins[:0]
	for _, o := range cfg.CORSAllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSAllowedOrigins = origins

	if cfg.WhatsAppStoreDSN == "" {
		cfg.WhatsAppStoreDSN = cfg.DatabaseURL
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves TIMEZONE; pacing windows are evaluated in it.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
