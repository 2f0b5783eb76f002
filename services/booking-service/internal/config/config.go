// Package config declares the booking-service environment.
package config

import (
	"fmt"
	"time"

	libconfig "github.com/bookit-app/bookit/libs/config"
	"github.com/bookit-app/bookit/libs/httpx"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"booking-service"`
	Port        string `env:"PORT" env-default:"8083"`
	GRPCPort    string `env:"GRPC_PORT" env-default:"9093"`

	DatabaseURL  string        `env:"DATABASE_URL" env-required:"true"`
	DBMaxConns   int32         `env:"DB_MAX_CONNS" env-default:"10"`
	KafkaBrokers string        `env:"KAFKA_BROKERS"`
	OutboxPoll   time.Duration `env:"OUTBOX_POLL_INTERVAL" env-default:"2s"`
	OutboxBatch  int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	KafkaGroupID string        `env:"KAFKA_GROUP_ID" env-default:"booking-service"`
	DepositTopic string        `env:"DEPOSIT_PAID_TOPIC" env-default:"payments.deposit.paid.v1"`

	RedisAddr         string `env:"REDIS_ADDR"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisDB           int    `env:"REDIS_DB" env-default:"0"`
	RateLimitPerMin   int    `env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	RateLimitFailOpen bool   `env:"RATE_LIMIT_FAIL_OPEN" env-default:"true"`

	SlotGranularityMin int `env:"SLOT_GRANULARITY_MINUTES" env-default:"15"`
	MaxRangeDays       int `env:"MAX_RANGE_DAYS" env-default:"31"`
	MinNoticeMin       int `env:"MIN_NOTICE_MINUTES" env-default:"0"`

	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS"`
	BodyLimitBytes     int64         `env:"REQUEST_BODY_LIMIT_BYTES" env-default:"1048576"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s"`
}

// Load reads and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := libconfig.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := libconfig.ValidatePort("PORT", c.Port); err != nil {
		return err
	}
	if err := libconfig.ValidatePort("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	if c.SlotGranularityMin < 1 || c.SlotGranularityMin > 1440 {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be between 1 and 1440 (got %d)", c.SlotGranularityMin)
	}
	if c.MaxRangeDays < 1 || c.MaxRangeDays > 366 {
		return fmt.Errorf("MAX_RANGE_DAYS must be between 1 and 366 (got %d)", c.MaxRangeDays)
	}
	if c.MinNoticeMin < 0 {
		return fmt.Errorf("MIN_NOTICE_MINUTES must be >= 0 (got %d)", c.MinNoticeMin)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be >= 0 (got %d)", c.RedisDB)
	}
	return nil
}

func (c Config) MinNotice() time.Duration {
	return time.Duration(c.MinNoticeMin) * time.Minute
}

func (c Config) CORSOrigins() []string {
	return httpx.SplitOrigins(c.CORSAllowedOrigins)
}
