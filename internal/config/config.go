// Package config содержит логику чтения конфигурации сервиса парковки.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress         = "localhost:8080"
	defaultHourRateCents      = 1000
	defaultMaxDiscountPercent = 50
	defaultRateLimitBurst     = 20
)

// Config содержит параметры конфигурации сервиса парковки.
type Config struct {
	RunAddress         string
	DatabaseURI        string
	HourRateCents      int64
	MaxDiscountPercent int
	AuthSecret         string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// envConfig повторяет Config; числовые поля указатели, чтобы отличить
// незаданную переменную от нуля.
type envConfig struct {
	RunAddress         string   `env:"RUN_ADDRESS"`
	DatabaseURI        string   `env:"DATABASE_URI"`
	HourRateCents      *int64   `env:"HOUR_RATE_CENTS"`
	MaxDiscountPercent *int     `env:"MAX_DISCOUNT_PERCENT"`
	AuthSecret         string   `env:"AUTH_SECRET"`
	RateLimitRPS       *float64 `env:"RATE_LIMIT_RPS"`
	RateLimitBurst     *int     `env:"RATE_LIMIT_BURST"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами. Файл .env в рабочем каталоге,
// если он есть, дополняет окружение, не перезаписывая уже заданные переменные.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.Int64Var(&cfg.HourRateCents, "p", defaultHourRateCents, "base hour rate in cents")
	flag.IntVar(&cfg.MaxDiscountPercent, "m", defaultMaxDiscountPercent, "loyalty discount cap in percent")
	flag.StringVar(&cfg.AuthSecret, "s", "", "HS256 secret for bearer tokens, auth disabled when empty")
	flag.Float64Var(&cfg.RateLimitRPS, "l", 0, "requests per second per client, 0 disables limiting")
	flag.IntVar(&cfg.RateLimitBurst, "b", defaultRateLimitBurst, "rate limiter burst")

	flag.Parse()

	if e.RunAddress != "" {
		cfg.RunAddress = e.RunAddress
	}
	if e.DatabaseURI != "" {
		cfg.DatabaseURI = e.DatabaseURI
	}
	if e.HourRateCents != nil {
		cfg.HourRateCents = *e.HourRateCents
	}
	if e.MaxDiscountPercent != nil {
		cfg.MaxDiscountPercent = *e.MaxDiscountPercent
	}
	if e.AuthSecret != "" {
		cfg.AuthSecret = e.AuthSecret
	}
	if e.RateLimitRPS != nil {
		cfg.RateLimitRPS = *e.RateLimitRPS
	}
	if e.RateLimitBurst != nil {
		cfg.RateLimitBurst = *e.RateLimitBurst
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.HourRateCents <= 0 {
		errs = append(errs, fmt.Errorf("hour rate must be positive, got %d", c.HourRateCents))
	}
	if c.MaxDiscountPercent < 0 || c.MaxDiscountPercent > 100 {
		errs = append(errs, fmt.Errorf("max discount percent must be within 0..100, got %d", c.MaxDiscountPercent))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("rate limit burst must be positive, got %d", c.RateLimitBurst))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
