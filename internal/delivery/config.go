package delivery

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultBatchSize       = 10
	defaultFlushInterval   = 5 * time.Second
	defaultMaxRetries      = 3
	defaultRetryBaseDelay  = time.Second
	defaultBreakerCooldown = 60 * time.Second
	defaultMaxQueue        = 1000
	defaultMaxRetryQueue   = 50

	// maxBackoff caps the doubling so large retry counts cannot overflow.
	maxBackoff = time.Hour
)

// Config controls batching, retry and circuit breaking for a Pipeline.
type Config struct {
	Endpoint string `env:"NYLO_ENDPOINT" envDefault:"http://localhost:8080"`
	APIKey   string `env:"NYLO_API_KEY"`

	BatchSize     int           `env:"NYLO_BATCH_SIZE"     envDefault:"10"`
	FlushInterval time.Duration `env:"NYLO_FLUSH_INTERVAL" envDefault:"5s"`

	// MaxRetries consecutive failures open the breaker for BreakerCooldown.
	MaxRetries      int           `env:"NYLO_MAX_RETRIES"       envDefault:"3"`
	RetryBaseDelay  time.Duration `env:"NYLO_RETRY_BASE_DELAY"  envDefault:"1s"`
	BreakerCooldown time.Duration `env:"NYLO_BREAKER_COOLDOWN"  envDefault:"60s"`

	// MaxQueue bounds unsent events; the oldest are dropped beyond it.
	MaxQueue int `env:"NYLO_MAX_QUEUE" envDefault:"1000"`

	// MaxRetryQueue bounds failed batches awaiting a resend.
	MaxRetryQueue int `env:"NYLO_MAX_RETRY_QUEUE" envDefault:"50"`

	// Compress factors fields shared by every event into the batch header.
	Compress bool `env:"NYLO_COMPRESS" envDefault:"true"`
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Endpoint:        "http://localhost:8080",
		BatchSize:       defaultBatchSize,
		FlushInterval:   defaultFlushInterval,
		MaxRetries:      defaultMaxRetries,
		RetryBaseDelay:  defaultRetryBaseDelay,
		BreakerCooldown: defaultBreakerCooldown,
		MaxQueue:        defaultMaxQueue,
		MaxRetryQueue:   defaultMaxRetryQueue,
		Compress:        true,
	}
}

// LoadConfigFromEnv reads NYLO_* variables over the defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the endpoint is an absolute http(s) URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an absolute http(s) URL", c.Endpoint)
	}
	return nil
}

func (c Config) normalized() Config {
	n := c
	if n.Endpoint == "" {
		n.Endpoint = "http://localhost:8080"
	}
	if n.BatchSize <= 0 {
		n.BatchSize = defaultBatchSize
	}
	if n.FlushInterval <= 0 {
		n.FlushInterval = defaultFlushInterval
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = defaultMaxRetries
	}
	if n.RetryBaseDelay <= 0 {
		n.RetryBaseDelay = defaultRetryBaseDelay
	}
	if n.BreakerCooldown <= 0 {
		n.BreakerCooldown = defaultBreakerCooldown
	}
	if n.MaxQueue < 3*n.BatchSize {
		n.MaxQueue = max(defaultMaxQueue, 3*n.BatchSize)
	}
	if n.MaxRetryQueue <= 0 {
		n.MaxRetryQueue = defaultMaxRetryQueue
	}
	return n
}

// Backoff returns the wait before the resend that follows the n-th
// consecutive failure: base, 2×base, 4×base... capped at one hour.
func (c Config) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := c.RetryBaseDelay
	for i := 1; i < n; i++ {
		if d >= maxBackoff/2 {
			return maxBackoff
		}
		d *= 2
	}
	return min(d, maxBackoff)
}
