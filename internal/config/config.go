package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	pkgconfig "hirepipe/pkg/config"
	"hirepipe/pkg/otel"
)

// Config is the process configuration shared by cmd/api, cmd/worker and cmd/provision.
type Config struct {
	Debug     bool                   `yaml:"debug"`
	Server    pkgconfig.ServerConfig `yaml:"server"`
	DB        pkgconfig.DBConfig     `yaml:"db"`
	Redis     pkgconfig.RedisConfig  `yaml:"redis"`
	MQ        pkgconfig.MQConfig     `yaml:"mq"`
	JWT       JWTConfig              `yaml:"jwt"`
	Pipeline  PipelineConfig         `yaml:"pipeline"`
	RateLimit RateLimitConfig        `yaml:"ratelimit"`
	Outbox    OutboxConfig           `yaml:"outbox"`
	Otel      otel.Config            `yaml:"otel"`
	Metrics   MetricsConfig          `yaml:"metrics"`
}

type JWTConfig struct {
	pkgconfig.JWTConfig `yaml:",inline"`
	TTL                 time.Duration `yaml:"ttl"`
}

// PipelineConfig bounds every ledger transaction.
type PipelineConfig struct {
	TxTimeout    time.Duration `yaml:"tx_timeout"`
	MaxTxRetries int           `yaml:"max_tx_retries"`
}

type RateLimitConfig struct {
	WritesPerMinute int `yaml:"writes_per_minute"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type MetricsConfig struct {
	Port string `yaml:"port"`
}

// Load reads CONFIG_DIR (default "config") with the CONFIG_ENV overlay and
// applies environment overrides.
func Load() (*Config, error) {
	env := pkgconfig.GetConfigEnv()
	dir := pkgconfig.GetEnv("CONFIG_DIR", "config")

	merged, err := pkgconfig.LoadConfig(env, dir)
	if err != nil {
		return nil, fmt.Errorf("load config (env=%s): %w", env, err)
	}

	cfg := Default()
	if err := pkgconfig.Decode(merged, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the values used when a key is missing from the yaml files.
func Default() *Config {
	return &Config{
		Server: pkgconfig.ServerConfig{Port: "8080", ShutdownTimeout: 10 * time.Second},
		DB: pkgconfig.DBConfig{
			Port:               5432,
			SSLMode:            "disable",
			MaxConns:           10,
			SlowQueryThreshold: 200 * time.Millisecond,
		},
		MQ:        pkgconfig.MQConfig{Driver: "amqp", Exchange: "pipeline.events", KafkaTopic: "pipeline-events"},
		JWT:       JWTConfig{TTL: 24 * time.Hour},
		Pipeline:  PipelineConfig{TxTimeout: 5 * time.Second, MaxTxRetries: 5},
		Outbox:    OutboxConfig{Interval: time.Second, BatchSize: 100, MaxRetries: 5},
		Otel:      otel.Config{ServiceName: "hirepipe"},
		Metrics:   MetricsConfig{Port: "9100"},
		RateLimit: RateLimitConfig{WritesPerMinute: 120},
	}
}

func (c *Config) applyEnv() {
	pkgconfig.OverrideServerFromEnv(&c.Server)
	pkgconfig.OverrideDBFromEnv(&c.DB)
	pkgconfig.OverrideRedisFromEnv(&c.Redis)
	pkgconfig.OverrideMQFromEnv(&c.MQ)
	pkgconfig.OverrideJWTFromEnv(&c.JWT.JWTConfig)

	if v := os.Getenv("PIPELINE_MAX_TX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxTxRetries = n
		}
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Otel.Enabled = b
		}
	}
}

// Validate reports settings the processes cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("db.host is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.MQ.Driver {
	case "amqp", "kafka":
	default:
		errs = append(errs, fmt.Errorf("mq.driver must be amqp or kafka, got %q", c.MQ.Driver))
	}
	if c.Pipeline.TxTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.tx_timeout must be positive"))
	}
	if c.Pipeline.MaxTxRetries < 0 {
		errs = append(errs, errors.New("pipeline.max_tx_retries must not be negative"))
	}
	return errors.Join(errs...)
}
