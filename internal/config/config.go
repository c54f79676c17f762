package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veridian-systems/veridian/internal/fault"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection string.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ReasoningConfig carries the alerting policy parameters. The
// high-anomaly threshold and risk weights are deliberately named config
// values rather than constants buried in the synthesizer.
type ReasoningConfig struct {
	HighAnomalyThreshold float64       `mapstructure:"high_anomaly_threshold"`
	AnomalyWeight        float64       `mapstructure:"anomaly_weight"`
	RuleWeight           float64       `mapstructure:"rule_weight"`
	ActivityWindow       time.Duration `mapstructure:"activity_window"`
	Workers              int           `mapstructure:"workers"`
}

type AuditConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "veridian")
	v.SetDefault("database.postgres.user", "veridian")
	v.SetDefault("database.postgres.sslmode", "require")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "veridian.alerts")
	v.SetDefault("reasoning.high_anomaly_threshold", 0.85)
	v.SetDefault("reasoning.anomaly_weight", 0.55)
	v.SetDefault("reasoning.rule_weight", 0.45)
	v.SetDefault("reasoning.activity_window", "24h")
	v.SetDefault("reasoning.workers", 4)
	v.SetDefault("audit.signing_key", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9311)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/veridian")
	}

	// Environment variables override (VERIDIAN_DATABASE_POSTGRES_HOST, etc.)
	v.SetEnvPrefix("VERIDIAN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Reasoning.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects policy parameters that would break the risk formula's
// bounds or monotonicity guarantees.
func (c ReasoningConfig) Validate() error {
	if c.HighAnomalyThreshold <= 0 || c.HighAnomalyThreshold > 1 {
		return fault.Configuration("reasoning.high_anomaly_threshold",
			fmt.Sprintf("must be in (0,1], got %v", c.HighAnomalyThreshold))
	}
	if c.AnomalyWeight <= 0 {
		return fault.Configuration("reasoning.anomaly_weight",
			fmt.Sprintf("must be positive, got %v", c.AnomalyWeight))
	}
	if c.RuleWeight <= 0 {
		return fault.Configuration("reasoning.rule_weight",
			fmt.Sprintf("must be positive, got %v", c.RuleWeight))
	}
	if c.Workers < 1 {
		return fault.Configuration("reasoning.workers",
			fmt.Sprintf("must be at least 1, got %d", c.Workers))
	}
	return nil
}
