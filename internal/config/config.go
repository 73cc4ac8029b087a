package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. DASHBOARD_PORT.
const Prefix = "dashboard"

type Config struct {
	Port       string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://localhost:8000" validate:"required,url"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s" validate:"gt=0"`
	LogLevel   string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`

	// Kafka is disabled when no brokers are configured.
	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	OrderEventsTopic string   `envconfig:"ORDER_EVENTS_TOPIC" default:"order.changed" validate:"required"`
	AuditTopic       string   `envconfig:"AUDIT_TOPIC" default:"dashboard.actions" validate:"required"`
	KafkaGroupID     string   `envconfig:"KAFKA_GROUP_ID" default:"order-dashboard" validate:"required"`

	BreakerMaxFailures int           `envconfig:"BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads the given .env files (".env" when none are given) and then the
// environment. Missing .env files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
