package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" || cfg.APIBaseURL != "http://localhost:8000" || cfg.APITimeout != 10*time.Second {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.BreakerMaxFailures != 5 || cfg.BreakerTimeout != 30*time.Second {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.OrderEventsTopic != "order.changed" || cfg.AuditTopic != "dashboard.actions" || cfg.KafkaGroupID != "order-dashboard" {
		t.Errorf("Unexpected kafka defaults %+v", cfg)
	}
	if cfg.KafkaEnabled() {
		t.Error("Expected kafka to be disabled without brokers")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DASHBOARD_PORT", "9090")
	t.Setenv("DASHBOARD_API_TIMEOUT", "3s")
	t.Setenv("DASHBOARD_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" || cfg.APITimeout != 3*time.Second {
		t.Errorf("Environment not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) || !cfg.KafkaEnabled() {
		t.Errorf("Unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadFromDotEnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(file, []byte("DASHBOARD_API_BASE_URL=http://orders.internal:8000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DASHBOARD_API_BASE_URL", "")
	os.Unsetenv("DASHBOARD_API_BASE_URL")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "http://orders.internal:8000" {
		t.Errorf("Expected value from .env file, got %s", cfg.APIBaseURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DASHBOARD_LOG_LEVEL":            "chatty",
		"DASHBOARD_API_BASE_URL":         "not a url",
		"DASHBOARD_BREAKER_MAX_FAILURES": "0",
		"DASHBOARD_API_TIMEOUT":          "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Errorf("Expected %s=%q to be rejected", key, value)
			}
		})
	}
}
