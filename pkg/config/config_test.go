package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 || c.Cache.TTLSeconds != 600 || c.RateLimit.PerMinute != 30 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Refresh.Interval != 10*time.Minute || c.RefreshIntervalMinutes() != 10 {
		t.Fatalf("unexpected refresh interval %s", c.Refresh.Interval)
	}
	if c.Warehouse.View != "v_api_free_signals" || c.Warehouse.MaxRows != 100 {
		t.Fatalf("unexpected warehouse defaults %+v", c.Warehouse)
	}
	if !c.Metrics.Enabled || c.Kafka.RequiredAcks != -1 {
		t.Fatalf("unexpected metrics/kafka defaults")
	}
}

func TestLoadKeepsExplicitFalse(t *testing.T) {
	c, err := Load(writeConfig(t, "metrics:\n  enabled: false\nrate_limit:\n  per_minute: 5\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Metrics.Enabled {
		t.Fatalf("expected metrics disabled")
	}
	if c.RateLimit.PerMinute != 5 {
		t.Fatalf("expected per_minute 5, got %d", c.RateLimit.PerMinute)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad backend":         "cache:\n  backend: memcached\n",
		"short interval":      "refresh:\n  interval: 30s\n",
		"clickhouse w/o host": "warehouse:\n  type: clickhouse\n",
		"kafka w/o brokers":   "kafka:\n  enabled: true\n",
		"queue on memory":     "cache:\n  backend: memory\nrefresh:\n  queue:\n    enabled: true\n",
		"negative per_minute": "rate_limit:\n  per_minute: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "7")
	t.Setenv("RATE_LIMIT_PER_DAY", "500")
	t.Setenv("TTL_SECONDS", "120")
	t.Setenv("API_VERSION", "2.1.0")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("BIGQUERY_VIEW", "v_custom")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.RateLimit.PerMinute != 7 || c.RateLimit.PerDay != 500 || c.Cache.TTLSeconds != 120 {
		t.Fatalf("env overrides not applied: %+v %d", c.RateLimit, c.Cache.TTLSeconds)
	}
	if c.API.Version != "2.1.0" || c.Cache.Backend != "memory" || c.Warehouse.View != "v_custom" {
		t.Fatalf("string overrides not applied")
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("kafka brokers not applied: %v", c.Kafka.Brokers)
	}
}

func TestLoadWithEnvIgnoresMalformedInt(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	c, err := LoadWithEnv(writeConfig(t, "rate_limit:\n  per_minute: 12\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.RateLimit.PerMinute != 12 {
		t.Fatalf("expected file value to survive, got %d", c.RateLimit.PerMinute)
	}
}
