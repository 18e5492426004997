package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"Indicium/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level          string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format         string        `yaml:"format" default:"json" validate:"oneof=json console"`
		Output         string        `yaml:"output" default:"stdout"`
		CollectorTopic string        `yaml:"collector_topic"`
		CollectorFlush time.Duration `yaml:"collector_flush" default:"30s"`
	} `yaml:"logging"`
	API struct {
		ServiceName string `yaml:"service_name" default:"indicium-free-api"`
		Version     string `yaml:"version" default:"1.0.0"`
	} `yaml:"api"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute" default:"30" validate:"gte=1"`
		PerDay    int `yaml:"per_day" default:"0" validate:"gte=0"`
	} `yaml:"rate_limit"`
	Cache struct {
		Backend    string `yaml:"backend" default:"redis" validate:"oneof=redis memory"`
		TTLSeconds int    `yaml:"ttl_seconds" default:"600" validate:"gte=1"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"indicium"`
			PoolSize int    `yaml:"pool_size" default:"10"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Refresh struct {
		Interval     time.Duration `yaml:"interval" default:"10m"`
		Timeout      time.Duration `yaml:"timeout" default:"90s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Queue        struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
		} `yaml:"queue"`
	} `yaml:"refresh"`
	Warehouse struct {
		Type            string        `yaml:"type" default:"bigquery" validate:"oneof=bigquery clickhouse"`
		ProjectID       string        `yaml:"project_id"`
		Dataset         string        `yaml:"dataset" default:"analytics"`
		View            string        `yaml:"view" default:"v_api_free_signals"`
		MaxRows         int           `yaml:"max_rows" default:"100" validate:"gte=1,lte=10000"`
		QueryTimeout    time.Duration `yaml:"query_timeout" default:"30s"`
		HTTPTimeout     time.Duration `yaml:"http_timeout" default:"45s"`
		MaxAttempts     int           `yaml:"max_attempts" default:"2" validate:"gte=1,lte=10"`
		BaseURL         string        `yaml:"base_url" default:"https://bigquery.googleapis.com/bigquery/v2"`
		TokenURL        string        `yaml:"token_url"`
		CredentialsFile string        `yaml:"credentials_file"`
		CredentialsJSON string        `yaml:"credentials_json"`
	} `yaml:"warehouse"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"analytics"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"indicium.signals.refreshed"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Missing keys take their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults first so explicit false and zero values in the file survive.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("API_VERSION"); v != "" {
		c.API.Version = v
	}
	// Unset or malformed integers keep the file value.
	c.Cache.TTLSeconds = util.ParseIntDefault(os.Getenv("TTL_SECONDS"), c.Cache.TTLSeconds)
	c.RateLimit.PerMinute = util.ParseIntDefault(os.Getenv("RATE_LIMIT_PER_MIN"), c.RateLimit.PerMinute)
	c.RateLimit.PerDay = util.ParseIntDefault(os.Getenv("RATE_LIMIT_PER_DAY"), c.RateLimit.PerDay)
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("WAREHOUSE_TYPE"); v != "" {
		c.Warehouse.Type = v
	}
	if v := os.Getenv("BIGQUERY_PROJECT_ID"); v != "" {
		c.Warehouse.ProjectID = v
	}
	if v := os.Getenv("BIGQUERY_DATASET"); v != "" {
		c.Warehouse.Dataset = v
	}
	if v := os.Getenv("BIGQUERY_VIEW"); v != "" {
		c.Warehouse.View = v
	}
	if v := os.Getenv("BIGQUERY_CREDENTIALS"); v != "" {
		c.Warehouse.CredentialsJSON = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Warehouse.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when warehouse.type is 'clickhouse'")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Refresh.Queue.Enabled && c.Cache.Backend != "redis" {
		return fmt.Errorf("refresh.queue requires cache.backend 'redis'")
	}
	if c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh.interval must be at least 1m, got %s", c.Refresh.Interval)
	}
	return nil
}

// RefreshIntervalMinutes is the refresh cadence as advertised in snapshot metadata.
func (c *Config) RefreshIntervalMinutes() int {
	return int(c.Refresh.Interval / time.Minute)
}
