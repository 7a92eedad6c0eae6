package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Polyflow    PolyflowConfig    `yaml:"polyflow"`
	Source      SourceConfig      `yaml:"source"`
	Streams     StreamsConfig     `yaml:"streams"`
	Store       StoreConfig       `yaml:"store"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type PolyflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SourceConfig struct {
	MarketsURL        string        `yaml:"markets_url"`
	TradesURL         string        `yaml:"trades_url"`
	OrderbookURL      string        `yaml:"orderbook_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

type StreamsConfig struct {
	Markets   MarketsStreamConfig   `yaml:"markets"`
	Trades    TradesStreamConfig    `yaml:"trades"`
	Candles   CandlesStreamConfig   `yaml:"candles"`
	Orderbook OrderbookStreamConfig `yaml:"orderbook"`
}

type MarketsStreamConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	PageSize int           `yaml:"page_size"`
	MaxPages int           `yaml:"max_pages"`
}

type TradesStreamConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	PageSize int           `yaml:"page_size"`
	MaxPages int           `yaml:"max_pages"`
	Lookback time.Duration `yaml:"lookback"`
}

type CandlesStreamConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Intervals  []string      `yaml:"intervals"`
	Lookback   time.Duration `yaml:"lookback"`
	Grace      time.Duration `yaml:"grace"`
	FetchLimit int           `yaml:"fetch_limit"`
}

type OrderbookStreamConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Depth    int           `yaml:"depth"`
	Markets  []string      `yaml:"markets"`
}

type StoreConfig struct {
	Opensearch OpensearchConfig `yaml:"opensearch"`
}

type OpensearchConfig struct {
	URL                string        `yaml:"url"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type CheckpointsConfig struct {
	Dir string `yaml:"dir"`
}

type ArchiveConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	Cloudwatch CloudwatchConfig `yaml:"cloudwatch"`
}

type CloudwatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials come from the environment when present so config files can
	// stay free of secrets.
	if v := os.Getenv("OPENSEARCH_URL"); v != "" {
		config.Store.Opensearch.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("OPENSEARCH_USER"); v != "" {
		config.Store.Opensearch.Username = strings.TrimSpace(v)
	}
	if v := os.Getenv("OPENSEARCH_PASSWORD"); v != "" {
		config.Store.Opensearch.Password = strings.TrimSpace(v)
	}
	if config.Archive.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.S3.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
		Streams: StreamsConfig{
			Markets: MarketsStreamConfig{Interval: 10 * time.Second, PageSize: 500, MaxPages: 50},
			Trades:  TradesStreamConfig{Interval: 3 * time.Second, PageSize: 500, MaxPages: 50, Lookback: time.Hour},
			Candles: CandlesStreamConfig{
				Interval:   time.Minute,
				Intervals:  []string{"1m", "5m", "1h"},
				Lookback:   3 * time.Hour,
				FetchLimit: 5000,
			},
			Orderbook: OrderbookStreamConfig{Interval: 15 * time.Second, Depth: 10},
		},
		Store: StoreConfig{
			Opensearch: OpensearchConfig{
				URL:        "https://localhost:9200",
				Timeout:    30 * time.Second,
				MaxRetries: 3,
			},
		},
		Checkpoints: CheckpointsConfig{Dir: "/data"},
		Logging:     LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Polyflow.Name == "" {
		return fmt.Errorf("polyflow.name is required")
	}

	if cfg.Polyflow.Version == "" {
		return fmt.Errorf("polyflow.version is required")
	}

	if cfg.Store.Opensearch.URL == "" {
		return fmt.Errorf("store.opensearch.url is required")
	}

	if cfg.Checkpoints.Dir == "" {
		return fmt.Errorf("checkpoints.dir is required")
	}

	if cfg.Streams.Markets.Enabled {
		if cfg.Source.MarketsURL == "" {
			return fmt.Errorf("source.markets_url is required when the markets stream is enabled")
		}
		if cfg.Streams.Markets.Interval <= 0 {
			return fmt.Errorf("streams.markets.interval must be greater than 0")
		}
		if cfg.Streams.Markets.PageSize <= 0 {
			return fmt.Errorf("streams.markets.page_size must be greater than 0")
		}
		if cfg.Streams.Markets.MaxPages <= 0 {
			return fmt.Errorf("streams.markets.max_pages must be greater than 0")
		}
	}

	if cfg.Streams.Trades.Enabled {
		if cfg.Source.TradesURL == "" {
			return fmt.Errorf("source.trades_url is required when the trades stream is enabled")
		}
		if cfg.Streams.Trades.Interval <= 0 {
			return fmt.Errorf("streams.trades.interval must be greater than 0")
		}
		if cfg.Streams.Trades.PageSize <= 0 {
			return fmt.Errorf("streams.trades.page_size must be greater than 0")
		}
		if cfg.Streams.Trades.MaxPages <= 0 {
			return fmt.Errorf("streams.trades.max_pages must be greater than 0")
		}
		if cfg.Streams.Trades.Lookback <= 0 {
			return fmt.Errorf("streams.trades.lookback must be greater than 0")
		}
	}

	if cfg.Streams.Candles.Enabled {
		if len(cfg.Streams.Candles.Intervals) == 0 {
			return fmt.Errorf("streams.candles.intervals must not be empty")
		}
		if cfg.Streams.Candles.Interval <= 0 {
			return fmt.Errorf("streams.candles.interval must be greater than 0")
		}
		if cfg.Streams.Candles.Lookback <= 0 {
			return fmt.Errorf("streams.candles.lookback must be greater than 0")
		}
		if cfg.Streams.Candles.Grace < 0 {
			return fmt.Errorf("streams.candles.grace must not be negative")
		}
		if cfg.Streams.Candles.FetchLimit <= 0 {
			return fmt.Errorf("streams.candles.fetch_limit must be greater than 0")
		}
	}

	if cfg.Streams.Orderbook.Enabled {
		if cfg.Source.OrderbookURL == "" {
			return fmt.Errorf("source.orderbook_url is required when the orderbook stream is enabled")
		}
		if cfg.Streams.Orderbook.Interval <= 0 {
			return fmt.Errorf("streams.orderbook.interval must be greater than 0")
		}
		if cfg.Streams.Orderbook.Depth <= 0 {
			return fmt.Errorf("streams.orderbook.depth must be greater than 0")
		}
	}

	if cfg.Archive.S3.Enabled {
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when the archive is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.S3.Bucket) {
			return fmt.Errorf("archive.s3.bucket '%s' is not a valid bucket name", cfg.Archive.S3.Bucket)
		}
	}

	return nil
}

// isValidS3Bucket applies the subset of the S3 naming rules that matters for
// catching configuration typos early.
func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.':
		default:
			return false
		}
	}
	return name[0] != '-' && name[0] != '.' && name[len(name)-1] != '-' && name[len(name)-1] != '.'
}
