package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Values come from Default(), then an
// optional YAML file, then PREDMRKT_* environment variables, in that order.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Storage struct {
		DBPath         string `yaml:"db_path"`
		EventBatchSize int    `yaml:"event_batch_size"`
	} `yaml:"storage"`

	Ingestion struct {
		ReconnectDelaySec    int `yaml:"reconnect_delay_sec"`
		MaxReconnectDelaySec int `yaml:"max_reconnect_delay_sec"`
		FlushIntervalSec     int `yaml:"flush_interval_sec"`
	} `yaml:"ingestion"`

	Markets struct {
		TrackCount    int      `yaml:"track_count"`
		MinVolume24h  float64  `yaml:"min_volume_24h"`
		MinLiquidity  float64  `yaml:"min_liquidity"`
		AllowCategory []string `yaml:"allow_category"`
		DenyCategory  []string `yaml:"deny_category"`
		PinnedMarkets []string `yaml:"pinned_markets"`
	} `yaml:"markets"`

	Polymarket struct {
		GammaAPIBase string `yaml:"gamma_api_base"`
		ClobWSURL    string `yaml:"clob_ws_url"`
	} `yaml:"polymarket"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns a config that works out of the box against the public
// Polymarket endpoints.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "predmrkt"
	cfg.App.Version = "1.0.0"
	cfg.Storage.DBPath = "" // resolved under the workspace dir when empty
	cfg.Storage.EventBatchSize = 200
	cfg.Ingestion.ReconnectDelaySec = 1
	cfg.Ingestion.MaxReconnectDelaySec = 60
	cfg.Ingestion.FlushIntervalSec = 2
	cfg.Markets.TrackCount = 10
	cfg.Markets.MinVolume24h = 1000
	cfg.Markets.MinLiquidity = 500
	cfg.Polymarket.GammaAPIBase = "https://gamma-api.polymarket.com"
	cfg.Polymarket.ClobWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	cfg.Metrics.ListenAddr = "127.0.0.1:9109"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig builds the effective config: defaults, overlaid with the YAML
// file at path (missing file is fine when path is empty), then environment
// overrides, then validation.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	ws := c.Polymarket.ClobWSURL
	if ws == "" || (!strings.HasPrefix(ws, "ws://") && !strings.HasPrefix(ws, "wss://")) {
		return fmt.Errorf("invalid CLOB WS URL: %s", ws)
	}
	if c.Polymarket.GammaAPIBase == "" {
		return fmt.Errorf("gamma API base is required")
	}
	if c.Storage.EventBatchSize <= 0 {
		return fmt.Errorf("event batch size must be positive")
	}
	if c.Markets.TrackCount <= 0 {
		return fmt.Errorf("track count must be positive")
	}
	if c.Ingestion.MaxReconnectDelaySec < c.Ingestion.ReconnectDelaySec {
		return fmt.Errorf("max reconnect delay must be >= reconnect delay")
	}
	return nil
}

// overrideWithEnv applies PREDMRKT_* environment variables on top of the
// file config. Environment wins over the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("PREDMRKT_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("PREDMRKT_GAMMA_API_BASE"); v != "" {
		cfg.Polymarket.GammaAPIBase = v
	}
	if v := os.Getenv("PREDMRKT_CLOB_WS_URL"); v != "" {
		cfg.Polymarket.ClobWSURL = v
	}
	if v := os.Getenv("PREDMRKT_METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("PREDMRKT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PREDMRKT_TRACK_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Markets.TrackCount = n
		}
	}
}
