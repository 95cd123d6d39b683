package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service   ServiceConfig             `yaml:"service"`
	Logging   LoggingConfig             `yaml:"logging"`
	Channels  ChannelsConfig            `yaml:"channels"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Alerts    AlertsConfig              `yaml:"alerts"`
	Storage   StorageConfig             `yaml:"storage"`
	Archive   ArchiveConfig             `yaml:"archive"`
	Metrics   MetricsConfig             `yaml:"metrics"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type ExchangeConfig struct {
	WsURL            string   `yaml:"ws_url"`
	RestURL          string   `yaml:"rest_url"`
	Symbols          []string `yaml:"symbols"`
	Streams          []string `yaml:"streams"`
	ReconnectDelayS  int      `yaml:"reconnect_delay"`
	DepthLevels      int      `yaml:"depth_levels"`
	SnapshotLimit    int      `yaml:"snapshot_limit"`
	SnapshotsPerSec  float64  `yaml:"snapshots_per_sec"`
	SnapshotBurst    int      `yaml:"snapshot_burst"`
	KeepAliveSeconds int      `yaml:"keepalive_seconds"`
}

type AlertsConfig struct {
	PriceMove PriceMoveConfig `yaml:"price_move"`
	Flow      FlowConfig      `yaml:"flow"`
	Spread    SpreadConfig    `yaml:"spread"`
	Queue     QueueConfig     `yaml:"queue"`
	Email     EmailConfig     `yaml:"email"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
}

type PriceMoveConfig struct {
	Pct24h        float64 `yaml:"pct_24h"`
	Window24hMs   int64   `yaml:"window_24h_ms"`
	PctShort      float64 `yaml:"pct_short"`
	WindowShortMs int64   `yaml:"window_short_ms"`
	CooldownMs    int64   `yaml:"cooldown_ms"`
	UseDepthMid   bool    `yaml:"use_depth_mid"`
}

type FlowConfig struct {
	Threshold   float64 `yaml:"threshold"`
	WindowMs    int64   `yaml:"window_ms"`
	MinNotional float64 `yaml:"min_notional"`
	CooldownMs  int64   `yaml:"cooldown_ms"`
}

type SpreadConfig struct {
	ThresholdBps float64 `yaml:"threshold_bps"`
	WindowMs     int64   `yaml:"window_ms"`
	CooldownMs   int64   `yaml:"cooldown_ms"`
}

type QueueConfig struct {
	Threshold  float64 `yaml:"threshold"`
	WindowMs   int64   `yaml:"window_ms"`
	CooldownMs int64   `yaml:"cooldown_ms"`
}

type EmailConfig struct {
	Host     string   `yaml:"smtp_host"`
	Port     int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from_addr"`
	To       []string `yaml:"to_addrs"`
	UseSSL   bool     `yaml:"use_ssl"`
}

type DeliveryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	RetryDelayS int `yaml:"retry_delay"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url"`
	MaxMemoryMB int64  `yaml:"max_memory_mb"`
	HotWindowMs int64  `yaml:"hot_window_ms"`
}

type ArchiveConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Dir           string   `yaml:"dir"`
	Format        string   `yaml:"format"`
	RotateMinutes int      `yaml:"rotate_minutes"`
	MaxRows       int      `yaml:"max_rows"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch      CloudWatchConfig `yaml:"cloudwatch"`
	ReportIntervalS int              `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns a config populated with the stock thresholds and
// windows. Unmarshalling YAML over it keeps every key the file omits.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{Name: "cryptosentry", Version: "dev"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Channels: ChannelsConfig{
			EventBuffer: 1024,
		},
		Alerts: AlertsConfig{
			PriceMove: PriceMoveConfig{
				Pct24h:        0.05,
				Window24hMs:   24 * 3600 * 1000,
				PctShort:      0.02,
				WindowShortMs: 3600 * 1000,
				CooldownMs:    3600 * 1000,
				UseDepthMid:   true,
			},
			Flow: FlowConfig{
				Threshold:   0.6,
				WindowMs:    3 * 60 * 1000,
				MinNotional: 100000,
				CooldownMs:  10 * 60 * 1000,
			},
			Spread: SpreadConfig{
				ThresholdBps: 30,
				WindowMs:     10 * 1000,
				CooldownMs:   10 * 60 * 1000,
			},
			Queue: QueueConfig{
				Threshold:  0.7,
				WindowMs:   15 * 1000,
				CooldownMs: 10 * 60 * 1000,
			},
			Delivery: DeliveryConfig{MaxRetries: 2, RetryDelayS: 5},
		},
		Storage: StorageConfig{
			Backend:     "memory",
			RedisURL:    "redis://localhost:6379/0",
			MaxMemoryMB: 8 * 1024,
			HotWindowMs: 24 * 3600 * 1000,
		},
		Archive: ArchiveConfig{
			Dir:           "data",
			Format:        "jsonl",
			RotateMinutes: 5,
			MaxRows:       50000,
		},
		Metrics: MetricsConfig{ReportIntervalS: 60},
	}
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural requirements and threshold sanity.
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("config must define at least one exchange")
	}
	for name, ex := range c.Exchanges {
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("exchange '%s' must define a list of symbols", name)
		}
		if ex.ReconnectDelayS <= 0 {
			ex.ReconnectDelayS = 5
		}
		if ex.SnapshotLimit == 0 {
			ex.SnapshotLimit = 1000
		}
		if ex.DepthLevels < 0 {
			return fmt.Errorf("exchange '%s': depth_levels must not be negative", name)
		}
		if len(ex.Streams) == 0 {
			ex.Streams = []string{"ticker"}
		}
		c.Exchanges[name] = ex
	}

	pm := c.Alerts.PriceMove
	if pm.Pct24h <= 0 || pm.PctShort <= 0 {
		return fmt.Errorf("alerts.price_move percentages must be positive")
	}
	if pm.Window24hMs <= 0 || pm.WindowShortMs <= 0 {
		return fmt.Errorf("alerts.price_move windows must be positive")
	}
	if c.Alerts.Flow.Threshold <= 0 || c.Alerts.Flow.Threshold > 1 {
		return fmt.Errorf("alerts.flow.threshold must be in (0, 1]")
	}
	if c.Alerts.Queue.Threshold <= 0 || c.Alerts.Queue.Threshold > 1 {
		return fmt.Errorf("alerts.queue.threshold must be in (0, 1]")
	}
	if c.Alerts.Spread.ThresholdBps <= 0 {
		return fmt.Errorf("alerts.spread.threshold_bps must be positive")
	}

	switch c.Storage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("storage.backend must be 'memory' or 'redis', got '%s'", c.Storage.Backend)
	}

	switch c.Archive.Format {
	case "jsonl", "parquet":
	default:
		return fmt.Errorf("archive.format must be 'jsonl' or 'parquet', got '%s'", c.Archive.Format)
	}

	return nil
}
