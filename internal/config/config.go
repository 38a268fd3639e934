package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside a library home directory.
const FileName = "vaultuplink.yaml"

type Config struct {
	Satellite SatelliteConfig `yaml:"satellite"`
	Erasure   ErasureConfig   `yaml:"erasure"`
	Limits    LimitsConfig    `yaml:"limits"`
	Events    EventsConfig    `yaml:"events"`
	Client    ClientConfig    `yaml:"client"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SatelliteConfig struct {
	Address         string `yaml:"address"`
	DataDir         string `yaml:"data_dir"`
	MetadataDir     string `yaml:"metadata_dir"`
	Nodes           int    `yaml:"nodes"`
	ListPageSize    int    `yaml:"list_page_size"`
	SegmentSize     int64  `yaml:"segment_size"`
	InlineThreshold int64  `yaml:"inline_threshold"`
	// ExpirySweepSecs is how often expired objects and stale uploads are reclaimed.
	ExpirySweepSecs int `yaml:"expiry_sweep_secs"`
	// StaleUploadHours aborts multipart uploads older than this. 0 keeps them forever.
	StaleUploadHours int `yaml:"stale_upload_hours"`
}

type ErasureConfig struct {
	DataShards   int `yaml:"data_shards"`
	ParityShards int `yaml:"parity_shards"`
}

// LimitsConfig holds per-project defaults. Zero means unlimited.
type LimitsConfig struct {
	RequestsPerSec    float64 `yaml:"requests_per_sec"`
	RequestBurst      int     `yaml:"request_burst"`
	KeyRequestsPerSec float64 `yaml:"key_requests_per_sec"`
	KeyRequestBurst   int     `yaml:"key_request_burst"`
	EgressBytesPerSec int64   `yaml:"egress_bytes_per_sec"`
	StorageBytes      int64   `yaml:"storage_bytes"`
	Segments          int64   `yaml:"segments"`
	BandwidthBytes    int64   `yaml:"bandwidth_bytes"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	ListKey string `yaml:"list_key"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type WebhookConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EventsConfig selects where bucket and object events are published.
// A backend is enabled by setting its address.
type EventsConfig struct {
	Workers    int            `yaml:"workers"`
	QueueSize  int            `yaml:"queue_size"`
	MaxRetries int            `yaml:"max_retries"`
	NATS       NATSConfig     `yaml:"nats"`
	Redis      RedisConfig    `yaml:"redis"`
	Kafka      KafkaConfig    `yaml:"kafka"`
	AMQP       AMQPConfig     `yaml:"amqp"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Webhook    WebhookConfig  `yaml:"webhook"`
}

type ClientConfig struct {
	UserAgent         string `yaml:"user_agent"`
	DialTimeoutMillis int    `yaml:"dial_timeout_ms"`
	TempDirectory     string `yaml:"temp_directory"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with every default applied, rooted at home.
func Default(home string) *Config {
	return &Config{
		Satellite: SatelliteConfig{
			Address:         "127.0.0.1:7777",
			DataDir:         filepath.Join(home, "nodes"),
			MetadataDir:     filepath.Join(home, "metadata"),
			Nodes:           6,
			ListPageSize:    1000,
			SegmentSize:     64 * 1024 * 1024,
			InlineThreshold: 4 * 1024,
			ExpirySweepSecs: 3600,
		},
		Erasure: ErasureConfig{
			DataShards:   4,
			ParityShards: 2,
		},
		Limits: LimitsConfig{
			RequestBurst:    100,
			KeyRequestBurst: 100,
		},
		Events: EventsConfig{
			Workers:    2,
			QueueSize:  256,
			MaxRetries: 3,
		},
		Client: ClientConfig{
			UserAgent:         "vaultuplink",
			DialTimeoutMillis: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults for the directory containing it.
func Load(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Satellite.DataDir, err = homedir.Expand(cfg.Satellite.DataDir); err != nil {
		return nil, fmt.Errorf("expand data_dir: %w", err)
	}
	if cfg.Satellite.MetadataDir, err = homedir.Expand(cfg.Satellite.MetadataDir); err != nil {
		return nil, fmt.Errorf("expand metadata_dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	if c.Satellite.Address == "" {
		return fmt.Errorf("satellite address is required")
	}
	if c.Satellite.Nodes <= 0 {
		return fmt.Errorf("satellite nodes must be positive, got %d", c.Satellite.Nodes)
	}
	if c.Erasure.DataShards <= 0 || c.Erasure.ParityShards < 0 {
		return fmt.Errorf("erasure shards must be positive, got %d+%d", c.Erasure.DataShards, c.Erasure.ParityShards)
	}
	if c.Satellite.ExpirySweepSecs <= 0 {
		return fmt.Errorf("expiry sweep interval must be positive, got %d", c.Satellite.ExpirySweepSecs)
	}
	if c.Satellite.SegmentSize <= 0 {
		return fmt.Errorf("segment size must be positive, got %d", c.Satellite.SegmentSize)
	}
	return nil
}

// MetadataPath returns the bbolt database file path.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Satellite.MetadataDir, "satellite.db")
}

// DialTimeout returns the configured dial timeout.
func (c *ClientConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMillis) * time.Millisecond
}
