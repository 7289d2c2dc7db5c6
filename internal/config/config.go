package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-triage/internal/utils"
)

// Config captures the settings required to boot the triage engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	History   HistoryConfig   `yaml:"history"`
	Generator GeneratorConfig `yaml:"generator"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig controls the gRPC and HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	APIKey          string        `yaml:"apiKey"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig addresses the Elasticsearch record store.
type StoreConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"apiKey"`
	LogsIndex      string        `yaml:"logsIndex"`
	IncidentsIndex string        `yaml:"incidentsIndex"`
	AuditIndex     string        `yaml:"auditIndex"`
	Timeout        time.Duration `yaml:"timeout"`
}

// History backends.
const (
	HistoryElasticsearch = "elasticsearch"
	HistoryWeaviate      = "weaviate"
)

// HistoryConfig selects where similar historical incidents are ranked.
type HistoryConfig struct {
	Backend  string         `yaml:"backend"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

// WeaviateConfig configures the similarity search cluster.
type WeaviateConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Class    string        `yaml:"class"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GeneratorConfig configures the Gemini plan generator. No API key means the
// generator is not configured.
type GeneratorConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"apiKey"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
}

// ScannerConfig controls windowing, detection thresholds and context limits.
type ScannerConfig struct {
	Window                 time.Duration `yaml:"window"`
	MaxRecords             int           `yaml:"maxRecords"`
	Interval               time.Duration `yaml:"interval"`
	ErrorRateThreshold     int           `yaml:"errorRateThreshold"`
	RepeatFailureThreshold int           `yaml:"repeatFailureThreshold"`
	SignatureLength        int           `yaml:"signatureLength"`
	Keywords               []string      `yaml:"keywords"`
	ContextRecords         int           `yaml:"contextRecords"`
	HistoryLimit           int           `yaml:"historyLimit"`
	CorrelationWindow      time.Duration `yaml:"correlationWindow"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for fallback remediation steps.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheValkey = "valkey"
)

// CacheConfig controls caching of history and aggregation lookups.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Backend        string        `yaml:"backend"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	KeyPrefix      string        `yaml:"keyPrefix"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	TLS            bool          `yaml:"tls"`
	HistoryTTL     time.Duration `yaml:"historyTTL"`
	AggregationTTL time.Duration `yaml:"aggregationTTL"`
}

// EventsConfig controls decision event publishing. Empty URL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"natsURL"`
	Subject string `yaml:"subject"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_TRIAGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8000",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			LogsIndex:      "greenstick-logs",
			IncidentsIndex: "greenstick-incidents",
			AuditIndex:     "greenstick-audit",
			Timeout:        10 * time.Second,
		},
		History: HistoryConfig{
			Backend:  HistoryElasticsearch,
			Weaviate: WeaviateConfig{Class: "HistoricalIncident", Timeout: 5 * time.Second},
		},
		Generator: GeneratorConfig{
			Endpoint:        "https://generativelanguage.googleapis.com",
			Model:           "gemini-1.5-flash",
			Timeout:         30 * time.Second,
			Temperature:     0.2,
			BreakerFailures: 5,
			BreakerCooldown: time.Minute,
		},
		Scanner: ScannerConfig{
			Window:                 24 * time.Hour,
			MaxRecords:             100,
			ErrorRateThreshold:     3,
			RepeatFailureThreshold: 2,
			SignatureLength:        50,
			Keywords:               []string{"OOM", "FATAL", "crash", "killed", "OutOfMemory", "connection refused", "timeout"},
			ContextRecords:         10,
			HistoryLimit:           3,
			CorrelationWindow:      24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:        false,
			Backend:        CacheMemory,
			KeyPrefix:      "mirador-triage:",
			HistoryTTL:     5 * time.Minute,
			AggregationTTL: time.Minute,
			DialTimeout:    2 * time.Second,
			ReadTimeout:    500 * time.Millisecond,
			WriteTimeout:   500 * time.Millisecond,
			MaxRetries:     2,
		},
		Events: EventsConfig{Subject: "triage.decisions"},
	}
}

// Validate rejects settings that can only be programmer errors.
func (c Config) Validate() error {
	switch {
	case c.Scanner.Window <= 0:
		return utils.InvalidArgument("config", "scanner.window must be positive")
	case c.Scanner.MaxRecords <= 0:
		return utils.InvalidArgument("config", "scanner.maxRecords must be positive")
	case c.Scanner.Interval < 0:
		return utils.InvalidArgument("config", "scanner.interval must not be negative")
	case c.Scanner.ErrorRateThreshold <= 0:
		return utils.InvalidArgument("config", "scanner.errorRateThreshold must be positive")
	case c.Scanner.RepeatFailureThreshold <= 0:
		return utils.InvalidArgument("config", "scanner.repeatFailureThreshold must be positive")
	case c.Scanner.SignatureLength <= 0:
		return utils.InvalidArgument("config", "scanner.signatureLength must be positive")
	case c.Scanner.ContextRecords <= 0:
		return utils.InvalidArgument("config", "scanner.contextRecords must be positive")
	case c.Scanner.HistoryLimit <= 0:
		return utils.InvalidArgument("config", "scanner.historyLimit must be positive")
	}

	switch c.History.Backend {
	case HistoryElasticsearch:
	case HistoryWeaviate:
		if c.History.Weaviate.Endpoint == "" {
			return utils.InvalidArgument("config", "history.weaviate.endpoint is required for the weaviate backend")
		}
	default:
		return utils.InvalidArgument("config", fmt.Sprintf("unknown history backend %q", c.History.Backend))
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheMemory:
		case CacheValkey:
			if c.Cache.Addr == "" {
				return utils.InvalidArgument("config", "cache.addr is required for the valkey backend")
			}
		default:
			return utils.InvalidArgument("config", fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_TRIAGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := firstEnv("MIRADOR_TRIAGE_ELASTIC_ENDPOINT", "ELASTIC_ENDPOINT"); v != "" {
		cfg.Store.Endpoint = v
	}
	if v := firstEnv("MIRADOR_TRIAGE_ELASTIC_API_KEY", "ELASTIC_API_KEY"); v != "" {
		cfg.Store.APIKey = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_TRIAGE_WEAVIATE_URL"); v != "" {
		cfg.History.Weaviate.Endpoint = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_WEAVIATE_API_KEY"); v != "" {
		cfg.History.Weaviate.APIKey = v
	}
	if v := firstEnv("MIRADOR_TRIAGE_GEMINI_API_KEY", "GEMINI_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_GEMINI_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_GEMINI_ENDPOINT"); v != "" {
		cfg.Generator.Endpoint = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_SCAN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.Window = d
		}
	}
	if v := os.Getenv("MIRADOR_TRIAGE_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.Interval = d
		}
	}
	if v := os.Getenv("MIRADOR_TRIAGE_SCAN_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scanner.MaxRecords = n
		}
	}
	if v := os.Getenv("MIRADOR_TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_TRIAGE_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_HISTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.HistoryTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_TRIAGE_CACHE_AGGREGATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AggregationTTL = d
		}
	}
	if v := firstEnv("MIRADOR_TRIAGE_NATS_URL", "NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("MIRADOR_TRIAGE_NATS_SUBJECT"); v != "" {
		cfg.Events.Subject = v
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
