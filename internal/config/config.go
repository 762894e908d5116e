// Package config loads the walletd configuration from a JSON file and
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/hamzazf/shieldwallet/internal/registry"
)

// EnvPrefix prefixes every environment override, e.g. SHIELDWALLET_LISTEN_ADDR.
const EnvPrefix = "SHIELDWALLET"

// MaxAccumulatorHeight bounds the accumulator height accepted by Validate.
const MaxAccumulatorHeight = 32

// Config represents the walletd configuration.
type Config struct {
	// Service
	ListenAddr  string   `json:"listen_addr" envconfig:"LISTEN_ADDR"`
	CORSOrigins []string `json:"cors_origins" envconfig:"CORS_ORIGINS"`
	RateLimit   float64  `json:"rate_limit" envconfig:"RATE_LIMIT"`
	RateBurst   int      `json:"rate_burst" envconfig:"RATE_BURST"`

	// Ledger endpoints by network name
	LedgerURLs LedgerURLs `json:"ledger_urls" envconfig:"LEDGER_URLS"`

	// File paths
	DataDir     string `json:"data_dir" envconfig:"DATA_DIR"`
	ProvingPath string `json:"proving_path" envconfig:"PROVING_PATH"`

	// Protocol
	AccumulatorHeight int `json:"accumulator_height" envconfig:"ACCUMULATOR_HEIGHT"`
	PageSize          int `json:"page_size" envconfig:"PAGE_SIZE"`
	MaxStalledSteps   int `json:"max_stalled_steps" envconfig:"MAX_STALLED_STEPS"`
	TimeoutSeconds    int `json:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`

	// Logging
	LogLevel     string `json:"log_level" envconfig:"LOG_LEVEL"`
	LogFile      string `json:"log_file" envconfig:"LOG_FILE"`
	LogJSON      bool   `json:"log_json" envconfig:"LOG_JSON"`
	EnableAudit  bool   `json:"enable_audit" envconfig:"ENABLE_AUDIT"`
	AuditLogPath string `json:"audit_log_path" envconfig:"AUDIT_LOG_PATH"`
}

// LedgerURLs maps network names to ledger endpoints. From the environment
// it reads "name=url" pairs separated by commas.
type LedgerURLs map[string]string

// Decode implements envconfig.Decoder.
func (l *LedgerURLs) Decode(value string) error {
	out := make(LedgerURLs)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, u, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid ledger url pair %q", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(u)
	}
	*l = out
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        "127.0.0.1:8645",
		CORSOrigins:       []string{"*"},
		RateLimit:         20,
		RateBurst:         40,
		LedgerURLs:        LedgerURLs{"dolphin": "http://127.0.0.1:8646"},
		DataDir:           "data",
		ProvingPath:       "keys/proving.bin",
		AccumulatorHeight: 20,
		PageSize:          128,
		MaxStalledSteps:   16,
		TimeoutSeconds:    30,
		LogLevel:          "info",
		LogFile:           "walletd.log",
		EnableAudit:       true,
		AuditLogPath:      "audit.log",
	}
}

// LoadConfig loads the configuration file, writing the defaults there on
// first run, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		cfg = DefaultConfig()
		// Decoding merges into a non-nil map.
		cfg.LedgerURLs = nil
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		if cfg.LedgerURLs == nil {
			cfg.LedgerURLs = DefaultConfig().LedgerURLs
		}
	} else {
		cfg = DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as indented JSON.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks ranges and ledger endpoints.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.AccumulatorHeight <= 0 || c.AccumulatorHeight > MaxAccumulatorHeight {
		return fmt.Errorf("accumulator_height must be in [1, %d]", MaxAccumulatorHeight)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.MaxStalledSteps <= 0 {
		return fmt.Errorf("max_stalled_steps must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	if len(c.LedgerURLs) == 0 {
		return fmt.Errorf("ledger_urls must name at least one network")
	}
	for name, raw := range c.LedgerURLs {
		if _, err := registry.ParseNetwork(name); err != nil {
			return fmt.Errorf("ledger_urls: %w", err)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ledger_urls: %s: invalid url %q", name, raw)
		}
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return fmt.Errorf("audit_log_path must be set when audit is enabled")
	}
	return nil
}

// Timeout is the ledger request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Ledgers returns the ledger URL of every configured network.
func (c *Config) Ledgers() (map[registry.Network]string, error) {
	out := make(map[registry.Network]string, len(c.LedgerURLs))
	for name, u := range c.LedgerURLs {
		n, err := registry.ParseNetwork(name)
		if err != nil {
			return nil, err
		}
		out[n] = u
	}
	return out, nil
}

// AuditFile returns the audit log path, empty when audit is disabled.
func (c *Config) AuditFile() string {
	if !c.EnableAudit {
		return ""
	}
	return c.AuditLogPath
}
