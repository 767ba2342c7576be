// Package config defines all configuration for the PnL reconciliation engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// deployment-specific fields overridable via PNL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Accounts []string      `mapstructure:"accounts"`
	Source   SourceConfig  `mapstructure:"source"`
	Engine   EngineConfig  `mapstructure:"engine"`
	Store    StoreConfig   `mapstructure:"store"`
	Server   ServerConfig  `mapstructure:"server"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// SourceConfig selects where raw activity rows come from.
//
//   - "dataapi":  the venue's public data + CLOB REST APIs.
//   - "postgres": an analytics table holding the same rows (pnl_activity).
//
// The CLOB base URL is needed in both modes for resolution payouts and
// midpoint quotes.
type SourceConfig struct {
	Driver      string `mapstructure:"driver"`
	DataBaseURL string `mapstructure:"data_base_url"`
	CLOBBaseURL string `mapstructure:"clob_base_url"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	PageSize    int    `mapstructure:"page_size"`
}

// EngineConfig tunes the ledger fold and formula selection.
//
//   - Epsilon: share quantities with magnitude below this are clamped to
//     exactly zero (floating-point drift absorption).
//   - PairDecimals: quantity rounding used when matching hedge legs of a
//     complete-set conversion.
//   - ResolutionFeeBps: flat fee, in basis points, charged on positive
//     settlement/redemption proceeds.
//   - Formula: "auto" lets the wallet-style classifier pick; "position" or
//     "maker-spread" force one.
//   - Concurrency: how many accounts are computed in parallel per batch;
//     bounded to respect upstream rate limits.
type EngineConfig struct {
	Epsilon          float64 `mapstructure:"epsilon"`
	PairDecimals     int     `mapstructure:"pair_decimals"`
	ResolutionFeeBps int     `mapstructure:"resolution_fee_bps"`
	Formula          string  `mapstructure:"formula"`
	Concurrency      int     `mapstructure:"concurrency"`
}

// StoreConfig sets where reports and the resolution snapshot are persisted
// (JSON files) and how long a cached resolution snapshot may be reused.
type StoreConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	ResolutionMaxAge time.Duration `mapstructure:"resolution_max_age"`
}

// ServerConfig controls the read-only results server. When enabled, the
// process stays up after the first batch and recomputes every
// RefreshInterval, pushing a refresh event to WebSocket clients.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Deployment fields use env vars: PNL_POSTGRES_DSN, PNL_DATA_BASE_URL,
// PNL_CLOB_BASE_URL, PNL_ACCOUNTS (comma-separated).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PNL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("source.driver", "dataapi")
	v.SetDefault("source.page_size", 500)
	v.SetDefault("engine.epsilon", 1e-4)
	v.SetDefault("engine.pair_decimals", 2)
	v.SetDefault("engine.formula", "auto")
	v.SetDefault("engine.concurrency", 5)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("store.resolution_max_age", 15*time.Minute)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.refresh_interval", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override deployment fields from env
	if dsn := os.Getenv("PNL_POSTGRES_DSN"); dsn != "" {
		cfg.Source.PostgresDSN = dsn
	}
	if url := os.Getenv("PNL_DATA_BASE_URL"); url != "" {
		cfg.Source.DataBaseURL = url
	}
	if url := os.Getenv("PNL_CLOB_BASE_URL"); url != "" {
		cfg.Source.CLOBBaseURL = url
	}
	if accounts := os.Getenv("PNL_ACCOUNTS"); accounts != "" {
		cfg.Accounts = strings.Split(accounts, ",")
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. Account addresses
// are normalized to their EIP-55 checksum form so every downstream map key
// and report filename agrees on casing.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts is required (set PNL_ACCOUNTS or list them in the config file)")
	}
	for i, acct := range c.Accounts {
		trimmed := strings.TrimSpace(acct)
		if !common.IsHexAddress(trimmed) {
			return fmt.Errorf("accounts[%d]: %q is not a valid address", i, acct)
		}
		c.Accounts[i] = common.HexToAddress(trimmed).Hex()
	}

	switch c.Source.Driver {
	case "dataapi":
		if c.Source.DataBaseURL == "" {
			return fmt.Errorf("source.data_base_url is required for the dataapi driver")
		}
	case "postgres":
		if c.Source.PostgresDSN == "" {
			return fmt.Errorf("source.postgres_dsn is required for the postgres driver (set PNL_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("source.driver must be one of: dataapi, postgres")
	}
	if c.Source.CLOBBaseURL == "" {
		return fmt.Errorf("source.clob_base_url is required")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be > 0")
	}

	if c.Engine.Epsilon <= 0 {
		return fmt.Errorf("engine.epsilon must be > 0")
	}
	if c.Engine.PairDecimals < 0 {
		return fmt.Errorf("engine.pair_decimals must be >= 0")
	}
	if c.Engine.ResolutionFeeBps < 0 || c.Engine.ResolutionFeeBps > 10000 {
		return fmt.Errorf("engine.resolution_fee_bps must be in [0, 10000]")
	}
	switch c.Engine.Formula {
	case "auto", "position", "maker-spread":
	default:
		return fmt.Errorf("engine.formula must be one of: auto, position, maker-spread")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be > 0")
	}

	if c.Server.Enabled && c.Server.RefreshInterval <= 0 {
		return fmt.Errorf("server.refresh_interval must be > 0 when the server is enabled")
	}
	return nil
}

// ResolutionFeeRate converts the configured basis points to a fraction.
func (c *Config) ResolutionFeeRate() float64 {
	return float64(c.Engine.ResolutionFeeBps) / 10000
}
