// Package config loads the engine's YAML configuration, overlaid with
// environment variables for secrets, following the teacher's
// configs.LoadConfig(path) + os.Getenv pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenYAML describes one Token Registry entry as declared in config.yml.
type TokenYAML struct {
	Symbol        string `yaml:"symbol"`
	Address       string `yaml:"address"`
	Decimals      uint8  `yaml:"decimals"`
	Native        bool   `yaml:"native"`
	WrappedNative bool   `yaml:"wrappedNative"`
}

// SchedulerYAML configures the Execution Scheduler's tick cadence.
type SchedulerYAML struct {
	TickIntervalSec   int `yaml:"tickIntervalSec"`
	HealthIntervalSec int `yaml:"healthIntervalSec"`
	WorkerPoolSize    int `yaml:"workerPoolSize"`
}

// PriceOracleYAML configures the Price Oracle Cache's upstream.
type PriceOracleYAML struct {
	BaseURL        string `yaml:"baseUrl"`
	HTTPTimeoutSec int    `yaml:"httpTimeoutSec"`
}

// Config is the engine's entire static configuration.
type Config struct {
	RPC     string `yaml:"rpc"`
	ChainID int64  `yaml:"chainId"`

	Router        string      `yaml:"router"`
	Tokens        []TokenYAML `yaml:"tokens"`
	DirectPairs   []string    `yaml:"directPairs"`

	Scheduler   SchedulerYAML   `yaml:"scheduler"`
	PriceOracle PriceOracleYAML `yaml:"priceOracle"`

	MySQLDSN string `yaml:"mysqlDsn"`
	LogLevel string `yaml:"logLevel"`

	// Secrets, never read from YAML: overlaid from the environment.
	VaultMasterPassphrase string `yaml:"-"`
	PriceOracleAPIKey     string `yaml:"-"`
}

// LoadConfig reads path, parses it as YAML, then overlays secrets from the
// environment (loading a local .env first, exactly as the teacher's own
// tests do, so a developer machine behaves like production without
// exporting variables by hand).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.VaultMasterPassphrase = os.Getenv("VAULT_MASTER_PASSPHRASE")
	if cfg.VaultMasterPassphrase == "" {
		return nil, fmt.Errorf("config: VAULT_MASTER_PASSPHRASE not set")
	}

	cfg.PriceOracleAPIKey = os.Getenv("PRICE_ORACLE_API_KEY")

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.MySQLDSN = dsn
	}

	return &cfg, nil
}

// TickInterval returns the configured scheduler tick interval, defaulting
// to 60s when unset.
func (c *Config) TickInterval() time.Duration {
	if c.Scheduler.TickIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Scheduler.TickIntervalSec) * time.Second
}

// HealthInterval returns the configured health-check interval, defaulting
// to 5m when unset.
func (c *Config) HealthInterval() time.Duration {
	if c.Scheduler.HealthIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Scheduler.HealthIntervalSec) * time.Second
}
