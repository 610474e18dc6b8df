// Package config provides configuration for the photon wallet core.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/photon-wallet/photon/internal/chain"
)

// Default values.
const (
	DefaultDataDir            = "~/.photon"
	DefaultAPIAddr            = "127.0.0.1:9740"
	DefaultMaxChannelCapacity = 4_000_000 // sats, aggregate cap across channels
	DefaultInvoiceExpirySec   = 3600
)

// Config holds all configuration for the wallet core.
type Config struct {
	// Network is the Bitcoin network (mainnet, testnet, regtest).
	Network chain.Network `yaml:"network"`

	// DataDir is where the encrypted database and backups live.
	DataDir string `yaml:"data_dir"`

	// APIAddr is the JSON-RPC listen address for the UI layer.
	APIAddr string `yaml:"api_addr"`

	// LSP holds liquidity-provider settings.
	LSP LSPConfig `yaml:"lsp"`

	// Node holds local Lightning node settings.
	Node NodeConfig `yaml:"node"`

	// MaxChannelCapacitySats caps aggregate channel capacity the wallet
	// may reach when a swap would require new inbound capacity.
	MaxChannelCapacitySats uint64 `yaml:"max_channel_capacity_sats"`

	// InvoiceExpirySec is the expiry for swap invoices handed to the LSP.
	InvoiceExpirySec int64 `yaml:"invoice_expiry_sec"`

	// Logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// LSPConfig holds liquidity-service-provider settings.
type LSPConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
}

// NodeConfig holds local Lightning node endpoint settings.
type NodeConfig struct {
	RPCURL string `yaml:"rpc_url"`
	WSURL  string `yaml:"ws_url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Network:                chain.Mainnet,
		DataDir:                DefaultDataDir,
		APIAddr:                DefaultAPIAddr,
		MaxChannelCapacitySats: DefaultMaxChannelCapacity,
		InvoiceExpirySec:       DefaultInvoiceExpirySec,
		Logging:                LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if !c.Network.Valid() {
		return fmt.Errorf("invalid network: %s", c.Network)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.MaxChannelCapacitySats == 0 {
		return fmt.Errorf("max_channel_capacity_sats must be positive")
	}
	return nil
}

// ExpandPath expands ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
