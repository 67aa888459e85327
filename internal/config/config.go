// Package config holds swapkit's tunable parameters: fee and dust fallbacks,
// output scheme, lock durations, EVM endpoints and contract deployments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/swapkit/internal/address"
	"github.com/klingon-exchange/swapkit/internal/decred"
	"github.com/klingon-exchange/swapkit/internal/evm"
	"github.com/klingon-exchange/swapkit/internal/storage"
	"github.com/klingon-exchange/swapkit/internal/utxo"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

// FileName is the default config file name.
const FileName = "config.yaml"

// Config is the complete swapkit configuration.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Storage storage.Config `yaml:"storage"`
	Utxo    UtxoConfig     `yaml:"utxo"`
	Decred  DecredConfig   `yaml:"decred"`
	EVM     EVMConfig      `yaml:"evm"`
}

// UtxoConfig configures the script-based builders.
type UtxoConfig struct {
	// FeeRate is the sat/vbyte fallback when the caller supplies none.
	FeeRate   uint64         `yaml:"fee_rate"`
	DustLimit uint64         `yaml:"dust_limit"`
	Scheme    address.Scheme `yaml:"scheme"`
}

// DecredConfig configures the Decred variant.
type DecredConfig struct {
	LockDuration time.Duration `yaml:"lock_duration"`
	FeeRate      uint64        `yaml:"fee_rate"` // atoms/byte
	DustLimit    uint64        `yaml:"dust_limit"`
}

// EVMConfig configures the swap contract client.
type EVMConfig struct {
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
	// Subnets is keyed by "network/subnet", e.g. "ethereum/sepolia".
	Subnets map[string]*EVMSubnetConfig `yaml:"subnets,omitempty"`
}

// EVMSubnetConfig holds the endpoint and optional deployment overrides for
// one EVM subnet.
type EVMSubnetConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	EtherSwap string `yaml:"ether_swap,omitempty"`
	ERC20Swap string `yaml:"erc20_swap,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Logging: logging.Config{
			Level:      "info",
			TimeFormat: time.TimeOnly,
		},
		Storage: storage.Config{
			DataDir: "~/.swapkit",
		},
		Utxo: UtxoConfig{
			FeeRate:   10,
			DustLimit: utxo.DefaultDustLimit,
			Scheme:    utxo.DefaultScheme,
		},
		Decred: DecredConfig{
			LockDuration: decred.DefaultLockDuration,
			FeeRate:      10,
			DustLimit:    decred.DefaultDustLimit,
		},
		EVM: EVMConfig{
			ReceiptTimeout: evm.DefaultReceiptTimeout,
			Subnets: map[string]*EVMSubnetConfig{
				"ethereum/ganache_simnet": {RPCURL: "http://127.0.0.1:8545"},
			},
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file yields
// the defaults; unknown keys are ignored.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(expandPath(path))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# swapkit configuration\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a builder.
func (c *Config) Validate() error {
	if _, err := address.ParseScheme(string(c.Utxo.Scheme)); err != nil {
		return fmt.Errorf("utxo.scheme: %w", err)
	}
	if !c.Utxo.Scheme.IsScriptScheme() {
		return fmt.Errorf("utxo.scheme: %s cannot hold a swap output", c.Utxo.Scheme)
	}
	if c.Decred.LockDuration <= 0 {
		return fmt.Errorf("decred.lock_duration must be positive, got %s", c.Decred.LockDuration)
	}
	if c.EVM.ReceiptTimeout <= 0 {
		return fmt.Errorf("evm.receipt_timeout must be positive, got %s", c.EVM.ReceiptTimeout)
	}
	return nil
}

// EVMSubnet returns the settings for an EVM subnet, or nil.
func (c *Config) EVMSubnet(network, subnet string) *EVMSubnetConfig {
	return c.EVM.Subnets[network+"/"+subnet]
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(expandPath(dataDir), FileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
