// Package config loads and validates the yaml configuration a host embeds
// the pipeline with: chain identity, the router and proxy addresses, the
// simulation backend credentials, and tuning knobs.
package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/checks"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/core/simulation"
	"github.com/EIP-8009-Proxy-Clear-Signing/balance-proxy-go/pkg/logger"
)

// Config is the on-disk shape. Addresses stay strings here and convert
// through the typed accessors below, so a typo fails at load time instead of
// deep inside an attempt.
type Config struct {
	Environment string `yaml:"environment" validate:"omitempty,oneof=production development"`

	ChainID int64  `yaml:"chain_id" validate:"required,gt=0"`
	RPCURL  string `yaml:"rpc_url" validate:"required,url"`

	RouterAddress string `yaml:"router_address" validate:"required,eth_addr"`
	ProxyAddress  string `yaml:"proxy_address" validate:"required,eth_addr"`

	Mode            string  `yaml:"mode" validate:"omitempty,oneof=diffs prepost"`
	SlippagePercent float64 `yaml:"slippage_percent" validate:"gte=0,lte=50"`

	Tenderly TenderlyConfig `yaml:"tenderly"`

	// TokenBalanceSlots maps token addresses to the storage slot index of
	// their balances mapping, used for simulation-time overrides. Optional.
	TokenBalanceSlots map[string]uint64 `yaml:"token_balance_slots" validate:"omitempty,dive,keys,eth_addr,endkeys"`
}

// TenderlyConfig locates the simulation backend. GatewayURL alone selects
// the JSON-RPC path; account, project, and access key together select the
// HTTP Simulation API.
type TenderlyConfig struct {
	GatewayURL string `yaml:"gateway_url" validate:"omitempty,url"`
	Account    string `yaml:"account"`
	Project    string `yaml:"project"`
	AccessKey  string `yaml:"access_key"`
}

// Load reads, parses, and validates the config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Router returns the router address in typed form.
func (c *Config) Router() common.Address {
	return common.HexToAddress(c.RouterAddress)
}

// Proxy returns the balance-proxy address in typed form.
func (c *Config) Proxy() common.Address {
	return common.HexToAddress(c.ProxyAddress)
}

// ChecksMode maps the mode string onto the constraint semantics. Diffs is
// the default.
func (c *Config) ChecksMode() checks.Mode {
	if c.Mode == "prepost" {
		return checks.ModePrePost
	}
	return checks.ModeDiffs
}

// Slippage returns the configured tolerance as a decimal percentage.
func (c *Config) Slippage() decimal.Decimal {
	return decimal.NewFromFloat(c.SlippagePercent)
}

// LoggerEnvironment defaults to development when unset.
func (c *Config) LoggerEnvironment() logger.Environment {
	if c.Environment == string(logger.Production) {
		return logger.Production
	}
	return logger.Development
}

// SimulationConfig assembles the simulation client's config.
func (c *Config) SimulationConfig() simulation.Config {
	return simulation.Config{
		GatewayURL: c.Tenderly.GatewayURL,
		Account:    c.Tenderly.Account,
		Project:    c.Tenderly.Project,
		AccessKey:  c.Tenderly.AccessKey,
		NetworkID:  c.ChainID,
	}
}

// BalanceSlots returns the override slot table in typed form.
func (c *Config) BalanceSlots() map[common.Address]uint64 {
	if len(c.TokenBalanceSlots) == 0 {
		return nil
	}
	slots := make(map[common.Address]uint64, len(c.TokenBalanceSlots))
	for addr, slot := range c.TokenBalanceSlots {
		slots[common.HexToAddress(addr)] = slot
	}
	return slots
}
