package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/types"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for tokensaled.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	BasePath      string         `yaml:"base_path"`
	MetricsPath   string         `yaml:"metrics_path"`
	ShutdownGrace Duration       `yaml:"shutdown_grace"`
	Engine        EngineConfig   `yaml:"engine"`
	Balances      []BalanceEntry `yaml:"balances"`
}

// EngineConfig carries the defaults applied to new sales.
type EngineConfig struct {
	Threshold       string   `yaml:"threshold"`
	Cooldown        Duration `yaml:"cooldown"`
	Curve           string   `yaml:"curve"`
	AdminFeeBps     uint32   `yaml:"admin_fee_bps"`
	NativeAsset     string   `yaml:"native_asset"`
	RegistryAddress string   `yaml:"registry_address"`
	HookTimeout     Duration `yaml:"hook_timeout"`
}

// BalanceEntry seeds the in-memory ledger at startup.
type BalanceEntry struct {
	Asset   string `yaml:"asset"`
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// LoadConfig reads configuration from the supplied path. An empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ShutdownGrace.Duration == 0 {
		cfg.ShutdownGrace.Duration = 10 * time.Second
	}
	if cfg.Engine.Threshold == "" {
		cfg.Engine.Threshold = "50000000000000000000"
	}
	if cfg.Engine.Cooldown.Duration == 0 {
		cfg.Engine.Cooldown.Duration = 5 * time.Second
	}
	if cfg.Engine.Curve == "" {
		cfg.Engine.Curve = pricing.NameLinearTime
	}
}

func validateConfig(cfg Config) error {
	if !strings.HasPrefix(cfg.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /")
	}
	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		return fmt.Errorf("base_path must start with /")
	}
	if _, err := types.ParseAmount(cfg.Engine.Threshold); err != nil {
		return fmt.Errorf("engine threshold: %w", err)
	}
	if cfg.Engine.AdminFeeBps > 10000 {
		return fmt.Errorf("engine admin_fee_bps must not exceed 10000")
	}
	for name, value := range map[string]string{
		"native_asset":     cfg.Engine.NativeAsset,
		"registry_address": cfg.Engine.RegistryAddress,
	} {
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("engine %s %q is not an address", name, value)
		}
	}
	for i, b := range cfg.Balances {
		if !common.IsHexAddress(b.Address) {
			return fmt.Errorf("balances[%d]: address %q is not an address", i, b.Address)
		}
		if b.Asset != "" && !common.IsHexAddress(b.Asset) {
			return fmt.Errorf("balances[%d]: asset %q is not an address", i, b.Asset)
		}
		if _, err := types.ParseAmount(b.Amount); err != nil {
			return fmt.Errorf("balances[%d]: amount: %w", i, err)
		}
	}
	return nil
}
