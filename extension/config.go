package extension

import "time"

// Config holds the token sale extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tokensale" or "tokensale" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being built.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for sale routes (default: "/tokensale").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Threshold is the default per-contributor window, as a decimal amount
	// of base units (default: 50 * 10^18).
	Threshold string `json:"threshold" mapstructure:"threshold" yaml:"threshold"`

	// Cooldown is the default throttle cooldown (default: 5s).
	Cooldown time.Duration `json:"cooldown" mapstructure:"cooldown" yaml:"cooldown"`

	// Curve is the default weighted pricing curve (default: "linear-time").
	Curve string `json:"curve" mapstructure:"curve" yaml:"curve"`

	// AdminFeeBps is the default admin share of raised funds in basis points.
	AdminFeeBps uint32 `json:"admin_fee_bps" mapstructure:"admin_fee_bps" yaml:"admin_fee_bps"`

	// NativeAsset is the hex address of the ledger asset contributions are
	// paid in. Empty means the zero address.
	NativeAsset string `json:"native_asset" mapstructure:"native_asset" yaml:"native_asset"`

	// RegistryAddress is the hex address sale addresses derive from.
	RegistryAddress string `json:"registry_address" mapstructure:"registry_address" yaml:"registry_address"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:    "/tokensale",
		Threshold:   "50000000000000000000",
		Cooldown:    5 * time.Second,
		Curve:       "linear-time",
		HookTimeout: 5 * time.Second,
	}
}
