package extension

import (
	"time"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/plugin"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/token"
)

// Option configures the token sale Forge extension.
type Option func(*Extension)

// WithStore sets the store for the sale engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedger sets the token ledger the engine moves balances on.
func WithLedger(l token.Ledger) Option {
	return func(e *Extension) {
		e.ledger = l
	}
}

// WithEngineOption passes a tokensale.Option through to the underlying engine.
func WithEngineOption(opt tokensale.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tokensale.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP handler from being built.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for sale routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCooldown sets the default throttle cooldown.
func WithCooldown(d time.Duration) Option {
	return func(e *Extension) { e.config.Cooldown = d }
}

// WithThreshold sets the default throttle window as a decimal amount.
func WithThreshold(amount string) Option {
	return func(e *Extension) { e.config.Threshold = amount }
}

// WithNativeAsset sets the hex address of the contribution asset.
func WithNativeAsset(addr string) Option {
	return func(e *Extension) { e.config.NativeAsset = addr }
}
