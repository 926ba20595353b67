package tokensale

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/plugin"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock replaces the wall clock. Every time-dependent rule reads it at
// call time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDefaults sets the values applied to zero sale parameters.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		e.defaults = d
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithNativeAsset sets the ledger asset contributions are paid in. The zero
// address is the default.
func WithNativeAsset(asset common.Address) Option {
	return func(e *Engine) {
		e.nativeAsset = asset
	}
}

// WithRegistryAddress sets the account sale instance addresses derive from.
func WithRegistryAddress(addr common.Address) Option {
	return func(e *Engine) {
		e.registryAddr = addr
	}
}
