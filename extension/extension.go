// Package extension provides the Forge extension adapter for the token sale
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tokensale" or
// "tokensale" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/api"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/store/memory"
	"github.com/xraph/tokensale/token"
	tokenmem "github.com/xraph/tokensale/token/memory"
	"github.com/xraph/tokensale/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tokensale"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token sale engine with throttling, hard caps and weighted pricing"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the token sale engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tokensale.Engine
	store      store.Store
	ledger     token.Ledger
	handler    http.Handler
	engineOpts []tokensale.Option
}

// New creates a new token sale Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tokensale.Engine { return e.engine }

// Handler returns the HTTP API mounted under the configured base path. It is
// nil until Register is called and when routes are disabled.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory backends if none were provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.ledger == nil {
		e.ledger = tokenmem.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = tokensale.New(e.store, e.ledger, opts...)

	if !e.config.DisableRoutes {
		e.handler = api.New(e.engine, api.WithBasePath(e.config.BasePath)).Handler()
	}

	return vessel.Provide(fapp.Container(), func() (*tokensale.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tokensale: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tokensale: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs tokensale.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]tokensale.Option, error) {
	return engineOptions(e.config, e.engineOpts)
}

func engineOptions(cfg Config, passThrough []tokensale.Option) ([]tokensale.Option, error) {
	opts := make([]tokensale.Option, 0, len(passThrough)+4)

	defaults := tokensale.DefaultSaleDefaults()
	if cfg.Threshold != "" {
		threshold, err := types.ParseAmount(cfg.Threshold)
		if err != nil {
			return nil, fmt.Errorf("tokensale: config threshold: %w", err)
		}
		defaults.Threshold = threshold
	}
	if cfg.Cooldown > 0 {
		defaults.Cooldown = cfg.Cooldown
	}
	if cfg.Curve != "" {
		defaults.Curve = cfg.Curve
	}
	defaults.AdminFeeBps = cfg.AdminFeeBps
	opts = append(opts, tokensale.WithDefaults(defaults))

	if cfg.NativeAsset != "" {
		if !common.IsHexAddress(cfg.NativeAsset) {
			return nil, fmt.Errorf("tokensale: config native_asset %q is not an address", cfg.NativeAsset)
		}
		opts = append(opts, tokensale.WithNativeAsset(common.HexToAddress(cfg.NativeAsset)))
	}
	if cfg.RegistryAddress != "" {
		if !common.IsHexAddress(cfg.RegistryAddress) {
			return nil, fmt.Errorf("tokensale: config registry_address %q is not an address", cfg.RegistryAddress)
		}
		opts = append(opts, tokensale.WithRegistryAddress(common.HexToAddress(cfg.RegistryAddress)))
	}
	if cfg.HookTimeout > 0 {
		opts = append(opts, tokensale.WithHookTimeout(cfg.HookTimeout))
	}

	// Append any pass-through engine options.
	opts = append(opts, passThrough...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tokensale: configuration is required but not found in config files; " +
				"ensure 'extensions.tokensale' or 'tokensale' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tokensale: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("threshold", e.config.Threshold),
		forge.F("cooldown", e.config.Cooldown),
		forge.F("curve", e.config.Curve),
		forge.F("admin_fee_bps", e.config.AdminFeeBps),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tokensale", "tokensale"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tokensale: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("tokensale: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Threshold == "" {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.Curve == "" {
		cfg.Curve = defaults.Curve
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Threshold == "" {
		yamlConfig.Threshold = programmaticConfig.Threshold
	}
	if yamlConfig.Curve == "" {
		yamlConfig.Curve = programmaticConfig.Curve
	}
	if yamlConfig.NativeAsset == "" {
		yamlConfig.NativeAsset = programmaticConfig.NativeAsset
	}
	if yamlConfig.RegistryAddress == "" {
		yamlConfig.RegistryAddress = programmaticConfig.RegistryAddress
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.Cooldown == 0 {
		yamlConfig.Cooldown = programmaticConfig.Cooldown
	}
	if yamlConfig.AdminFeeBps == 0 {
		yamlConfig.AdminFeeBps = programmaticConfig.AdminFeeBps
	}
	if yamlConfig.HookTimeout == 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
