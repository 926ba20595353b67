package tokensale

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/plugin"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/token"
	"github.com/xraph/tokensale/types"
)

// DefaultRegistryAddress is the account sale instance addresses are derived
// from when no registry address is configured.
var DefaultRegistryAddress = common.BytesToAddress(crypto.Keccak256([]byte("tokensale/registry"))[12:])

// Defaults holds the values applied to zero sale parameters.
type Defaults struct {
	Threshold   types.Amount  `json:"threshold" yaml:"threshold"`
	Cooldown    time.Duration `json:"cooldown" yaml:"cooldown"`
	Curve       string        `json:"curve" yaml:"curve"`
	AdminFeeBps uint32        `json:"admin_fee_bps" yaml:"admin_fee_bps"`
}

// DefaultSaleDefaults returns the reference throttle settings: a 50 unit
// window of an 18-decimal base asset and a five second cooldown.
func DefaultSaleDefaults() Defaults {
	return Defaults{
		Threshold: types.Ether(50),
		Cooldown:  5 * time.Second,
		Curve:     pricing.NameLinearTime,
	}
}

// Engine is the sale registry and the state machine of every sale it created.
type Engine struct {
	store   store.Store
	ledger  token.Ledger
	plugins *plugin.Registry
	logger  *slog.Logger

	now          func() time.Time
	defaults     Defaults
	nativeAsset  common.Address
	registryAddr common.Address

	// createMu serializes sequence allocation.
	createMu sync.Mutex
	// locks holds one *sync.Mutex per sale ID.
	locks sync.Map
}

// New creates a new Engine over a store and a token ledger.
func New(s store.Store, l token.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		ledger:       l,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		now:          time.Now,
		defaults:     DefaultSaleDefaults(),
		registryAddr: DefaultRegistryAddress,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("tokensale engine started",
		"registry", e.registryAddr.Hex(),
		"native_asset", e.nativeAsset.Hex(),
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the engine's store.
func (e *Engine) Store() store.Store { return e.store }

// Ledger returns the engine's token ledger.
func (e *Engine) Ledger() token.Ledger { return e.ledger }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// NativeAsset returns the asset contributions are paid in.
func (e *Engine) NativeAsset() common.Address { return e.nativeAsset }

// RegistryAddress returns the account sale addresses are derived from.
func (e *Engine) RegistryAddress() common.Address { return e.registryAddr }

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time { return e.now().UTC() }

// lockSale acquires the mutex of one sale and returns its release.
func (e *Engine) lockSale(saleID id.SaleID) func() {
	v, _ := e.locks.LoadOrStore(saleID.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex) //nolint:errcheck // only *sync.Mutex is stored
	mu.Lock()
	return mu.Unlock
}
