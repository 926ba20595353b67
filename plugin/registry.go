package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// DefaultHookTimeout bounds a single plugin hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never reflects.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onSaleCreated      []OnSaleCreated
	onTokensPurchased  []OnTokensPurchased
	onPurchaseRejected []OnPurchaseRejected
	onThrottleTripped  []OnThrottleTripped
	onHardCapReached   []OnHardCapReached
	onPriceUpdated     []OnPriceUpdated
	onFundsWithdrawn   []OnFundsWithdrawn
	onTokensReturned   []OnTokensReturned
	pricingCurves      map[string]PricingCurve
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:        slog.Default(),
		timeout:       DefaultHookTimeout,
		pricingCurves: make(map[string]PricingCurve),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	if v, ok := p.(PricingCurve); ok {
		if _, builtin := pricing.Lookup(v.CurveName()); builtin {
			return fmt.Errorf("plugin: curve %q shadows a built-in curve", v.CurveName())
		}
		if _, dup := r.pricingCurves[v.CurveName()]; dup {
			return fmt.Errorf("plugin: duplicate curve: %s", v.CurveName())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSaleCreated); ok {
		r.onSaleCreated = append(r.onSaleCreated, v)
	}
	if v, ok := p.(OnTokensPurchased); ok {
		r.onTokensPurchased = append(r.onTokensPurchased, v)
	}
	if v, ok := p.(OnPurchaseRejected); ok {
		r.onPurchaseRejected = append(r.onPurchaseRejected, v)
	}
	if v, ok := p.(OnThrottleTripped); ok {
		r.onThrottleTripped = append(r.onThrottleTripped, v)
	}
	if v, ok := p.(OnHardCapReached); ok {
		r.onHardCapReached = append(r.onHardCapReached, v)
	}
	if v, ok := p.(OnPriceUpdated); ok {
		r.onPriceUpdated = append(r.onPriceUpdated, v)
	}
	if v, ok := p.(OnFundsWithdrawn); ok {
		r.onFundsWithdrawn = append(r.onFundsWithdrawn, v)
	}
	if v, ok := p.(OnTokensReturned); ok {
		r.onTokensReturned = append(r.onTokensReturned, v)
	}
	if v, ok := p.(PricingCurve); ok {
		r.pricingCurves[v.CurveName()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnSaleCreated", reflect.TypeFor[OnSaleCreated]()},
	{"OnTokensPurchased", reflect.TypeFor[OnTokensPurchased]()},
	{"OnPurchaseRejected", reflect.TypeFor[OnPurchaseRejected]()},
	{"OnThrottleTripped", reflect.TypeFor[OnThrottleTripped]()},
	{"OnHardCapReached", reflect.TypeFor[OnHardCapReached]()},
	{"OnPriceUpdated", reflect.TypeFor[OnPriceUpdated]()},
	{"OnFundsWithdrawn", reflect.TypeFor[OnFundsWithdrawn]()},
	{"OnTokensReturned", reflect.TypeFor[OnTokensReturned]()},
	{"PricingCurve", reflect.TypeFor[PricingCurve]()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Curve resolves a pricing curve by name: built-ins first, then plugins.
func (r *Registry) Curve(name string) (pricing.Curve, bool) {
	if c, ok := pricing.Lookup(name); ok {
		return c, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.pricingCurves[name]; ok {
		return pluginCurve{p}, true
	}
	return nil, false
}

// pluginCurve adapts a PricingCurve plugin to pricing.Curve.
type pluginCurve struct {
	PricingCurve
}

func (c pluginCurve) Name() string { return c.CurveName() }

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit snapshots the cached hook list and calls fn for each entry with a
// timeout. Hook failures are logged and never fail the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitSaleCreated emits a sale created event.
func (r *Registry) EmitSaleCreated(ctx context.Context, s *sale.Sale) {
	emit(ctx, r, "OnSaleCreated", func() []OnSaleCreated { return r.onSaleCreated }, func(p OnSaleCreated) error {
		return p.OnSaleCreated(ctx, s)
	})
}

// EmitTokensPurchased emits a purchase committed event.
func (r *Registry) EmitTokensPurchased(ctx context.Context, s *sale.Sale, pur *sale.Purchase) {
	emit(ctx, r, "OnTokensPurchased", func() []OnTokensPurchased { return r.onTokensPurchased }, func(p OnTokensPurchased) error {
		return p.OnTokensPurchased(ctx, s, pur)
	})
}

// EmitPurchaseRejected emits a purchase rejected event.
func (r *Registry) EmitPurchaseRejected(ctx context.Context, saleID id.SaleID, buyer common.Address, contribution types.Amount, reason error) {
	emit(ctx, r, "OnPurchaseRejected", func() []OnPurchaseRejected { return r.onPurchaseRejected }, func(p OnPurchaseRejected) error {
		return p.OnPurchaseRejected(ctx, saleID, buyer, contribution, reason)
	})
}

// EmitThrottleTripped emits a throttle window tripped event.
func (r *Registry) EmitThrottleTripped(ctx context.Context, s *sale.Sale, l *sale.Limit) {
	emit(ctx, r, "OnThrottleTripped", func() []OnThrottleTripped { return r.onThrottleTripped }, func(p OnThrottleTripped) error {
		return p.OnThrottleTripped(ctx, s, l)
	})
}

// EmitHardCapReached emits a hard cap reached event.
func (r *Registry) EmitHardCapReached(ctx context.Context, s *sale.Sale) {
	emit(ctx, r, "OnHardCapReached", func() []OnHardCapReached { return r.onHardCapReached }, func(p OnHardCapReached) error {
		return p.OnHardCapReached(ctx, s)
	})
}

// EmitPriceUpdated emits a price updated event.
func (r *Registry) EmitPriceUpdated(ctx context.Context, s *sale.Sale, oldRate, newRate uint64) {
	emit(ctx, r, "OnPriceUpdated", func() []OnPriceUpdated { return r.onPriceUpdated }, func(p OnPriceUpdated) error {
		return p.OnPriceUpdated(ctx, s, oldRate, newRate)
	})
}

// EmitFundsWithdrawn emits a funds withdrawn event.
func (r *Registry) EmitFundsWithdrawn(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) {
	emit(ctx, r, "OnFundsWithdrawn", func() []OnFundsWithdrawn { return r.onFundsWithdrawn }, func(p OnFundsWithdrawn) error {
		return p.OnFundsWithdrawn(ctx, s, w)
	})
}

// EmitTokensReturned emits an unsold tokens returned event.
func (r *Registry) EmitTokensReturned(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) {
	emit(ctx, r, "OnTokensReturned", func() []OnTokensReturned { return r.onTokensReturned }, func(p OnTokensReturned) error {
		return p.OnTokensReturned(ctx, s, w)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the purchase path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
