// Package plugin provides an extensible plugin system for the sale engine.
// Plugins can hook into sale lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnSaleCreated is called after a sale instance is registered.
type OnSaleCreated interface {
	Plugin
	OnSaleCreated(ctx context.Context, s *sale.Sale) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnTokensPurchased is called after a purchase is committed.
type OnTokensPurchased interface {
	Plugin
	OnTokensPurchased(ctx context.Context, s *sale.Sale, p *sale.Purchase) error
}

// OnPurchaseRejected is called when a purchase is refused by a sale rule.
type OnPurchaseRejected interface {
	Plugin
	OnPurchaseRejected(ctx context.Context, saleID id.SaleID, buyer common.Address, contribution types.Amount, reason error) error
}

// OnThrottleTripped is called when a contributor fills its window and the
// cooldown starts.
type OnThrottleTripped interface {
	Plugin
	OnThrottleTripped(ctx context.Context, s *sale.Sale, l *sale.Limit) error
}

// OnHardCapReached is called when a purchase fills the hard cap.
type OnHardCapReached interface {
	Plugin
	OnHardCapReached(ctx context.Context, s *sale.Sale) error
}

// OnPriceUpdated is called when a weighted sale commits a lower rate.
type OnPriceUpdated interface {
	Plugin
	OnPriceUpdated(ctx context.Context, s *sale.Sale, oldRate, newRate uint64) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnFundsWithdrawn is called after raised funds are paid out.
type OnFundsWithdrawn interface {
	Plugin
	OnFundsWithdrawn(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) error
}

// OnTokensReturned is called after unsold tokens go back to the project owner.
type OnTokensReturned interface {
	Plugin
	OnTokensReturned(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) error
}

// ──────────────────────────────────────────────────
// Pricing curves
// ──────────────────────────────────────────────────

// PricingCurve provides a custom weighted-mode curve. Sales select it by
// CurveName.
type PricingCurve interface {
	Plugin
	CurveName() string
	Rate(in pricing.Input, now time.Time) uint64
}
