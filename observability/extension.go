// Package observability provides a metrics extension for the token sale
// engine that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/plugin"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnSaleCreated      = (*MetricsExtension)(nil)
	_ plugin.OnTokensPurchased  = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRejected = (*MetricsExtension)(nil)
	_ plugin.OnThrottleTripped  = (*MetricsExtension)(nil)
	_ plugin.OnHardCapReached   = (*MetricsExtension)(nil)
	_ plugin.OnPriceUpdated     = (*MetricsExtension)(nil)
	_ plugin.OnFundsWithdrawn   = (*MetricsExtension)(nil)
	_ plugin.OnTokensReturned   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide sale metrics.
// Register it as an engine plugin to track purchases and settlement.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	SalesCreated Counter

	// Purchase metrics
	Purchases          Counter
	PurchasesRejected  Counter
	PurchasesThrottled Counter
	PurchasesCapped    Counter
	ThrottleTripped    Counter
	HardCapReached     Counter
	ContributionAmount Histogram
	RefundAmount       Histogram
	TokensSold         Counter
	NativeRaised       Counter

	// Pricing metrics
	PriceUpdates Counter
	Rate         Histogram

	// Settlement metrics
	FundsWithdrawn Counter
	TokensReturned Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		SalesCreated: factory.Counter("tokensale.sale.created"),

		Purchases:          factory.Counter("tokensale.purchase.completed"),
		PurchasesRejected:  factory.Counter("tokensale.purchase.rejected"),
		PurchasesThrottled: factory.Counter("tokensale.purchase.throttled"),
		PurchasesCapped:    factory.Counter("tokensale.purchase.capped"),
		ThrottleTripped:    factory.Counter("tokensale.throttle.tripped"),
		HardCapReached:     factory.Counter("tokensale.hard_cap.reached"),
		ContributionAmount: factory.Histogram("tokensale.purchase.accepted_units"),
		RefundAmount:       factory.Histogram("tokensale.purchase.refund_units"),
		TokensSold:         factory.Counter("tokensale.tokens.sold_units"),
		NativeRaised:       factory.Counter("tokensale.native.raised_units"),

		PriceUpdates: factory.Counter("tokensale.price.updated"),
		Rate:         factory.Histogram("tokensale.price.rate"),

		FundsWithdrawn: factory.Counter("tokensale.funds.withdrawn"),
		TokensReturned: factory.Counter("tokensale.tokens.returned"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnSaleCreated implements plugin.OnSaleCreated.
func (m *MetricsExtension) OnSaleCreated(_ context.Context, _ *sale.Sale) error {
	m.SalesCreated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnTokensPurchased implements plugin.OnTokensPurchased.
func (m *MetricsExtension) OnTokensPurchased(_ context.Context, _ *sale.Sale, p *sale.Purchase) error {
	m.Purchases.Inc()
	if p.ThrottleRefund.IsPositive() {
		m.PurchasesThrottled.Inc()
	}
	if p.CapRefund.IsPositive() {
		m.PurchasesCapped.Inc()
	}

	accepted := wholeUnits(p.Accepted)
	m.ContributionAmount.Observe(accepted)
	m.RefundAmount.Observe(wholeUnits(p.Refund()))
	m.NativeRaised.Add(accepted)
	m.TokensSold.Add(wholeUnits(p.Tokens))
	m.Rate.Observe(float64(p.Rate))
	return nil
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (m *MetricsExtension) OnPurchaseRejected(_ context.Context, _ id.SaleID, _ common.Address, _ types.Amount, _ error) error {
	m.PurchasesRejected.Inc()
	return nil
}

// OnThrottleTripped implements plugin.OnThrottleTripped.
func (m *MetricsExtension) OnThrottleTripped(_ context.Context, _ *sale.Sale, _ *sale.Limit) error {
	m.ThrottleTripped.Inc()
	return nil
}

// OnHardCapReached implements plugin.OnHardCapReached.
func (m *MetricsExtension) OnHardCapReached(_ context.Context, _ *sale.Sale) error {
	m.HardCapReached.Inc()
	return nil
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (m *MetricsExtension) OnPriceUpdated(_ context.Context, _ *sale.Sale, _, newRate uint64) error {
	m.PriceUpdates.Inc()
	m.Rate.Observe(float64(newRate))
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (m *MetricsExtension) OnFundsWithdrawn(_ context.Context, _ *sale.Sale, _ *sale.Withdrawal) error {
	m.FundsWithdrawn.Inc()
	return nil
}

// OnTokensReturned implements plugin.OnTokensReturned.
func (m *MetricsExtension) OnTokensReturned(_ context.Context, _ *sale.Sale, _ *sale.Withdrawal) error {
	m.TokensReturned.Inc()
	return nil
}

var etherScale = new(big.Float).SetInt(types.Ether(1).Big())

// wholeUnits converts an 18-decimal amount to a float of whole units. The
// result is approximate and only fit for metrics.
func wholeUnits(a types.Amount) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(a.Big()), etherScale).Float64()
	return f
}
