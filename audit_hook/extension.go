// Package audithook bridges token sale lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit system directly. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/plugin"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnSaleCreated      = (*Extension)(nil)
	_ plugin.OnTokensPurchased  = (*Extension)(nil)
	_ plugin.OnPurchaseRejected = (*Extension)(nil)
	_ plugin.OnThrottleTripped  = (*Extension)(nil)
	_ plugin.OnHardCapReached   = (*Extension)(nil)
	_ plugin.OnPriceUpdated     = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn   = (*Extension)(nil)
	_ plugin.OnTokensReturned   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges sale lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnSaleCreated implements plugin.OnSaleCreated.
func (e *Extension) OnSaleCreated(ctx context.Context, s *sale.Sale) error {
	return e.record(ctx, ActionSaleCreated, SeverityInfo, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategoryRegistry, nil,
		"address", s.Address.Hex(),
		"admin", s.Admin.Hex(),
		"project_owner", s.ProjectOwner.Hex(),
		"token", s.Token.Hex(),
		"rate", s.TokensPerUnit,
		"hard_cap", s.HardCap.String(),
		"weighted", s.Weighted,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnTokensPurchased implements plugin.OnTokensPurchased.
func (e *Extension) OnTokensPurchased(ctx context.Context, s *sale.Sale, p *sale.Purchase) error {
	outcome := OutcomeSuccess
	if p.Refund().IsPositive() {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionTokensPurchased, SeverityInfo, outcome,
		ResourcePurchase, p.ID.String(), CategoryPurchase, nil,
		"sale_id", s.ID.String(),
		"buyer", p.Buyer.Hex(),
		"contribution", p.Contribution.String(),
		"accepted", p.Accepted.String(),
		"refund", p.Refund().String(),
		"tokens", p.Tokens.String(),
		"rate", p.Rate,
	)
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (e *Extension) OnPurchaseRejected(ctx context.Context, saleID id.SaleID, buyer common.Address, contribution types.Amount, reason error) error {
	return e.record(ctx, ActionPurchaseRejected, SeverityWarning, OutcomeFailure,
		ResourceSale, saleID.String(), CategoryPurchase, reason,
		"buyer", buyer.Hex(),
		"contribution", contribution.String(),
	)
}

// OnThrottleTripped implements plugin.OnThrottleTripped.
func (e *Extension) OnThrottleTripped(ctx context.Context, s *sale.Sale, l *sale.Limit) error {
	return e.record(ctx, ActionThrottleTripped, SeverityInfo, OutcomeSuccess,
		ResourceLimit, l.Address.Hex(), CategoryPurchase, nil,
		"sale_id", s.ID.String(),
		"timeout", l.Timeout,
	)
}

// OnHardCapReached implements plugin.OnHardCapReached.
func (e *Extension) OnHardCapReached(ctx context.Context, s *sale.Sale) error {
	return e.record(ctx, ActionHardCapReached, SeverityInfo, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategoryPurchase, nil,
		"raised", s.RaisedAmount.String(),
	)
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (e *Extension) OnPriceUpdated(ctx context.Context, s *sale.Sale, oldRate, newRate uint64) error {
	return e.record(ctx, ActionPriceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategoryPricing, nil,
		"curve", s.Curve,
		"old_rate", oldRate,
		"new_rate", newRate,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) error {
	return e.record(ctx, ActionFundsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), CategorySettlement, nil,
		"sale_id", s.ID.String(),
		"admin_amount", w.AdminAmount.String(),
		"owner_amount", w.OwnerAmount.String(),
	)
}

// OnTokensReturned implements plugin.OnTokensReturned.
func (e *Extension) OnTokensReturned(ctx context.Context, s *sale.Sale, w *sale.Withdrawal) error {
	return e.record(ctx, ActionTokensReturned, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, w.ID.String(), CategorySettlement, nil,
		"sale_id", s.ID.String(),
		"project_owner", w.ProjectOwner.Hex(),
		"amount", w.OwnerAmount.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
