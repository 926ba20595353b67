package tokensale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// BuyTokens spends up to contribution of the native asset from buyer on the
// sale. The hard cap is applied first, then the buyer's throttle window. The
// buyer only pays for what was accepted; the returned purchase reports the
// refunded remainder. Either every effect commits or none does.
func (e *Engine) BuyTokens(ctx context.Context, saleID id.SaleID, buyer common.Address, contribution types.Amount) (*sale.Purchase, error) {
	reject := func(err error) (*sale.Purchase, error) {
		e.plugins.EmitPurchaseRejected(ctx, saleID, buyer, contribution, err)
		e.logger.Debug("purchase rejected",
			"sale_id", saleID.String(),
			"buyer", buyer.Hex(),
			"contribution", contribution.String(),
			"error", err,
		)
		return nil, err
	}

	if contribution.IsZero() {
		return reject(ValidationError{Field: "contribution", Message: "must be positive"})
	}

	unlock := e.lockSale(saleID)
	defer unlock()

	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	switch s.Status(now) {
	case sale.StatusEnded:
		e.latchEnded(ctx, s, now)
		return reject(fmt.Errorf("%w: ended", ErrSaleNotActive))
	case sale.StatusPending:
		return reject(fmt.Errorf("%w: starts at %s", ErrSaleNotActive, s.StartTime.Format(time.RFC3339)))
	}

	rate, err := e.currentRate(s, now)
	if err != nil {
		return nil, err
	}

	limit, err := e.store.GetLimit(ctx, saleID, buyer)
	if err != nil {
		return nil, err
	}

	q, err := sale.ComputeQuote(s, *limit, contribution, rate, now)
	if err != nil {
		return reject(fmt.Errorf("%w: %w", ErrInsufficientTokenSupply, err))
	}

	funds, err := e.ledger.BalanceOf(ctx, e.nativeAsset, buyer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	if funds.LessThan(contribution) {
		return reject(fmt.Errorf("%w: balance %s below contribution %s", ErrInsufficientFunds, funds, contribution))
	}

	supply, err := e.ledger.BalanceOf(ctx, s.Token, s.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	if supply.LessThan(q.Tokens) {
		return reject(fmt.Errorf("%w: sale holds %s, purchase needs %s", ErrInsufficientTokenSupply, supply, q.Tokens))
	}

	var undo rollback
	defer undo.run(ctx, e)

	if err := e.ledger.Transfer(ctx, e.nativeAsset, buyer, s.Address, q.Accepted); err != nil {
		return reject(ledgerError(ErrInsufficientFunds, err))
	}
	undo.push(e.nativeAsset, s.Address, buyer, q.Accepted)

	if err := e.ledger.Transfer(ctx, s.Token, s.Address, buyer, q.Tokens); err != nil {
		return reject(ledgerError(ErrInsufficientTokenSupply, err))
	}
	undo.push(s.Token, buyer, s.Address, q.Tokens)

	oldRate := s.TokensPerUnit
	next := s.Clone()
	next.RaisedAmount = q.Raised
	next.TokensPerUnit = rate
	if q.CapReached {
		next.Ended = true
		next.EndedAt = now
	}
	next.TouchAt(now)

	nextLimit := q.Limit
	nextLimit.SaleID = saleID
	nextLimit.Address = buyer

	p := &sale.Purchase{
		ID:             id.NewPurchaseID(),
		SaleID:         saleID,
		Buyer:          buyer,
		Contribution:   contribution,
		Accepted:       q.Accepted,
		CapRefund:      q.CapRefund,
		ThrottleRefund: q.ThrottleRefund,
		Rate:           rate,
		Tokens:         q.Tokens,
		Throttled:      q.Throttled(),
		CapReached:     q.CapReached,
		CreatedAt:      now,
	}

	if err := e.store.CommitPurchase(ctx, next, &nextLimit, p); err != nil {
		return nil, fmt.Errorf("%w: commit purchase: %w", ErrTransactionFailed, err)
	}
	undo.commit()

	e.logger.Info("tokens purchased",
		"sale_id", saleID.String(),
		"buyer", buyer.Hex(),
		"accepted", q.Accepted.String(),
		"refund", q.Refund().String(),
		"tokens", q.Tokens.String(),
		"rate", rate,
		"raised", next.RaisedAmount.String(),
	)

	if rate < oldRate {
		e.plugins.EmitPriceUpdated(ctx, next, oldRate, rate)
	}
	e.plugins.EmitTokensPurchased(ctx, next, p)
	if q.Tripped {
		e.plugins.EmitThrottleTripped(ctx, next, &nextLimit)
	}
	if q.CapReached {
		e.logger.Info("hard cap reached", "sale_id", saleID.String(), "raised", next.RaisedAmount.String())
		e.plugins.EmitHardCapReached(ctx, next)
	}

	return p, nil
}

// currentRate returns the rate a purchase at now pays: the stored rate in
// constant mode, the curve rate floored by the stored rate in weighted mode.
func (e *Engine) currentRate(s *sale.Sale, now time.Time) (uint64, error) {
	if !s.Weighted {
		return s.TokensPerUnit, nil
	}

	curve, ok := e.plugins.Curve(s.Curve)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurve, s.Curve)
	}

	in := pricing.Input{
		InitialRate: s.InitialRate,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		HardCap:     s.HardCap,
		Raised:      s.RaisedAmount,
	}
	return pricing.Floor(s.TokensPerUnit, curve.Rate(in, now)), nil
}

// latchEnded persists the Ended flag the first time a mutating call sees
// the sale over. Failure is logged; Status already reports Ended without it.
func (e *Engine) latchEnded(ctx context.Context, s *sale.Sale, now time.Time) {
	if s.Ended {
		return
	}
	s.Ended = true
	s.EndedAt = now
	s.TouchAt(now)
	if err := e.store.UpdateSale(ctx, s); err != nil {
		e.logger.Warn("failed to persist sale end", "sale_id", s.ID.String(), "error", err)
		return
	}
	e.logger.Info("sale ended", "sale_id", s.ID.String(), "raised", s.RaisedAmount.String())
}

// rollback reverses completed ledger transfers unless committed.
type rollback struct {
	steps []transfer
	done  bool
}

type transfer struct {
	asset, from, to common.Address
	amount          types.Amount
}

func (r *rollback) push(asset, from, to common.Address, amount types.Amount) {
	r.steps = append(r.steps, transfer{asset: asset, from: from, to: to, amount: amount})
}

func (r *rollback) commit() { r.done = true }

func (r *rollback) run(ctx context.Context, e *Engine) {
	if r.done {
		return
	}
	// Reversal must not be cut short by the caller's cancellation.
	ctx = context.WithoutCancel(ctx)
	for i := len(r.steps) - 1; i >= 0; i-- {
		t := r.steps[i]
		if t.amount.IsZero() {
			continue
		}
		if err := e.ledger.Transfer(ctx, t.asset, t.from, t.to, t.amount); err != nil {
			e.logger.Error("ledger rollback failed",
				"asset", t.asset.Hex(),
				"from", t.from.Hex(),
				"to", t.to.Hex(),
				"amount", t.amount.String(),
				"error", errors.Join(ErrTransactionFailed, err),
			)
		}
	}
}
