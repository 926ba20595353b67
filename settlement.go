package tokensale

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
)

// UpdateTokenPrice recomputes a weighted sale's rate from its curve at the
// engine clock and commits it. The rate never rises. Admin only; allowed in
// any phase.
func (e *Engine) UpdateTokenPrice(ctx context.Context, saleID id.SaleID, caller common.Address) (uint64, error) {
	unlock := e.lockSale(saleID)
	defer unlock()

	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return 0, err
	}
	if caller != s.Admin {
		return 0, fmt.Errorf("%w: %s is not the sale admin", ErrUnauthorized, caller.Hex())
	}
	if !s.Weighted {
		return 0, ErrNotWeighted
	}

	now := e.Now()
	rate, err := e.currentRate(s, now)
	if err != nil {
		return 0, err
	}

	oldRate := s.TokensPerUnit
	if rate == oldRate {
		return rate, nil
	}

	next := s.Clone()
	next.TokensPerUnit = rate
	next.TouchAt(now)
	if err := e.store.UpdateSale(ctx, next); err != nil {
		return 0, err
	}

	e.logger.Info("token price updated",
		"sale_id", saleID.String(),
		"old_rate", oldRate,
		"new_rate", rate,
	)
	e.plugins.EmitPriceUpdated(ctx, next, oldRate, rate)

	return rate, nil
}

// Withdraw pays the raised amount out of an ended sale: AdminFeeBps of it to
// the admin and the rest to the project owner. Admin only; a second call
// fails with ErrAlreadyWithdrawn.
func (e *Engine) Withdraw(ctx context.Context, saleID id.SaleID, caller common.Address) (*sale.Withdrawal, error) {
	unlock := e.lockSale(saleID)
	defer unlock()

	s, err := e.endedSale(ctx, saleID, caller)
	if err != nil {
		return nil, err
	}
	if s.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}

	now := e.Now()
	adminShare := s.RaisedAmount.MulDiv(uint64(s.AdminFeeBps), sale.MaxFeeBps)
	ownerShare := s.RaisedAmount.Sub(adminShare)

	var undo rollback
	defer undo.run(ctx, e)

	if adminShare.IsPositive() {
		if err := e.ledger.Transfer(ctx, e.nativeAsset, s.Address, s.Admin, adminShare); err != nil {
			return nil, ledgerError(ErrInsufficientFunds, err)
		}
		undo.push(e.nativeAsset, s.Admin, s.Address, adminShare)
	}
	if ownerShare.IsPositive() {
		if err := e.ledger.Transfer(ctx, e.nativeAsset, s.Address, s.ProjectOwner, ownerShare); err != nil {
			return nil, ledgerError(ErrInsufficientFunds, err)
		}
		undo.push(e.nativeAsset, s.ProjectOwner, s.Address, ownerShare)
	}

	next := s.Clone()
	next.Withdrawn = true
	next.WithdrawnAt = now
	next.TouchAt(now)

	w := &sale.Withdrawal{
		ID:           id.NewWithdrawalID(),
		SaleID:       saleID,
		Kind:         sale.WithdrawalFunds,
		Admin:        s.Admin,
		ProjectOwner: s.ProjectOwner,
		AdminAmount:  adminShare,
		OwnerAmount:  ownerShare,
		CreatedAt:    now,
	}

	if err := e.store.CommitWithdrawal(ctx, next, w); err != nil {
		return nil, fmt.Errorf("%w: commit withdrawal: %w", ErrTransactionFailed, err)
	}
	undo.commit()

	e.logger.Info("funds withdrawn",
		"sale_id", saleID.String(),
		"admin_amount", adminShare.String(),
		"owner_amount", ownerShare.String(),
	)
	e.plugins.EmitFundsWithdrawn(ctx, next, w)

	return w, nil
}

// WithdrawTokens returns the sale's whole token balance to the project owner
// after the sale ended. Admin only; an empty balance is a successful no-op
// that records nothing.
func (e *Engine) WithdrawTokens(ctx context.Context, saleID id.SaleID, caller common.Address) (*sale.Withdrawal, error) {
	unlock := e.lockSale(saleID)
	defer unlock()

	s, err := e.endedSale(ctx, saleID, caller)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	w := &sale.Withdrawal{
		ID:           id.NewWithdrawalID(),
		SaleID:       saleID,
		Kind:         sale.WithdrawalTokens,
		Admin:        s.Admin,
		ProjectOwner: s.ProjectOwner,
		CreatedAt:    now,
	}

	unsold, err := e.ledger.BalanceOf(ctx, s.Token, s.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	if unsold.IsZero() {
		return w, nil
	}

	if err := e.ledger.Transfer(ctx, s.Token, s.Address, s.ProjectOwner, unsold); err != nil {
		return nil, ledgerError(ErrInsufficientTokenSupply, err)
	}
	w.OwnerAmount = unsold

	next := s.Clone()
	next.TouchAt(now)
	if err := e.store.CommitWithdrawal(ctx, next, w); err != nil {
		if rerr := e.ledger.Transfer(context.WithoutCancel(ctx), s.Token, s.ProjectOwner, s.Address, unsold); rerr != nil {
			e.logger.Error("ledger rollback failed", "sale_id", saleID.String(), "error", rerr)
		}
		return nil, fmt.Errorf("%w: commit withdrawal: %w", ErrTransactionFailed, err)
	}

	e.logger.Info("unsold tokens returned",
		"sale_id", saleID.String(),
		"project_owner", s.ProjectOwner.Hex(),
		"amount", unsold.String(),
	)
	e.plugins.EmitTokensReturned(ctx, next, w)

	return w, nil
}

// endedSale loads a sale for settlement: the caller must be its admin and
// the sale must be over. The Ended latch is persisted on first observation.
func (e *Engine) endedSale(ctx context.Context, saleID id.SaleID, caller common.Address) (*sale.Sale, error) {
	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if caller != s.Admin {
		return nil, fmt.Errorf("%w: %s is not the sale admin", ErrUnauthorized, caller.Hex())
	}

	now := e.Now()
	if s.Status(now) != sale.StatusEnded {
		return nil, fmt.Errorf("%w: ends at %s", ErrSaleNotEnded, s.EndTime)
	}
	e.latchEnded(ctx, s, now)
	return s, nil
}
