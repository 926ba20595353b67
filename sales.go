package tokensale

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/token"
	"github.com/xraph/tokensale/types"
)

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// CreateSale validates p, registers a new sale instance and returns it.
// Invalid parameters return a MultiError matching ErrInvalidParameters and
// register nothing.
func (e *Engine) CreateSale(ctx context.Context, p sale.Params) (*sale.Sale, error) {
	p = e.applyDefaults(p)
	if err := e.validateParams(p); err != nil {
		return nil, err
	}
	cooldown, feeBps := *p.Cooldown, *p.AdminFeeBps

	e.createMu.Lock()
	defer e.createMu.Unlock()

	seq, err := e.store.NextSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("tokensale: allocate sequence: %w", err)
	}

	now := e.Now()
	s := &sale.Sale{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewSaleID(),
		Seq:           seq,
		Address:       crypto.CreateAddress(e.registryAddr, seq),
		Admin:         p.Admin,
		ProjectOwner:  p.ProjectOwner,
		Token:         p.Token,
		InitialRate:   p.TokensPerUnit,
		TokensPerUnit: p.TokensPerUnit,
		HardCap:       p.HardCap,
		StartTime:     p.StartTime.UTC(),
		EndTime:       p.EndTime.UTC(),
		Weighted:      p.Weighted,
		Curve:         p.Curve,
		Threshold:     p.Threshold,
		Cooldown:      cooldown,
		AdminFeeBps:   feeBps,
		Metadata:      p.Metadata,
	}

	if err := e.store.CreateSale(ctx, s); err != nil {
		return nil, err
	}

	e.logger.Info("sale created",
		"sale_id", s.ID.String(),
		"seq", s.Seq,
		"address", s.Address.Hex(),
		"token", s.Token.Hex(),
		"rate", s.TokensPerUnit,
		"hard_cap", s.HardCap.String(),
		"weighted", s.Weighted,
	)

	e.plugins.EmitSaleCreated(ctx, s)
	return s, nil
}

func (e *Engine) applyDefaults(p sale.Params) sale.Params {
	if p.Threshold.IsZero() {
		p.Threshold = e.defaults.Threshold
	}
	if p.Cooldown == nil {
		cooldown := e.defaults.Cooldown
		p.Cooldown = &cooldown
	}
	if p.AdminFeeBps == nil {
		feeBps := e.defaults.AdminFeeBps
		p.AdminFeeBps = &feeBps
	}
	if !p.Weighted {
		p.Curve = ""
	} else if p.Curve == "" {
		p.Curve = e.defaults.Curve
	}
	return p
}

func (e *Engine) validateParams(p sale.Params) error {
	var errs MultiError
	zero := common.Address{}

	if p.Admin == zero {
		errs.Add(ValidationError{Field: "admin", Message: "must not be the zero address"})
	}
	if p.ProjectOwner == zero {
		errs.Add(ValidationError{Field: "project_owner", Message: "must not be the zero address"})
	}
	switch p.Token {
	case zero:
		errs.Add(ValidationError{Field: "token", Message: "must not be the zero address"})
	case e.nativeAsset:
		errs.Add(ValidationError{Field: "token", Message: "must differ from the native asset"})
	}
	if p.StartTime.IsZero() || p.EndTime.IsZero() || !p.StartTime.Before(p.EndTime) {
		errs.Add(ValidationError{Field: "end_time", Message: "must be after start_time"})
	}
	if p.TokensPerUnit == 0 {
		errs.Add(ValidationError{Field: "tokens_per_unit", Message: "must be positive"})
	}
	if p.HardCap.IsZero() {
		errs.Add(ValidationError{Field: "hard_cap", Message: "must be positive"})
	}
	if p.Threshold.IsZero() {
		errs.Add(ValidationError{Field: "threshold", Message: "must be positive"})
	}
	if *p.Cooldown < 0 {
		errs.Add(ValidationError{Field: "cooldown", Message: "must not be negative"})
	}
	if *p.AdminFeeBps > sale.MaxFeeBps {
		errs.Add(ValidationError{Field: "admin_fee_bps", Message: fmt.Sprintf("must not exceed %d", sale.MaxFeeBps)})
	}
	if p.Weighted {
		if _, ok := e.plugins.Curve(p.Curve); !ok {
			errs.Add(ValidationError{Field: "curve", Message: fmt.Sprintf("%q is not registered", p.Curve), Cause: ErrUnknownCurve})
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ListSales returns every registered sale in creation order.
func (e *Engine) ListSales(ctx context.Context) ([]*sale.Sale, error) {
	return e.store.ListSales(ctx)
}

// GetSale retrieves a sale by ID.
func (e *Engine) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	return e.store.GetSale(ctx, saleID)
}

// Fund moves amount of the sale token from owner to the sale account. The
// owner must first approve the sale address as spender on the token ledger.
func (e *Engine) Fund(ctx context.Context, saleID id.SaleID, owner common.Address, amount types.Amount) error {
	if amount.IsZero() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}

	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return err
	}

	if err := e.ledger.TransferFrom(ctx, s.Token, s.Address, owner, s.Address, amount); err != nil {
		return ledgerError(ErrInsufficientFunds, err)
	}

	e.logger.Info("sale funded",
		"sale_id", saleID.String(),
		"owner", owner.Hex(),
		"amount", amount.String(),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Read accessors
// ──────────────────────────────────────────────────

// Status returns the phase of a sale at the engine clock.
func (e *Engine) Status(ctx context.Context, saleID id.SaleID) (sale.Status, error) {
	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return "", err
	}
	return s.Status(e.Now()), nil
}

// Limit returns the throttle entry of addr. An address that never bought
// gets a zero entry.
func (e *Engine) Limit(ctx context.Context, saleID id.SaleID, addr common.Address) (*sale.Limit, error) {
	if _, err := e.store.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return e.store.GetLimit(ctx, saleID, addr)
}

// Purchases lists the purchase history of a sale, oldest first.
func (e *Engine) Purchases(ctx context.Context, saleID id.SaleID, opts sale.ListOpts) ([]*sale.Purchase, error) {
	return e.store.ListPurchases(ctx, saleID, opts.Normalize())
}

// Withdrawals lists the settlement history of a sale, oldest first.
func (e *Engine) Withdrawals(ctx context.Context, saleID id.SaleID) ([]*sale.Withdrawal, error) {
	return e.store.ListWithdrawals(ctx, saleID)
}

// Balances is the ledger view of a sale account.
type Balances struct {
	Native types.Amount `json:"native"`
	Tokens types.Amount `json:"tokens"`
}

// Balances reads the sale account's native and token balances.
func (e *Engine) Balances(ctx context.Context, saleID id.SaleID) (*Balances, error) {
	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	native, err := e.ledger.BalanceOf(ctx, e.nativeAsset, s.Address)
	if err != nil {
		return nil, err
	}
	tokens, err := e.ledger.BalanceOf(ctx, s.Token, s.Address)
	if err != nil {
		return nil, err
	}
	return &Balances{Native: native, Tokens: tokens}, nil
}

// ledgerError maps a token ledger failure onto an engine sentinel while
// keeping the ledger error in the chain.
func ledgerError(kind, err error) error {
	if errors.Is(err, token.ErrInsufficientBalance) || errors.Is(err, token.ErrInsufficientAllowance) {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
}
