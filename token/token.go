// Package token defines the ledger capability a sale moves value through.
//
// One Ledger carries every asset the engine touches: the sale token of each
// instance and the native base asset contributions are paid in. Assets are
// addressed by their contract address; the native asset uses a
// configurable sentinel address.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/types"
)

var (
	// ErrInsufficientBalance is returned when an account cannot cover a debit.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance is returned when TransferFrom exceeds the
	// spender's approval.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Ledger is a multi-asset balance book.
type Ledger interface {
	BalanceOf(ctx context.Context, asset, owner common.Address) (types.Amount, error)
	Transfer(ctx context.Context, asset, from, to common.Address, amount types.Amount) error
	TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount types.Amount) error
	Approve(ctx context.Context, asset, owner, spender common.Address, amount types.Amount) error
	Allowance(ctx context.Context, asset, owner, spender common.Address) (types.Amount, error)
}

// Minter credits new balance. Development ledgers implement it to seed
// accounts; production ledgers usually do not.
type Minter interface {
	Mint(ctx context.Context, asset, to common.Address, amount types.Amount) error
}
