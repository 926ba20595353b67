// Package memory provides an in-process token.Ledger.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/token"
	"github.com/xraph/tokensale/types"
)

type balanceKey struct {
	asset common.Address
	owner common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger keeps balances and allowances in maps guarded by one mutex.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[balanceKey]types.Amount
	allowances map[allowanceKey]types.Amount
}

var (
	_ token.Ledger = (*Ledger)(nil)
	_ token.Minter = (*Ledger)(nil)
)

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]types.Amount),
		allowances: make(map[allowanceKey]types.Amount),
	}
}

func (l *Ledger) BalanceOf(_ context.Context, asset, owner common.Address) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{asset, owner}], nil
}

func (l *Ledger) Transfer(_ context.Context, asset, from, to common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(asset, from, to, amount)
}

func (l *Ledger) TransferFrom(_ context.Context, asset, spender, from, to common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{asset, from, spender}
	allowed := l.allowances[key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s approved %s, need %s", token.ErrInsufficientAllowance, spender.Hex(), allowed, amount)
	}
	if err := l.move(asset, from, to, amount); err != nil {
		return err
	}
	l.allowances[key] = allowed.Sub(amount)
	return nil
}

func (l *Ledger) Approve(_ context.Context, asset, owner, spender common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{asset, owner, spender}] = amount
	return nil
}

func (l *Ledger) Allowance(_ context.Context, asset, owner, spender common.Address) (types.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[allowanceKey{asset, owner, spender}], nil
}

// Mint credits amount of asset to an account.
func (l *Ledger) Mint(_ context.Context, asset, to common.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset, to}
	l.balances[key] = l.balances[key].Add(amount)
	return nil
}

// Supply returns the sum of every balance held in asset.
func (l *Ledger) Supply(asset common.Address) types.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total types.Amount
	for k, v := range l.balances {
		if k.asset == asset {
			total = total.Add(v)
		}
	}
	return total
}

// move must be called with the write lock held.
func (l *Ledger) move(asset, from, to common.Address, amount types.Amount) error {
	src := balanceKey{asset, from}
	have := l.balances[src]
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", token.ErrInsufficientBalance, from.Hex(), have, amount)
	}
	l.balances[src] = have.Sub(amount)

	dst := balanceKey{asset, to}
	l.balances[dst] = l.balances[dst].Add(amount)
	return nil
}
