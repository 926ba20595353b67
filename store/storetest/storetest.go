// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/types"
)

// Factory returns an empty, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

var (
	BuyerA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	BuyerB = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// NewSale returns a persistable sale with a distinct address per seq.
func NewSale(seq uint64) *sale.Sale {
	return &sale.Sale{
		Entity:        types.NewEntityAt(epoch),
		ID:            id.NewSaleID(),
		Seq:           seq,
		Address:       common.BigToAddress(new(big.Int).SetUint64(0x5a1e0000 + seq)),
		Admin:         common.HexToAddress("0xad"),
		ProjectOwner:  common.HexToAddress("0x0e"),
		Token:         common.HexToAddress("0x70"),
		InitialRate:   3,
		TokensPerUnit: 3,
		HardCap:       types.Ether(100),
		Threshold:     types.Ether(50),
		Cooldown:      5 * time.Second,
		AdminFeeBps:   250,
		StartTime:     epoch,
		EndTime:       epoch.Add(time.Hour),
		Metadata:      map[string]string{"round": "seed"},
	}
}

// Run exercises newStore against the shared store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SaleLifecycle", testSaleLifecycle},
		{"UpdateSale", testUpdateSale},
		{"CommitPurchase", testCommitPurchase},
		{"ListPurchasesPaging", testListPurchasesPaging},
		{"CommitPurchaseIsAtomic", testCommitPurchaseIsAtomic},
		{"CommitWithdrawal", testCommitWithdrawal},
		{"CommitWithdrawalIsAtomic", testCommitWithdrawalIsAtomic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testSaleLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	seq, err := s.NextSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	first := NewSale(seq)
	require.NoError(t, s.CreateSale(ctx, first))

	seq, err = s.NextSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	second := NewSale(seq)
	second.Metadata = nil
	require.NoError(t, s.CreateSale(ctx, second))

	assert.ErrorIs(t, s.CreateSale(ctx, first), tokensale.ErrAlreadyExists)

	got, err := s.GetSale(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = s.GetSale(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata)

	list, err := s.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = s.GetSale(ctx, id.NewSaleID())
	assert.ErrorIs(t, err, tokensale.ErrSaleNotFound)
}

func testUpdateSale(t *testing.T, s store.Store) {
	ctx := context.Background()

	sl := NewSale(1)
	assert.ErrorIs(t, s.UpdateSale(ctx, sl), tokensale.ErrSaleNotFound)

	require.NoError(t, s.CreateSale(ctx, sl))
	sl.TokensPerUnit = 2
	sl.Ended = true
	sl.EndedAt = epoch.Add(30 * time.Minute)
	require.NoError(t, s.UpdateSale(ctx, sl))

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.TokensPerUnit)
	assert.True(t, got.Ended)
	assert.True(t, got.EndedAt.Equal(sl.EndedAt))
}

// buy commits one purchase of amount by buyer at.
func buy(t *testing.T, s store.Store, sl *sale.Sale, buyer common.Address, amount types.Amount, at time.Time) *sale.Purchase {
	t.Helper()
	ctx := context.Background()

	lim, err := s.GetLimit(ctx, sl.ID, buyer)
	require.NoError(t, err)
	if !lim.HasPurchased() {
		lim.FirstPurchaseAt = at
	}
	lim.Amount = lim.Amount.Add(amount)
	lim.LastPurchaseAt = at
	lim.Timeout = at.Add(sl.Cooldown)
	lim.Purchases++

	tokens, overflow := amount.MulUint64(sl.TokensPerUnit)
	require.False(t, overflow)

	sl.RaisedAmount = sl.RaisedAmount.Add(amount)
	p := &sale.Purchase{
		ID:             id.NewPurchaseID(),
		SaleID:         sl.ID,
		Buyer:          buyer,
		Contribution:   amount,
		Accepted:       amount,
		CapRefund:      types.Zero(),
		ThrottleRefund: types.Zero(),
		Rate:           sl.TokensPerUnit,
		Tokens:         tokens,
		CreatedAt:      at,
	}
	require.NoError(t, s.CommitPurchase(ctx, sl, lim, p))
	return p
}

func testCommitPurchase(t *testing.T, s store.Store) {
	ctx := context.Background()

	sl := NewSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))

	fresh, err := s.GetLimit(ctx, sl.ID, BuyerA)
	require.NoError(t, err)
	assert.False(t, fresh.HasPurchased())
	assert.True(t, fresh.Amount.IsZero())

	at := epoch.Add(time.Minute)
	first := buy(t, s, sl, BuyerA, types.Ether(1), at)
	buy(t, s, sl, BuyerB, types.Ether(2), at)
	buy(t, s, sl, BuyerA, types.Ether(3), at.Add(10*time.Second))

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.True(t, got.RaisedAmount.Equal(types.Ether(6)))

	lim, err := s.GetLimit(ctx, sl.ID, BuyerA)
	require.NoError(t, err)
	assert.True(t, lim.Amount.Equal(types.Ether(4)))
	assert.Equal(t, uint64(2), lim.Purchases)
	assert.True(t, lim.FirstPurchaseAt.Equal(at))
	assert.True(t, lim.LastPurchaseAt.Equal(at.Add(10*time.Second)))
	assert.True(t, lim.Timeout.Equal(at.Add(15*time.Second)))

	all, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first, all[0])
	assert.Equal(t, []common.Address{BuyerA, BuyerB, BuyerA},
		[]common.Address{all[0].Buyer, all[1].Buyer, all[2].Buyer})

	mine, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{Buyer: BuyerA})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[1].Contribution.Equal(types.Ether(3)))

	other, err := s.ListPurchases(ctx, id.NewSaleID(), sale.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testListPurchasesPaging(t *testing.T, s store.Store) {
	ctx := context.Background()

	sl := NewSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))
	for i := range 4 {
		buy(t, s, sl, BuyerA, types.Ether(uint64(i+1)), epoch.Add(time.Duration(i)*time.Minute))
	}

	tests := []struct {
		name string
		opts sale.ListOpts
		want []uint64
	}{
		{"all", sale.ListOpts{}, []uint64{1, 2, 3, 4}},
		{"limit", sale.ListOpts{Limit: 2}, []uint64{1, 2}},
		{"offset only", sale.ListOpts{Offset: 3}, []uint64{4}},
		{"window", sale.ListOpts{Limit: 2, Offset: 1}, []uint64{2, 3}},
		{"past the end", sale.ListOpts{Offset: 10}, nil},
		{"negative offset", sale.ListOpts{Offset: -1, Limit: 1}, []uint64{1}},
		{"negative limit", sale.ListOpts{Limit: -5}, []uint64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListPurchases(ctx, sl.ID, tt.opts)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, p := range got {
				assert.True(t, p.Contribution.Equal(types.Ether(tt.want[i])), "purchase %d", i)
			}
		})
	}
}

// A commit against a sale the store never saw must leave no purchase and
// no limit behind, even when the backend wrote them before the sale update.
func testCommitPurchaseIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()

	orphan := NewSale(9)
	lim := sale.NewLimit(orphan.ID, BuyerA)
	lim.Amount = types.Ether(1)
	lim.FirstPurchaseAt = epoch
	lim.LastPurchaseAt = epoch
	lim.Purchases = 1
	p := &sale.Purchase{
		ID:             id.NewPurchaseID(),
		SaleID:         orphan.ID,
		Buyer:          BuyerA,
		Contribution:   types.Ether(1),
		Accepted:       types.Ether(1),
		CapRefund:      types.Zero(),
		ThrottleRefund: types.Zero(),
		Rate:           3,
		Tokens:         types.Ether(3),
		CreatedAt:      epoch,
	}

	err := s.CommitPurchase(ctx, orphan, lim, p)
	assert.ErrorIs(t, err, tokensale.ErrSaleNotFound)

	got, err := s.GetLimit(ctx, orphan.ID, BuyerA)
	require.NoError(t, err)
	assert.False(t, got.HasPurchased())
	assert.True(t, got.Amount.IsZero())

	list, err := s.ListPurchases(ctx, orphan.ID, sale.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testCommitWithdrawal(t *testing.T, s store.Store) {
	ctx := context.Background()

	sl := NewSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))

	at := epoch.Add(2 * time.Hour)
	next := sl.Clone()
	next.Withdrawn = true
	next.WithdrawnAt = at
	funds := &sale.Withdrawal{
		ID:           id.NewWithdrawalID(),
		SaleID:       sl.ID,
		Kind:         sale.WithdrawalFunds,
		Admin:        sl.Admin,
		ProjectOwner: sl.ProjectOwner,
		AdminAmount:  types.MustParseAmount("2500000000000000000"),
		OwnerAmount:  types.MustParseAmount("97500000000000000000"),
		CreatedAt:    at,
	}
	require.NoError(t, s.CommitWithdrawal(ctx, next, funds))

	tokens := &sale.Withdrawal{
		ID:           id.NewWithdrawalID(),
		SaleID:       sl.ID,
		Kind:         sale.WithdrawalTokens,
		ProjectOwner: sl.ProjectOwner,
		AdminAmount:  types.Zero(),
		OwnerAmount:  types.Ether(10),
		CreatedAt:    at.Add(time.Second),
	}
	require.NoError(t, s.CommitWithdrawal(ctx, next, tokens))

	// A second funds payout is refused and leaves the sale untouched.
	again := next.Clone()
	again.TokensPerUnit = 1
	dup := &sale.Withdrawal{
		ID:           id.NewWithdrawalID(),
		SaleID:       sl.ID,
		Kind:         sale.WithdrawalFunds,
		AdminAmount:  types.Zero(),
		OwnerAmount:  types.Ether(1),
		CreatedAt:    at.Add(2 * time.Second),
	}
	assert.ErrorIs(t, s.CommitWithdrawal(ctx, again, dup), tokensale.ErrAlreadyWithdrawn)

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.True(t, got.Withdrawn)
	assert.True(t, got.WithdrawnAt.Equal(at))
	assert.Equal(t, sl.TokensPerUnit, got.TokensPerUnit)

	list, err := s.ListWithdrawals(ctx, sl.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, funds, list[0])
	assert.Equal(t, sale.WithdrawalTokens, list[1].Kind)
	assert.True(t, list[0].Total().Equal(types.Ether(100)))
}

func testCommitWithdrawalIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()

	orphan := NewSale(9)
	w := &sale.Withdrawal{
		ID:          id.NewWithdrawalID(),
		SaleID:      orphan.ID,
		Kind:        sale.WithdrawalFunds,
		AdminAmount: types.Zero(),
		OwnerAmount: types.Ether(1),
		CreatedAt:   epoch,
	}
	assert.ErrorIs(t, s.CommitWithdrawal(ctx, orphan, w), tokensale.ErrSaleNotFound)

	list, err := s.ListWithdrawals(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
