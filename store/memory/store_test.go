package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/store/memory"
	"github.com/xraph/tokensale/store/storetest"
	"github.com/xraph/tokensale/types"
)

var (
	buyerA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyerB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newSale(seq uint64) *sale.Sale {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &sale.Sale{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewSaleID(),
		Seq:           seq,
		TokensPerUnit: 3,
		InitialRate:   3,
		HardCap:       types.Ether(100),
		Threshold:     types.Ether(50),
		StartTime:     now,
		EndTime:       now.Add(time.Hour),
		Metadata:      map[string]string{"round": "seed"},
	}
}

func TestSaleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	seq, err := s.NextSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	first := newSale(seq)
	require.NoError(t, s.CreateSale(ctx, first))

	seq, err = s.NextSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	second := newSale(seq)
	require.NoError(t, s.CreateSale(ctx, second))

	assert.ErrorIs(t, s.CreateSale(ctx, first), tokensale.ErrAlreadyExists)

	dup := newSale(2)
	assert.ErrorIs(t, s.CreateSale(ctx, dup), tokensale.ErrAlreadyExists)

	got, err := s.GetSale(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, got.Seq)
	assert.Equal(t, "seed", got.Metadata["round"])

	list, err := s.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = s.GetSale(ctx, id.NewSaleID())
	assert.ErrorIs(t, err, tokensale.ErrSaleNotFound)
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestReturnedSalesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sl := newSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))

	// Mutating the caller's value must not leak into the store.
	sl.Metadata["round"] = "changed"
	sl.RaisedAmount = types.Ether(10)

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, "seed", got.Metadata["round"])
	assert.True(t, got.RaisedAmount.IsZero())

	got.Metadata["round"] = "again"
	again, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, "seed", again.Metadata["round"])
}

func TestUpdateSale(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sl := newSale(1)
	assert.ErrorIs(t, s.UpdateSale(ctx, sl), tokensale.ErrSaleNotFound)

	require.NoError(t, s.CreateSale(ctx, sl))
	sl.TokensPerUnit = 2
	require.NoError(t, s.UpdateSale(ctx, sl))

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.TokensPerUnit)
}

func TestCommitPurchase(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sl := newSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))

	l, err := s.GetLimit(ctx, sl.ID, buyerA)
	require.NoError(t, err)
	assert.False(t, l.HasPurchased())

	now := sl.StartTime.Add(time.Minute)
	for i, buyer := range []common.Address{buyerA, buyerB, buyerA} {
		next := sl.Clone()
		next.RaisedAmount = types.Ether(uint64(i + 1))

		lim, err := s.GetLimit(ctx, sl.ID, buyer)
		require.NoError(t, err)
		lim.Amount = lim.Amount.Add(types.Ether(1))
		lim.FirstPurchaseAt = now
		lim.LastPurchaseAt = now
		lim.Purchases++

		p := &sale.Purchase{
			ID:           id.NewPurchaseID(),
			SaleID:       sl.ID,
			Buyer:        buyer,
			Contribution: types.Ether(1),
			Accepted:     types.Ether(1),
			Rate:         3,
			Tokens:       types.Ether(3),
			CreatedAt:    now,
		}
		require.NoError(t, s.CommitPurchase(ctx, next, lim, p))
	}

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.True(t, got.RaisedAmount.Equal(types.Ether(3)))

	lim, err := s.GetLimit(ctx, sl.ID, buyerA)
	require.NoError(t, err)
	assert.True(t, lim.Amount.Equal(types.Ether(2)))
	assert.Equal(t, uint64(2), lim.Purchases)

	all, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{Buyer: buyerA})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, buyerB, page[0].Buyer)

	past, err := s.ListPurchases(ctx, sl.ID, sale.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	orphan := newSale(9)
	err = s.CommitPurchase(ctx, orphan, sale.NewLimit(orphan.ID, buyerA), &sale.Purchase{ID: id.NewPurchaseID()})
	assert.ErrorIs(t, err, tokensale.ErrSaleNotFound)
}

func TestCommitWithdrawal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sl := newSale(1)
	require.NoError(t, s.CreateSale(ctx, sl))

	next := sl.Clone()
	next.Withdrawn = true
	w := &sale.Withdrawal{
		ID:          id.NewWithdrawalID(),
		SaleID:      sl.ID,
		Kind:        sale.WithdrawalFunds,
		OwnerAmount: types.Ether(100),
	}
	require.NoError(t, s.CommitWithdrawal(ctx, next, w))

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.True(t, got.Withdrawn)

	list, err := s.ListWithdrawals(ctx, sl.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sale.WithdrawalFunds, list[0].Kind)
	assert.True(t, list[0].Total().Equal(types.Ether(100)))
}

func TestPingClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), tokensale.ErrStoreClosed)
}
