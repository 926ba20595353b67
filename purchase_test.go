package tokensale_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store/memory"
	"github.com/xraph/tokensale/types"
)

func TestConstantSaleScenario(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), ether(10_000_000))

	h.clock.Advance(10 * time.Second)

	// A first small buy pays the stored rate.
	p, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.Rate)
	assert.True(t, h.balance(t, asset, addr2).Equal(ether(3)))

	// 70 more crosses the window: 49 accepted, 21 refunded, cooldown starts.
	p, err = h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(70))
	require.NoError(t, err)
	assert.True(t, p.Accepted.Equal(ether(49)))
	assert.True(t, p.ThrottleRefund.Equal(ether(21)))
	assert.True(t, p.CapRefund.IsZero())
	assert.True(t, p.Throttled)
	assert.True(t, h.balance(t, asset, addr2).Equal(ether(150)))
	assert.True(t, h.balance(t, native, addr2).Equal(ether(950)))

	lim, err := h.engine.Limit(h.ctx, s.ID, addr2)
	require.NoError(t, err)
	assert.True(t, lim.Amount.IsZero())
	assert.Equal(t, h.clock.Now().Add(5*time.Second), lim.Timeout)

	// After the cooldown the window is fresh.
	h.clock.Advance(6 * time.Second)
	_, err = h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(10))
	require.NoError(t, err)
	assert.True(t, h.balance(t, asset, addr2).Equal(ether(180)))

	lim, err = h.engine.Limit(h.ctx, s.ID, addr2)
	require.NoError(t, err)
	assert.True(t, lim.Amount.Equal(ether(10)))
	assert.Equal(t, uint64(3), lim.Purchases)

	// Hard cap: 60 raised, 20 more brings it to 80, then 50 only fits 20.
	_, err = h.engine.BuyTokens(h.ctx, s.ID, addr3, ether(20))
	require.NoError(t, err)
	assert.True(t, h.balance(t, asset, addr3).Equal(ether(60)))

	p, err = h.engine.BuyTokens(h.ctx, s.ID, addr4, ether(50))
	require.NoError(t, err)
	assert.True(t, p.Accepted.Equal(ether(20)))
	assert.True(t, p.CapRefund.Equal(ether(30)))
	assert.True(t, p.CapReached)
	assert.True(t, h.balance(t, asset, addr4).Equal(ether(60)))
	assert.True(t, h.balance(t, native, addr4).Equal(ether(980)))

	got := h.reload(t, s)
	assert.True(t, got.RaisedAmount.Equal(ether(100)))
	assert.True(t, got.Ended)
	assert.False(t, got.IsActive(h.clock.Now()))

	status, err := h.engine.Status(h.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusEnded, status)

	_, err = h.engine.BuyTokens(h.ctx, s.ID, addr3, ether(1))
	assert.ErrorIs(t, err, tokensale.ErrSaleNotActive)

	bal, err := h.engine.Balances(h.ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, bal.Native.Equal(ether(100)))
	assert.True(t, bal.Tokens.Equal(ether(10_000_000-300)))

	history, err := h.engine.Purchases(h.ctx, s.ID, sale.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 5)

	// Negative paging values read as unset.
	history, err = h.engine.Purchases(h.ctx, s.ID, sale.ListOpts{Limit: -1, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, history, 5)

	history, err = h.engine.Purchases(h.ctx, s.ID, sale.ListOpts{Limit: 2, Offset: -1})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, addr2, history[0].Buyer)
}

func TestBuyTokensInactive(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), ether(1000))

	check := func(t *testing.T) {
		t.Helper()
		_, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(5))
		require.ErrorIs(t, err, tokensale.ErrSaleNotActive)
		assert.True(t, tokensale.IsRejected(err))

		assert.True(t, h.balance(t, native, addr2).Equal(ether(1000)))
		assert.True(t, h.balance(t, asset, addr2).IsZero())
		assert.True(t, h.balance(t, asset, s.Address).Equal(ether(1000)))
		assert.True(t, h.reload(t, s).RaisedAmount.IsZero())
	}

	t.Run("before start", func(t *testing.T) {
		check(t)
		assert.False(t, h.reload(t, s).Ended)
	})

	t.Run("after end", func(t *testing.T) {
		h.clock.Advance(time.Minute)
		check(t)
		assert.True(t, h.reload(t, s).Ended, "ended latch persisted")
	})
}

func TestBuyTokensValidation(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), ether(1000))
	h.clock.Advance(5 * time.Second)

	_, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, types.Zero())
	assert.ErrorIs(t, err, tokensale.ErrInvalidParameters)

	_, err = h.engine.BuyTokens(h.ctx, id.NewSaleID(), addr2, ether(1))
	assert.True(t, tokensale.IsNotFound(err))
}

func TestBuyTokensInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), ether(1000))
	h.clock.Advance(5 * time.Second)

	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	require.NoError(t, h.ledger.Mint(h.ctx, native, poor, ether(10)))

	_, err := h.engine.BuyTokens(h.ctx, s.ID, poor, ether(20))
	require.ErrorIs(t, err, tokensale.ErrInsufficientFunds)
	assert.True(t, h.balance(t, native, poor).Equal(ether(10)))
	assert.True(t, h.balance(t, asset, poor).IsZero())
}

func TestBuyTokensInsufficientSupply(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), ether(2))
	h.clock.Advance(5 * time.Second)

	_, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(1))
	require.ErrorIs(t, err, tokensale.ErrInsufficientTokenSupply)

	assert.True(t, h.balance(t, native, addr2).Equal(ether(1000)))
	assert.True(t, h.balance(t, asset, s.Address).Equal(ether(2)))
	assert.True(t, h.reload(t, s).RaisedAmount.IsZero())
}

// failingStore refuses every purchase commit.
type failingStore struct {
	*memory.Store
}

var errCommit = errors.New("disk full")

func (failingStore) CommitPurchase(context.Context, *sale.Sale, *sale.Limit, *sale.Purchase) error {
	return errCommit
}

func TestBuyTokensRollsBackTransfers(t *testing.T) {
	h := newHarnessWithStore(t, failingStore{memory.New()})
	s := h.createSale(t, referenceParams(), ether(1000))
	h.clock.Advance(5 * time.Second)

	_, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(10))
	require.ErrorIs(t, err, tokensale.ErrTransactionFailed)
	assert.ErrorIs(t, err, errCommit)
	assert.True(t, tokensale.IsRetryable(err))

	assert.True(t, h.balance(t, native, addr2).Equal(ether(1000)))
	assert.True(t, h.balance(t, asset, addr2).IsZero())
	assert.True(t, h.balance(t, native, s.Address).IsZero())
	assert.True(t, h.balance(t, asset, s.Address).Equal(ether(1000)))
}

func TestHardCapNeverExceededConcurrently(t *testing.T) {
	h := newHarness(t)
	p := referenceParams()
	p.Threshold = ether(1000)
	s := h.createSale(t, p, ether(10_000))
	h.clock.Advance(5 * time.Second)

	buyers := make([]common.Address, 25)
	for i := range buyers {
		buyers[i] = common.BytesToAddress([]byte{0xbe, byte(i)})
		require.NoError(t, h.ledger.Mint(h.ctx, native, buyers[i], ether(10)))
	}

	var wg sync.WaitGroup
	for _, b := range buyers {
		wg.Add(1)
		go func(buyer common.Address) {
			defer wg.Done()
			_, _ = h.engine.BuyTokens(h.ctx, s.ID, buyer, ether(10))
		}(b)
	}
	wg.Wait()

	got := h.reload(t, s)
	assert.True(t, got.RaisedAmount.Equal(ether(100)))
	assert.True(t, got.Ended)
	assert.True(t, h.balance(t, native, s.Address).Equal(ether(100)))
	assert.True(t, h.balance(t, asset, s.Address).Equal(ether(10_000-300)))

	history, err := h.engine.Purchases(h.ctx, s.ID, sale.ListOpts{})
	require.NoError(t, err)
	accepted := types.Zero()
	for _, pur := range history {
		accepted = accepted.Add(pur.Accepted)
	}
	assert.True(t, accepted.Equal(ether(100)))
}

func TestWeightedLinearPricing(t *testing.T) {
	h := newHarness(t)
	p := referenceParams()
	p.TokensPerUnit = 100
	p.StartTime = base
	p.EndTime = base.Add(100 * time.Second)
	p.Weighted = true
	s := h.createSale(t, p, ether(1_000_000))
	assert.Equal(t, pricing.NameLinearTime, s.Curve)

	h.clock.Advance(25 * time.Second)
	pur, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(76), pur.Rate)
	assert.True(t, pur.Tokens.Equal(ether(76)))
	assert.Equal(t, uint64(76), h.reload(t, s).TokensPerUnit)

	_, err = h.engine.UpdateTokenPrice(h.ctx, s.ID, addr2)
	assert.ErrorIs(t, err, tokensale.ErrUnauthorized)

	h.clock.Advance(25 * time.Second)
	rate, err := h.engine.UpdateTokenPrice(h.ctx, s.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(51), rate)

	// Rates never rise between observations.
	last := rate
	for range 6 {
		h.clock.Advance(10 * time.Second)
		rate, err = h.engine.UpdateTokenPrice(h.ctx, s.ID, admin)
		require.NoError(t, err)
		assert.LessOrEqual(t, rate, last)
		last = rate
	}

	assert.Equal(t, uint64(1), last)
	assert.Equal(t, uint64(1), h.reload(t, s).TokensPerUnit)
	assert.Equal(t, uint64(100), h.reload(t, s).InitialRate)
}

func TestWeightedDemandPricing(t *testing.T) {
	h := newHarness(t)
	p := referenceParams()
	p.StartTime = base
	p.Weighted = true
	p.Curve = pricing.NameDemand
	s := h.createSale(t, p, ether(1_000_000))

	pur, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(30))
	require.NoError(t, err)
	assert.True(t, h.balance(t, asset, addr2).Equal(ether(90)))

	pur, err = h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(20))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pur.Rate)

	// Half the cap raised: the rate has dropped by one step.
	pur, err = h.engine.BuyTokens(h.ctx, s.ID, addr3, ether(40))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pur.Rate)
	assert.True(t, h.balance(t, asset, addr3).Equal(ether(80)))
}

func TestUpdateTokenPriceConstantSale(t *testing.T) {
	h := newHarness(t)
	s := h.createSale(t, referenceParams(), types.Zero())

	_, err := h.engine.UpdateTokenPrice(h.ctx, s.ID, admin)
	assert.ErrorIs(t, err, tokensale.ErrNotWeighted)
	assert.Equal(t, uint64(3), h.reload(t, s).TokensPerUnit)
}
