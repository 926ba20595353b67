package tokensale_test

import (
	"context"
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
	"github.com/xraph/tokensale/types"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnSaleCreated(context.Context, *sale.Sale) error { return r.add("created") }

func (r *recorder) OnTokensPurchased(context.Context, *sale.Sale, *sale.Purchase) error {
	return r.add("purchased")
}

func (r *recorder) OnPurchaseRejected(context.Context, id.SaleID, common.Address, types.Amount, error) error {
	return r.add("rejected")
}

func (r *recorder) OnThrottleTripped(context.Context, *sale.Sale, *sale.Limit) error {
	return r.add("throttled")
}

func (r *recorder) OnHardCapReached(context.Context, *sale.Sale) error { return r.add("capped") }

func (r *recorder) OnPriceUpdated(context.Context, *sale.Sale, uint64, uint64) error {
	return r.add("price")
}

func (r *recorder) OnFundsWithdrawn(context.Context, *sale.Sale, *sale.Withdrawal) error {
	return r.add("withdrawn")
}

func (r *recorder) OnTokensReturned(context.Context, *sale.Sale, *sale.Withdrawal) error {
	return r.add("returned")
}

func TestLifecycleHooks(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tokensale.WithPlugin(rec))

	s := h.createSale(t, referenceParams(), ether(1000))

	_, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(1))
	require.Error(t, err)

	h.clock.Advance(5 * time.Second)
	_, err = h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(60))
	require.NoError(t, err)
	_, err = h.engine.BuyTokens(h.ctx, s.ID, addr3, ether(50))
	require.NoError(t, err)

	_, err = h.engine.Withdraw(h.ctx, s.ID, admin)
	require.NoError(t, err)
	_, err = h.engine.WithdrawTokens(h.ctx, s.ID, admin)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"created",
		"rejected",
		"purchased", "throttled",
		"purchased", "throttled", "capped",
		"withdrawn",
		"returned",
	}, rec.Events())
}

// halvingCurve is a plugin curve that halves the rate on every reading.
type halvingCurve struct{}

func (halvingCurve) Name() string      { return "halving" }
func (halvingCurve) CurveName() string { return "halving" }

func (halvingCurve) Rate(in pricing.Input, _ time.Time) uint64 {
	return max(in.InitialRate/2, pricing.MinRate)
}

func TestPluginCurve(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tokensale.WithPlugin(halvingCurve{}), tokensale.WithPlugin(rec))

	p := referenceParams()
	p.StartTime = base
	p.TokensPerUnit = 10
	p.Weighted = true
	p.Curve = "halving"
	s := h.createSale(t, p, ether(1000))

	pur, err := h.engine.BuyTokens(h.ctx, s.ID, addr2, ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pur.Rate)
	assert.Contains(t, rec.Events(), "price")

	rate, err := h.engine.UpdateTokenPrice(h.ctx, s.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rate)
}
