package tokensale_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store"
	"github.com/xraph/tokensale/store/memory"
	tokenmem "github.com/xraph/tokensale/token/memory"
	"github.com/xraph/tokensale/types"
)

var (
	base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	admin = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	owner = common.HexToAddress("0x000000000000000000000000000000000000ff01")
	asset = common.HexToAddress("0x000000000000000000000000000000000000cafe")
	addr2 = common.HexToAddress("0x0000000000000000000000000000000000000002")
	addr3 = common.HexToAddress("0x0000000000000000000000000000000000000003")
	addr4 = common.HexToAddress("0x0000000000000000000000000000000000000004")

	native = common.Address{}
)

// testClock is a manually advanced clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	ctx    context.Context
	engine *tokensale.Engine
	ledger *tokenmem.Ledger
	clock  *testClock
}

func newHarness(t *testing.T, opts ...tokensale.Option) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.New(), opts...)
}

func newHarnessWithStore(t *testing.T, s store.Store, opts ...tokensale.Option) *harness {
	t.Helper()

	h := &harness{
		ctx:    context.Background(),
		ledger: tokenmem.New(),
		clock:  &testClock{t: base},
	}

	all := append([]tokensale.Option{
		tokensale.WithLogger(slog.New(slog.DiscardHandler)),
		tokensale.WithClock(h.clock.Now),
	}, opts...)
	h.engine = tokensale.New(s, h.ledger, all...)
	require.NoError(t, h.engine.Start(h.ctx))
	t.Cleanup(func() { _ = h.engine.Stop() })

	for _, buyer := range []common.Address{addr2, addr3, addr4} {
		require.NoError(t, h.ledger.Mint(h.ctx, native, buyer, types.Ether(1000)))
	}
	require.NoError(t, h.ledger.Mint(h.ctx, asset, owner, types.Ether(10_000_000)))

	return h
}

// referenceParams mirrors the constant sale of the reference scenario: rate
// 3, hard cap 100, opening three seconds from now and closing after thirty.
func referenceParams() sale.Params {
	return sale.Params{
		Admin:         admin,
		ProjectOwner:  owner,
		Token:         asset,
		TokensPerUnit: 3,
		HardCap:       types.Ether(100),
		StartTime:     base.Add(3 * time.Second),
		EndTime:       base.Add(30 * time.Second),
		AdminFeeBps:   ptr(uint32(250)),
	}
}

func ptr[T any](v T) *T { return &v }

// createSale registers a sale and funds it with supply tokens from owner.
func (h *harness) createSale(t *testing.T, p sale.Params, supply types.Amount) *sale.Sale {
	t.Helper()

	s, err := h.engine.CreateSale(h.ctx, p)
	require.NoError(t, err)

	if supply.IsPositive() {
		require.NoError(t, h.ledger.Approve(h.ctx, asset, owner, s.Address, supply))
		require.NoError(t, h.engine.Fund(h.ctx, s.ID, owner, supply))
	}
	return s
}

func (h *harness) balance(t *testing.T, a, who common.Address) types.Amount {
	t.Helper()
	b, err := h.ledger.BalanceOf(h.ctx, a, who)
	require.NoError(t, err)
	return b
}

func (h *harness) reload(t *testing.T, s *sale.Sale) *sale.Sale {
	t.Helper()
	got, err := h.engine.GetSale(h.ctx, s.ID)
	require.NoError(t, err)
	return got
}

func ether(n uint64) types.Amount { return types.Ether(n) }
