package tokensale_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store/memory"
	tokenmem "github.com/xraph/tokensale/token/memory"
	"github.com/xraph/tokensale/types"
)

// TestDocumentationExamples verifies that the package documentation examples run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		start := time.Now().Add(-time.Minute)

		// Memory store and ledger for the demo; use PostgreSQL in production.
		ledger := tokenmem.New()
		engine := tokensale.New(memory.New(), ledger,
			tokensale.WithLogger(slog.New(slog.DiscardHandler)),
		)

		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		adminAddr := common.HexToAddress("0x1000000000000000000000000000000000000001")
		ownerAddr := common.HexToAddress("0x2000000000000000000000000000000000000002")
		tokenAddr := common.HexToAddress("0x3000000000000000000000000000000000000003")
		buyer := common.HexToAddress("0x4000000000000000000000000000000000000004")

		if err := ledger.Mint(ctx, tokenAddr, ownerAddr, tokensale.Ether(1000)); err != nil {
			t.Fatal(err)
		}
		if err := ledger.Mint(ctx, common.Address{}, buyer, tokensale.Ether(100)); err != nil {
			t.Fatal(err)
		}

		s, err := engine.CreateSale(ctx, sale.Params{
			Admin:         adminAddr,
			ProjectOwner:  ownerAddr,
			Token:         tokenAddr,
			TokensPerUnit: 3,
			HardCap:       tokensale.Ether(100),
			StartTime:     start,
			EndTime:       start.Add(time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}

		supply := tokensale.Ether(1000)
		if err := ledger.Approve(ctx, tokenAddr, ownerAddr, s.Address, supply); err != nil {
			t.Fatal(err)
		}
		if err := engine.Fund(ctx, s.ID, ownerAddr, supply); err != nil {
			t.Fatal(err)
		}

		p, err := engine.BuyTokens(ctx, s.ID, buyer, tokensale.Ether(70))
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("accepted %s, refunded %s, tokens %s\n",
			p.Accepted.FormatUnits(types.EtherDecimals),
			p.Refund().FormatUnits(types.EtherDecimals),
			p.Tokens.FormatUnits(types.EtherDecimals),
		)

		if !p.Accepted.Equal(tokensale.Ether(50)) {
			t.Errorf("accepted = %s, want 50 ether", p.Accepted)
		}
		if !p.Tokens.Equal(tokensale.Ether(150)) {
			t.Errorf("tokens = %s, want 150 ether", p.Tokens)
		}
	})

	t.Run("AmountExamples", func(t *testing.T) {
		// Constructors
		_ = tokensale.Units(1)  // 1 wei
		_ = tokensale.Ether(50) // 50 * 10^18
		_ = tokensale.Zero()

		// Arithmetic
		a := tokensale.Ether(70)
		b := tokensale.Ether(50)
		if got := a.Sub(b); !got.Equal(tokensale.Ether(20)) {
			t.Errorf("70 - 50 = %s", got)
		}
		if got := a.Min(b); !got.Equal(b) {
			t.Errorf("min = %s", got)
		}

		// Parsing and formatting
		c, err := tokensale.ParseAmount("1500000000000000000")
		if err != nil {
			t.Fatal(err)
		}
		if got := c.FormatUnits(types.EtherDecimals); got != "1.5" {
			t.Errorf("FormatUnits = %q, want 1.5", got)
		}
	})
}
