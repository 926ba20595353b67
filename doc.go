// Package tokensale provides an embeddable token sale engine for Go applications.
//
// Tokensale is designed as a library, not a service. A host application owns
// the process, the database and the token ledger; the engine owns the sale
// rules. It provides:
//
//   - A registry that launches independent sale instances with derived addresses
//   - Per-sale windows, integer rates and a global hard cap with exact refunds
//   - A per-contributor throttle with a cooldown after the window fills
//   - Optional weighted pricing over built-in or plugin curves
//   - Settlement of raised funds and unsold tokens after the sale ends
//   - Lifecycle hooks for metrics, audit trails and custom curves
//
// # Quick Start
//
// Create an engine over a store and a token ledger:
//
//	import (
//	    "github.com/xraph/tokensale"
//	    "github.com/xraph/tokensale/store/memory"
//	    tokenmem "github.com/xraph/tokensale/token/memory"
//	)
//
//	engine := tokensale.New(memory.New(), tokenmem.New())
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Sales
//
// A sale sells one token for the native asset between two instants:
//
//	s, err := engine.CreateSale(ctx, sale.Params{
//	    Admin:         admin,
//	    ProjectOwner:  owner,
//	    Token:         token,
//	    TokensPerUnit: 3,
//	    HardCap:       tokensale.Ether(100),
//	    StartTime:     start,
//	    EndTime:       end,
//	})
//
// The project owner approves the sale address on the token ledger and funds
// it, after which contributors buy:
//
//	err = engine.Fund(ctx, s.ID, owner, supply)
//	p, err := engine.BuyTokens(ctx, s.ID, buyer, tokensale.Ether(70))
//	// p.Accepted, p.CapRefund, p.ThrottleRefund, p.Tokens
//
// A contribution is capped by the remaining hard cap first and by the
// buyer's throttle window second. Only the accepted part leaves the buyer's
// balance.
//
// # Settlement
//
// Once the sale is over, by time or by hard cap, the admin pays out:
//
//	w, err := engine.Withdraw(ctx, s.ID, admin)        // raised funds
//	w, err = engine.WithdrawTokens(ctx, s.ID, admin)   // unsold tokens
//
// # Amounts
//
// All amounts are 256-bit unsigned integers in the smallest unit of their
// asset. Rates are whole token units per base-asset unit and never rise.
//
// # TypeID
//
// All records use TypeID for globally unique, type-safe identifiers:
//
//	sale_01h2xcejqtf2nbrexx3vqjhp41  // Sale ID
//	pur_01h2xcejqtf2nbrexx3vqjhp41   // Purchase ID
//	wdr_01h455vb4pex5vsknk084sn02q   // Withdrawal ID
package tokensale
