package tokensale

import "github.com/xraph/tokensale/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	Units       = types.Units
	Ether       = types.Ether
	ParseAmount = types.ParseAmount
	Zero        = types.Zero
	Sum         = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
