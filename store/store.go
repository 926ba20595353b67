// Package store defines the aggregate persistence interface of the engine.
package store

import (
	"context"

	"github.com/xraph/tokensale/sale"
)

// Store is the unified storage interface for all sale entities. Backends
// live in the memory, postgres, sqlite and mongo subpackages.
type Store interface {
	sale.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
