package sale

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
)

// Store persists sales, throttle entries and settlement history.
type Store interface {
	CreateSale(ctx context.Context, s *Sale) error
	GetSale(ctx context.Context, saleID id.SaleID) (*Sale, error)
	ListSales(ctx context.Context) ([]*Sale, error)
	UpdateSale(ctx context.Context, s *Sale) error
	NextSeq(ctx context.Context) (uint64, error)

	GetLimit(ctx context.Context, saleID id.SaleID, addr common.Address) (*Limit, error)

	// CommitPurchase stores the updated sale, the contributor's limit and the
	// purchase record together.
	CommitPurchase(ctx context.Context, s *Sale, l *Limit, p *Purchase) error
	ListPurchases(ctx context.Context, saleID id.SaleID, opts ListOpts) ([]*Purchase, error)

	// CommitWithdrawal stores the updated sale and the withdrawal record together.
	CommitWithdrawal(ctx context.Context, s *Sale, w *Withdrawal) error
	ListWithdrawals(ctx context.Context, saleID id.SaleID) ([]*Withdrawal, error)
}

// ListOpts pages through purchase history. A zero Limit means no limit.
type ListOpts struct {
	Buyer  common.Address
	Limit  int
	Offset int
}

// Normalize clamps negative paging values to zero.
func (o ListOpts) Normalize() ListOpts {
	o.Limit = max(o.Limit, 0)
	o.Offset = max(o.Offset, 0)
	return o
}
