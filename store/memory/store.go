// Package memory provides an in-process store.Store for tests and
// development daemons.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/store"
)

type limitKey struct {
	sale string
	addr common.Address
}

// Store keeps every record in maps guarded by one RWMutex. Values are copied
// on the way in and out so callers never alias stored state.
type Store struct {
	mu sync.RWMutex

	// Sale storage, plus creation order
	sales map[string]*sale.Sale
	order []string
	seq   uint64

	// Throttle entries
	limits map[limitKey]*sale.Limit

	// History
	purchases   map[string][]*sale.Purchase
	withdrawals map[string][]*sale.Withdrawal

	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sales:       make(map[string]*sale.Sale),
		limits:      make(map[limitKey]*sale.Limit),
		purchases:   make(map[string][]*sale.Purchase),
		withdrawals: make(map[string][]*sale.Withdrawal),
	}
}

// Sale Store implementation

func (s *Store) CreateSale(_ context.Context, sl *sale.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sl.ID.String()
	if _, exists := s.sales[key]; exists {
		return tokensale.ErrAlreadyExists
	}
	for _, existing := range s.sales {
		if existing.Seq == sl.Seq {
			return tokensale.ErrAlreadyExists
		}
	}
	s.sales[key] = sl.Clone()
	s.order = append(s.order, key)
	if sl.Seq > s.seq {
		s.seq = sl.Seq
	}
	return nil
}

func (s *Store) GetSale(_ context.Context, saleID id.SaleID) (*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sl, ok := s.sales[saleID.String()]; ok {
		return sl.Clone(), nil
	}
	return nil, tokensale.ErrSaleNotFound
}

func (s *Store) ListSales(_ context.Context) ([]*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sale.Sale, 0, len(s.order))
	for _, key := range s.order {
		result = append(result, s.sales[key].Clone())
	}
	return result, nil
}

func (s *Store) UpdateSale(_ context.Context, sl *sale.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[sl.ID.String()]; !exists {
		return tokensale.ErrSaleNotFound
	}
	s.sales[sl.ID.String()] = sl.Clone()
	return nil
}

func (s *Store) NextSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq + 1, nil
}

func (s *Store) GetLimit(_ context.Context, saleID id.SaleID, addr common.Address) (*sale.Limit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.limits[limitKey{saleID.String(), addr}]; ok {
		cp := *l
		return &cp, nil
	}
	return sale.NewLimit(saleID, addr), nil
}

func (s *Store) CommitPurchase(_ context.Context, sl *sale.Sale, l *sale.Limit, p *sale.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sl.ID.String()
	if _, exists := s.sales[key]; !exists {
		return tokensale.ErrSaleNotFound
	}

	lim := *l
	pur := *p
	s.sales[key] = sl.Clone()
	s.limits[limitKey{key, l.Address}] = &lim
	s.purchases[key] = append(s.purchases[key], &pur)
	return nil
}

func (s *Store) ListPurchases(_ context.Context, saleID id.SaleID, opts sale.ListOpts) ([]*sale.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sale.Purchase, 0)
	for _, p := range s.purchases[saleID.String()] {
		if opts.Buyer != (common.Address{}) && p.Buyer != opts.Buyer {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	// Apply limit/offset
	opts = opts.Normalize()
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) CommitWithdrawal(_ context.Context, sl *sale.Sale, w *sale.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sl.ID.String()
	if _, exists := s.sales[key]; !exists {
		return tokensale.ErrSaleNotFound
	}

	if w.Kind == sale.WithdrawalFunds {
		for _, prev := range s.withdrawals[key] {
			if prev.Kind == sale.WithdrawalFunds {
				return tokensale.ErrAlreadyWithdrawn
			}
		}
	}

	wd := *w
	s.sales[key] = sl.Clone()
	s.withdrawals[key] = append(s.withdrawals[key], &wd)
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, saleID id.SaleID) ([]*sale.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sale.Withdrawal, 0, len(s.withdrawals[saleID.String()]))
	for _, w := range s.withdrawals[saleID.String()] {
		cp := *w
		result = append(result, &cp)
	}
	return result, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tokensale.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
