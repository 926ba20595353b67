package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	salestore "github.com/xraph/tokensale/store"
)

// compile-time interface check
var _ salestore.Store = (*Store)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements store.Store using PostgreSQL via Grove ORM. Commit
// methods run in one transaction.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// querier is satisfied by both the database and a transaction.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
}

var (
	_ querier = (*pgdriver.PgDB)(nil)
	_ querier = (*pgdriver.PgTx)(nil)
)

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tokensale/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: tokensale/postgres: %w", tokensale.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *pgdriver.PgTx) error) error {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: tokensale/postgres: begin: %w", tokensale.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: tokensale/postgres: commit: %w", tokensale.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Sale Store ====================

func (s *Store) CreateSale(ctx context.Context, sl *sale.Sale) error {
	if _, err := s.pg.NewInsert(toSaleModel(sl)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return tokensale.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	m := new(saleModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", saleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tokensale.ErrSaleNotFound
		}
		return nil, err
	}
	return fromSaleModel(m)
}

func (s *Store) ListSales(ctx context.Context) ([]*sale.Sale, error) {
	var models []saleModel
	if err := s.pg.NewSelect(&models).OrderExpr("seq ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*sale.Sale, len(models))
	for i := range models {
		sl, err := fromSaleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sl
	}
	return result, nil
}

func (s *Store) UpdateSale(ctx context.Context, sl *sale.Sale) error {
	return updateSale(ctx, s.pg, sl)
}

func updateSale(ctx context.Context, q querier, sl *sale.Sale) error {
	res, err := q.NewUpdate(toSaleModel(sl)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tokensale.ErrSaleNotFound
	}
	return nil
}

func (s *Store) NextSeq(ctx context.Context) (uint64, error) {
	var models []saleModel
	err := s.pg.NewSelect(&models).
		OrderExpr("seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return 0, err
	}
	if len(models) == 0 {
		return 1, nil
	}
	return uint64(models[0].Seq) + 1, nil //nolint:gosec // written from a uint64
}

// ==================== Limit Store ====================

func (s *Store) GetLimit(ctx context.Context, saleID id.SaleID, addr common.Address) (*sale.Limit, error) {
	m := new(limitModel)
	err := s.pg.NewSelect(m).
		Where("sale_id = $1", saleID.String()).
		Where("address = $2", addr.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return sale.NewLimit(saleID, addr), nil
		}
		return nil, err
	}
	return fromLimitModel(m)
}

func putLimit(ctx context.Context, q querier, l *sale.Limit) error {
	m := toLimitModel(l)
	res, err := q.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	_, err = q.NewInsert(m).Exec(ctx)
	return err
}

// ==================== Purchase Store ====================

func (s *Store) CommitPurchase(ctx context.Context, sl *sale.Sale, l *sale.Limit, p *sale.Purchase) error {
	return s.inTx(ctx, func(tx *pgdriver.PgTx) error {
		if _, err := tx.NewInsert(toPurchaseModel(p)).Exec(ctx); err != nil {
			return fmt.Errorf("tokensale/postgres: insert purchase: %w", err)
		}
		if err := putLimit(ctx, tx, l); err != nil {
			return fmt.Errorf("tokensale/postgres: put limit: %w", err)
		}
		if err := updateSale(ctx, tx, sl); err != nil {
			return fmt.Errorf("tokensale/postgres: update sale: %w", err)
		}
		return nil
	})
}

func (s *Store) ListPurchases(ctx context.Context, saleID id.SaleID, opts sale.ListOpts) ([]*sale.Purchase, error) {
	opts = opts.Normalize()

	var models []purchaseModel
	q := s.pg.NewSelect(&models).Where("sale_id = $1", saleID.String())

	if opts.Buyer != (common.Address{}) {
		q = q.Where("buyer = $2", opts.Buyer.Hex())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*sale.Purchase, len(models))
	for i := range models {
		p, err := fromPurchaseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

func (s *Store) CommitWithdrawal(ctx context.Context, sl *sale.Sale, w *sale.Withdrawal) error {
	return s.inTx(ctx, func(tx *pgdriver.PgTx) error {
		if _, err := tx.NewInsert(toWithdrawalModel(w)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return tokensale.ErrAlreadyWithdrawn
			}
			return fmt.Errorf("tokensale/postgres: insert withdrawal: %w", err)
		}
		if err := updateSale(ctx, tx, sl); err != nil {
			return fmt.Errorf("tokensale/postgres: update sale: %w", err)
		}
		return nil
	})
}

func (s *Store) ListWithdrawals(ctx context.Context, saleID id.SaleID) ([]*sale.Withdrawal, error) {
	var models []withdrawalModel
	err := s.pg.NewSelect(&models).
		Where("sale_id = $1", saleID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*sale.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a unique or primary key constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
