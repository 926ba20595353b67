package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	salestore "github.com/xraph/tokensale/store"
)

// Collection name constants.
const (
	colSales       = "tokensale_sales"
	colLimits      = "tokensale_limits"
	colPurchases   = "tokensale_purchases"
	colWithdrawals = "tokensale_withdrawals"
)

// compile-time interface check
var _ salestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Commit methods
// run in one multi-document transaction, which needs a replica set or a
// sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// querier is satisfied by both the database and a transaction.
type querier interface {
	NewFind(model ...any) *mongodriver.FindQuery
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
}

var (
	_ querier = (*mongodriver.MongoDB)(nil)
	_ querier = (*mongodriver.MongoTx)(nil)
)

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all token sale collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: tokensale/mongo: %s indexes: %w", tokensale.ErrMigrationFailed, col, err)
		}
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
func (s *Store) inTx(ctx context.Context, fn func(tx *mongodriver.MongoTx) error) error {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("%w: tokensale/mongo: begin: %w", tokensale.ErrTransactionFailed, err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("%w: tokensale/mongo: unexpected transaction %T", tokensale.ErrTransactionFailed, raw)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: tokensale/mongo: commit: %w", tokensale.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Sale Store ====================

func (s *Store) CreateSale(ctx context.Context, sl *sale.Sale) error {
	if _, err := s.mdb.NewInsert(toSaleModel(sl)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tokensale.ErrAlreadyExists
		}
		return fmt.Errorf("tokensale/mongo: create sale: %w", err)
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	var m saleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": saleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tokensale.ErrSaleNotFound
		}
		return nil, fmt.Errorf("tokensale/mongo: get sale: %w", err)
	}
	return fromSaleModel(&m)
}

func (s *Store) ListSales(ctx context.Context) ([]*sale.Sale, error) {
	var models []saleModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tokensale/mongo: list sales: %w", err)
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
	return updateSale(ctx, s.mdb, sl)
}

func updateSale(ctx context.Context, q querier, sl *sale.Sale) error {
	m := toSaleModel(sl)
	res, err := q.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tokensale/mongo: update sale: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tokensale.ErrSaleNotFound
	}
	return nil
}

func (s *Store) NextSeq(ctx context.Context) (uint64, error) {
	var models []saleModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "seq", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return 0, fmt.Errorf("tokensale/mongo: next seq: %w", err)
	}
	if len(models) == 0 {
		return 1, nil
	}
	return uint64(models[0].Seq) + 1, nil //nolint:gosec // written from a uint64
}

// ==================== Limit Store ====================

func (s *Store) GetLimit(ctx context.Context, saleID id.SaleID, addr common.Address) (*sale.Limit, error) {
	var m limitModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": limitKey(saleID, addr)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return sale.NewLimit(saleID, addr), nil
		}
		return nil, fmt.Errorf("tokensale/mongo: get limit: %w", err)
	}
	return fromLimitModel(&m)
}

func putLimit(ctx context.Context, q querier, l *sale.Limit) error {
	m := toLimitModel(l)
	res, err := q.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		Exec(ctx)
	if err != nil {
		return err
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	_, err = q.NewInsert(m).Exec(ctx)
	return err
}

// ==================== Purchase Store ====================

func (s *Store) CommitPurchase(ctx context.Context, sl *sale.Sale, l *sale.Limit, p *sale.Purchase) error {
	return s.inTx(ctx, func(tx *mongodriver.MongoTx) error {
		if _, err := tx.NewInsert(toPurchaseModel(p)).Exec(ctx); err != nil {
			return fmt.Errorf("tokensale/mongo: insert purchase: %w", err)
		}
		if err := putLimit(ctx, tx, l); err != nil {
			return fmt.Errorf("tokensale/mongo: put limit: %w", err)
		}
		return updateSale(ctx, tx, sl)
	})
}

func (s *Store) ListPurchases(ctx context.Context, saleID id.SaleID, opts sale.ListOpts) ([]*sale.Purchase, error) {
	opts = opts.Normalize()

	var models []purchaseModel

	filter := bson.M{"sale_id": saleID.String()}
	if opts.Buyer != (common.Address{}) {
		filter["buyer"] = opts.Buyer.Hex()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tokensale/mongo: list purchases: %w", err)
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
	return s.inTx(ctx, func(tx *mongodriver.MongoTx) error {
		if _, err := tx.NewInsert(toWithdrawalModel(w)).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return tokensale.ErrAlreadyWithdrawn
			}
			return fmt.Errorf("tokensale/mongo: insert withdrawal: %w", err)
		}
		return updateSale(ctx, tx, sl)
	})
}

func (s *Store) ListWithdrawals(ctx context.Context, saleID id.SaleID) ([]*sale.Withdrawal, error) {
	var models []withdrawalModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"sale_id": saleID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tokensale/mongo: list withdrawals: %w", err)
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

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all token sale collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSales: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "address", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colLimits: {
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "address", Value: 1}}},
		},
		colPurchases: {
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "buyer", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"kind": string(sale.WithdrawalFunds)}),
			},
		},
	}
}
