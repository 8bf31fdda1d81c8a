package inventory

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsledger/partsledger/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) *Repository {
	return &Repository{pool: pool, txCfg: txCfg}
}

// WithTx executes the callback inside a repeatable-read transaction, retrying
// on serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetStock reads a stock record without locking it.
func (r *Repository) GetStock(ctx context.Context, key StockKey) (StockRecord, error) {
	var rec StockRecord
	err := pgxscan.Get(ctx, r.pool, &rec, `SELECT product_id, part_no, current_quantity, purchase_price, sale_base_price, updated_at
FROM stock_records WHERE product_id=$1 AND part_no=$2`, key.ProductID, key.PartNo)
	if pgxscan.NotFound(err) {
		return StockRecord{}, resolveMissing(ctx, r.pool, key)
	}
	return rec, err
}

// ListStock lists stock records ordered by product and part number.
func (r *Repository) ListStock(ctx context.Context, productID int64) ([]StockRecord, error) {
	q := psql.Select("product_id", "part_no", "current_quantity", "purchase_price", "sale_base_price", "updated_at").
		From("stock_records").
		OrderBy("product_id", "part_no").
		Limit(500)
	if productID > 0 {
		q = q.Where(sq.Eq{"product_id": productID})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	records := []StockRecord{}
	if err := pgxscan.Select(ctx, r.pool, &records, sqlStr, args...); err != nil {
		return nil, err
	}
	return records, nil
}

// GetStockCard lists the movements of one stock key, oldest first.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	q := psql.Select("id", "product_id", "part_no", "movement_type", "qty_in", "qty_out", "balance_qty",
		"ref_module", "ref_id", "note", "posted_at").
		From("stock_movements").
		Where(sq.Eq{"product_id": filter.ProductID, "part_no": filter.PartNo}).
		OrderBy("posted_at ASC", "id ASC").
		Limit(uint64(filter.Limit))
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"posted_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.LtOrEq{"posted_at": filter.To})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	cards := []Movement{}
	if err := pgxscan.Select(ctx, r.pool, &cards, sqlStr, args...); err != nil {
		return nil, err
	}
	return cards, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// resolveMissing explains why no stock row matched key.
func resolveMissing(ctx context.Context, q querier, key StockKey) error {
	var partNo string
	err := q.QueryRow(ctx, `SELECT part_no FROM products WHERE id=$1`, key.ProductID).Scan(&partNo)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrProductNotFound
	case err != nil:
		return err
	case partNo != key.PartNo:
		return ErrPartNoMismatch
	}
	return ErrStockNotFound
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the stock operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, key StockKey) (StockRecord, error) {
	var rec StockRecord
	err := r.tx.QueryRow(ctx, `SELECT product_id, part_no, current_quantity, purchase_price, sale_base_price, updated_at
FROM stock_records WHERE product_id=$1 AND part_no=$2 FOR UPDATE`, key.ProductID, key.PartNo).
		Scan(&rec.ProductID, &rec.PartNo, &rec.CurrentQuantity, &rec.PurchasePrice, &rec.SaleBasePrice, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockRecord{}, resolveMissing(ctx, r.tx, key)
	}
	if err != nil {
		return StockRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, rec StockRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_records (product_id, part_no, current_quantity, purchase_price, sale_base_price, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (product_id, part_no) DO UPDATE SET current_quantity=EXCLUDED.current_quantity,
purchase_price=EXCLUDED.purchase_price, sale_base_price=EXCLUDED.sale_base_price, updated_at=EXCLUDED.updated_at`,
		rec.ProductID, rec.PartNo, rec.CurrentQuantity, rec.PurchasePrice, rec.SaleBasePrice, rec.UpdatedAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, part_no, movement_type, qty_in, qty_out, balance_qty, ref_module, ref_id, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		mv.ProductID, mv.PartNo, string(mv.Type), mv.QtyIn, mv.QtyOut, mv.BalanceQty, mv.RefModule, mv.RefID, mv.Note, mv.PostedAt).Scan(&id)
	return id, err
}
