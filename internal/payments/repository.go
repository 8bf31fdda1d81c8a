package payments

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/platform/db"
)

// Repository persists payments in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) *Repository {
	return &Repository{pool: pool, txCfg: txCfg}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payments repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetSaleHeader reads a sale header without locking it.
func (r *Repository) GetSaleHeader(ctx context.Context, saleID int64) (SaleHeader, error) {
	var h SaleHeader
	err := pgxscan.Get(ctx, r.pool, &h, `SELECT id, customer_id, invoice_no, total_payable_amount FROM sales WHERE id=$1`, saleID)
	if pgxscan.NotFound(err) {
		return SaleHeader{}, ErrSaleNotFound
	}
	return h, err
}

// ListPayments lists the payments of a sale in insertion order.
func (r *Repository) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	out := []Payment{}
	err := pgxscan.Select(ctx, r.pool, &out, `SELECT id, sale_id, mode, bank_name, account_no, cheque_no, paid_amount, created_at
FROM sale_payments WHERE sale_id=$1 ORDER BY id`, saleID)
	return out, err
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the payment operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetSaleHeaderForUpdate(ctx context.Context, saleID int64) (SaleHeader, error) {
	var h SaleHeader
	err := r.tx.QueryRow(ctx, `SELECT id, customer_id, invoice_no, total_payable_amount FROM sales WHERE id=$1 FOR UPDATE`, saleID).
		Scan(&h.ID, &h.CustomerID, &h.InvoiceNo, &h.TotalPayableAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return SaleHeader{}, ErrSaleNotFound
	}
	return h, err
}

func (r *txRepository) SumPayments(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(paid_amount), 0) FROM sale_payments WHERE sale_id=$1`, saleID).Scan(&sum)
	return sum, err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_payments (sale_id, mode, bank_name, account_no, cheque_no, paid_amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		p.SaleID, string(p.Mode), p.BankName, p.AccountNo, p.ChequeNo, p.PaidAmount, p.CreatedAt).Scan(&id)
	return id, err
}
