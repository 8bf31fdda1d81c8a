package sales

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const lineColumns = `l.id, l.sale_id, l.line_no, l.product_id, l.part_no, l.sold_quantity, l.unit_base_price,
l.markup_percentage, l.effective_unit_price, l.line_total,
COALESCE((SELECT SUM(r.returned_quantity) FROM sale_returns r WHERE r.sale_line_id = l.id), 0) AS returned_quantity`

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) *Repository {
	return &Repository{pool: pool, txCfg: txCfg}
}

// WithTx wraps callback in repeatable-read transaction, retrying the whole
// callback on serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithRetryTx(ctx, r.pool, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			stockTx:   inventory.NewTxRepository(tx),
			paymentTx: payments.NewTxRepository(tx),
			tx:        tx,
		})
	})
}

// GetSale loads a sale with lines and payments.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var sale Sale
	err := pgxscan.Get(ctx, r.pool, &sale, `SELECT s.id, s.invoice_no, s.customer_id, s.sale_date, s.discount_amount,
s.total_amount, s.total_payable_amount, s.created_at,
COALESCE((SELECT SUM(p.paid_amount) FROM sale_payments p WHERE p.sale_id = s.id), 0) AS paid_total
FROM sales s WHERE s.id=$1`, id)
	if pgxscan.NotFound(err) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	if err := pgxscan.Select(ctx, r.pool, &sale.Lines, `SELECT `+lineColumns+`
FROM sale_lines l WHERE l.sale_id=$1 ORDER BY l.line_no`, id); err != nil {
		return Sale{}, err
	}
	if err := pgxscan.Select(ctx, r.pool, &sale.Payments, `SELECT id, sale_id, mode, bank_name, account_no, cheque_no, paid_amount, created_at
FROM sale_payments WHERE sale_id=$1 ORDER BY id`, id); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// ListSales lists sale headers, newest first.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	q := psql.Select("s.id", "s.invoice_no", "s.customer_id", "s.sale_date", "s.discount_amount",
		"s.total_amount", "s.total_payable_amount", "s.created_at",
		"COALESCE((SELECT SUM(p.paid_amount) FROM sale_payments p WHERE p.sale_id = s.id), 0) AS paid_total").
		From("sales s").
		OrderBy("s.sale_date DESC", "s.id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if filter.CustomerID > 0 {
		q = q.Where(sq.Eq{"s.customer_id": filter.CustomerID})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	list := []Sale{}
	if err := pgxscan.Select(ctx, r.pool, &list, sqlStr, args...); err != nil {
		return nil, err
	}
	return list, nil
}

// GetSaleLine loads one sale line with its returned quantity.
func (r *Repository) GetSaleLine(ctx context.Context, lineID int64) (SaleLine, error) {
	var line SaleLine
	err := pgxscan.Get(ctx, r.pool, &line, `SELECT `+lineColumns+` FROM sale_lines l WHERE l.id=$1`, lineID)
	if pgxscan.NotFound(err) {
		return SaleLine{}, ErrLineNotFound
	}
	return line, err
}

// ListReturns lists the returns of a sale line in insertion order.
func (r *Repository) ListReturns(ctx context.Context, lineID int64) ([]Return, error) {
	list := []Return{}
	err := pgxscan.Select(ctx, r.pool, &list, `SELECT id, sale_line_id, returned_quantity, return_date, remarks, created_at
FROM sale_returns WHERE sale_line_id=$1 ORDER BY id`, lineID)
	return list, err
}

type stockTx interface{ inventory.TxRepository }

type paymentTx interface{ payments.TxRepository }

type txRepository struct {
	stockTx
	paymentTx
	tx pgx.Tx
}

func (t *txRepository) GetCustomerForShare(ctx context.Context, id int64) (customers.Customer, error) {
	return customers.GetForShare(ctx, t.tx, id)
}

func (t *txRepository) NextInvoiceSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `SELECT nextval('sale_invoice_seq')`).Scan(&seq)
	return seq, err
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (invoice_no, customer_id, sale_date, discount_amount, total_amount, total_payable_amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		sale.InvoiceNo, sale.CustomerID, sale.SaleDate, sale.DiscountAmount, sale.TotalAmount, sale.TotalPayableAmount, sale.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) InsertSaleLine(ctx context.Context, line SaleLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, line_no, product_id, part_no, sold_quantity, unit_base_price, markup_percentage, effective_unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		line.SaleID, line.LineNo, line.ProductID, line.PartNo, line.SoldQuantity, line.UnitBasePrice,
		line.MarkupPercentage, line.EffectiveUnitPrice, line.LineTotal).Scan(&id)
	return id, err
}

func (t *txRepository) GetSaleLineForUpdate(ctx context.Context, lineID int64) (SaleLine, error) {
	var line SaleLine
	err := t.tx.QueryRow(ctx, `SELECT id, sale_id, line_no, product_id, part_no, sold_quantity, unit_base_price,
markup_percentage, effective_unit_price, line_total
FROM sale_lines WHERE id=$1 FOR UPDATE`, lineID).
		Scan(&line.ID, &line.SaleID, &line.LineNo, &line.ProductID, &line.PartNo, &line.SoldQuantity, &line.UnitBasePrice,
			&line.MarkupPercentage, &line.EffectiveUnitPrice, &line.LineTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return SaleLine{}, ErrLineNotFound
	}
	return line, err
}

func (t *txRepository) SumReturned(ctx context.Context, lineID int64) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(returned_quantity), 0) FROM sale_returns WHERE sale_line_id=$1`, lineID).Scan(&sum)
	return sum, err
}

func (t *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_returns (sale_line_id, returned_quantity, return_date, remarks, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, ret.SaleLineID, ret.ReturnedQuantity, ret.ReturnDate, ret.Remarks, ret.CreatedAt).Scan(&id)
	return id, err
}
