package balance

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsledger/partsledger/internal/customers"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository reads balance inputs from PostgreSQL.
type Repository struct {
	*customers.Repository
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Repository: customers.NewRepository(pool), pool: pool}
}

func paidTotal() string {
	return "COALESCE((SELECT SUM(p.paid_amount) FROM sale_payments p WHERE p.sale_id = s.id), 0)"
}

// ListSaleDues lists every sale of a customer with its paid total, oldest first.
func (r *Repository) ListSaleDues(ctx context.Context, customerID int64) ([]SaleDue, error) {
	sqlStr, args, err := psql.Select("s.id AS sale_id", "s.invoice_no", "s.sale_date", "s.total_payable_amount",
		paidTotal()+" AS paid_total").
		From("sales s").
		Where(sq.Eq{"s.customer_id": customerID}).
		OrderBy("s.sale_date", "s.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	out := []SaleDue{}
	if err := pgxscan.Select(ctx, r.pool, &out, sqlStr, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCustomersWithOpenDues returns customers carrying a previous due or an
// unpaid sale.
func (r *Repository) ListCustomersWithOpenDues(ctx context.Context, limit int) ([]int64, error) {
	q := psql.Select("c.id").
		From("customers c").
		Where(sq.Or{
			sq.Gt{"c.previous_due_amount": 0},
			sq.Expr("EXISTS (SELECT 1 FROM sales s WHERE s.customer_id = c.id AND s.total_payable_amount > " + paidTotal() + ")"),
		}).
		OrderBy("c.id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := pgxscan.Select(ctx, r.pool, &ids, sqlStr, args...); err != nil {
		return nil, err
	}
	return ids, nil
}
