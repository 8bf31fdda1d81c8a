// Package customers reads the customer master data the ledger depends on.
// Customers are maintained elsewhere; this package never writes them.
package customers

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/shared"
)

// ErrNotFound indicates the customer id is unknown.
var ErrNotFound = shared.Classify(shared.ErrNotFound, "customers: customer not found")

// Customer is the read model of a customer.
type Customer struct {
	ID                int64           `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	PreviousDueAmount decimal.Decimal `json:"previous_due_amount" db:"previous_due_amount"`
}

// Reader resolves customers by id.
type Reader interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
}

// Repository reads customers from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCustomer returns the customer or ErrNotFound.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := pgxscan.Get(ctx, r.pool, &c, `SELECT id, name, previous_due_amount FROM customers WHERE id=$1`, id)
	if pgxscan.NotFound(err) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

// GetForShare reads the customer inside tx and holds a key-share lock on the
// row, so the customer cannot be deleted before tx ends.
func GetForShare(ctx context.Context, tx pgx.Tx, id int64) (Customer, error) {
	var c Customer
	err := pgxscan.Get(ctx, tx, &c, `SELECT id, name, previous_due_amount FROM customers WHERE id=$1 FOR KEY SHARE`, id)
	if pgxscan.NotFound(err) {
		return Customer{}, ErrNotFound
	}
	return c, err
}
