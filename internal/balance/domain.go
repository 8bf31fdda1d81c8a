// Package balance derives customer running balances from committed sales and
// payments.
package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/pricing"
)

// SaleDue is the money position of one sale.
type SaleDue struct {
	SaleID             int64           `json:"sale_id" db:"sale_id"`
	InvoiceNo          string          `json:"invoice_no" db:"invoice_no"`
	SaleDate           time.Time       `json:"sale_date" db:"sale_date"`
	TotalPayableAmount decimal.Decimal `json:"total_payable_amount" db:"total_payable_amount"`
	PaidTotal          decimal.Decimal `json:"paid_total" db:"paid_total"`
	DueAmount          decimal.Decimal `json:"due_amount" db:"-"`
}

// Balance is a customer's carried-forward due plus the due of every sale.
type Balance struct {
	CustomerID     int64           `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	PreviousDue    decimal.Decimal `json:"previous_due_amount"`
	SalesDue       decimal.Decimal `json:"sales_due"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Sales          []SaleDue       `json:"sales"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// Compute folds a customer's sales into a Balance.
func Compute(c customers.Customer, sales []SaleDue, now time.Time) Balance {
	due := decimal.Zero
	out := make([]SaleDue, len(sales))
	for i, s := range sales {
		s.DueAmount = pricing.Round(s.TotalPayableAmount.Sub(s.PaidTotal))
		due = due.Add(s.DueAmount)
		out[i] = s
	}
	return Balance{
		CustomerID:     c.ID,
		CustomerName:   c.Name,
		PreviousDue:    c.PreviousDueAmount,
		SalesDue:       pricing.Round(due),
		RunningBalance: pricing.Round(c.PreviousDueAmount.Add(due)),
		Sales:          out,
		ComputedAt:     now,
	}
}
