package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/shared"
)

// Mode is a configured payment channel.
type Mode string

// Built-in payment modes.
const (
	ModeCash   Mode = "CASH"
	ModeBank   Mode = "BANK"
	ModeCheque Mode = "CHEQUE"
	ModeMobile Mode = "MOBILE"
)

// DefaultModes lists the modes accepted when none are configured.
func DefaultModes() []Mode {
	return []Mode{ModeCash, ModeBank, ModeCheque, ModeMobile}
}

// ParseModes turns configured names into modes. Empty input yields DefaultModes.
func ParseModes(names []string) []Mode {
	var modes []Mode
	for _, n := range names {
		if n = strings.ToUpper(strings.TrimSpace(n)); n != "" {
			modes = append(modes, Mode(n))
		}
	}
	if len(modes) == 0 {
		return DefaultModes()
	}
	return modes
}

// Payment is one persisted payment against a sale.
type Payment struct {
	ID         int64           `json:"id" db:"id"`
	SaleID     int64           `json:"sale_id" db:"sale_id"`
	Mode       Mode            `json:"mode" db:"mode"`
	BankName   string          `json:"bank_name,omitempty" db:"bank_name"`
	AccountNo  string          `json:"account_no,omitempty" db:"account_no"`
	ChequeNo   string          `json:"cheque_no,omitempty" db:"cheque_no"`
	PaidAmount decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Input describes a payment to append.
type Input struct {
	Mode           Mode
	BankName       string
	AccountNo      string
	ChequeNo       string
	PaidAmount     decimal.Decimal
	IdempotencyKey string
}

// SaleHeader is the part of a sale the payment ledger reads.
type SaleHeader struct {
	ID                 int64           `db:"id"`
	CustomerID         int64           `db:"customer_id"`
	InvoiceNo          string          `db:"invoice_no"`
	TotalPayableAmount decimal.Decimal `db:"total_payable_amount"`
}

// Totals are the derived money figures of one sale.
type Totals struct {
	TotalPayable decimal.Decimal `json:"total_payable_amount"`
	PaidTotal    decimal.Decimal `json:"paid_total"`
	DueAmount    decimal.Decimal `json:"due_amount"`
}

// Result is returned by AddPayment.
type Result struct {
	Payment Payment `json:"payment"`
	Totals
}

var (
	// ErrInvalidAmount rejects non-positive amounts or amounts finer than a cent.
	ErrInvalidAmount = shared.Classify(shared.ErrValidation, "payments: paid amount must be positive with at most 2 decimals")
	// ErrInvalidMode rejects modes that are not configured.
	ErrInvalidMode = shared.Classify(shared.ErrValidation, "payments: unsupported payment mode")
	// ErrMissingModeAttribute rejects a BANK payment without bank details or a CHEQUE without its number.
	ErrMissingModeAttribute = shared.Classify(shared.ErrValidation, "payments: required mode attribute missing")
	// ErrUnexpectedModeAttribute rejects attributes belonging to another mode.
	ErrUnexpectedModeAttribute = shared.Classify(shared.ErrValidation, "payments: attribute not allowed for mode")
	// ErrOverpayment rejects payments beyond the payable amount.
	ErrOverpayment = shared.Classify(shared.ErrBusinessRule, "payments: paid total would exceed payable amount")
	// ErrSaleNotFound indicates the target sale does not exist.
	ErrSaleNotFound = shared.Classify(shared.ErrNotFound, "payments: sale not found")
)
