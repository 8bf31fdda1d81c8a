package payments

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/pricing"
)

// TxRepository exposes the transactional payment operations.
type TxRepository interface {
	GetSaleHeaderForUpdate(ctx context.Context, saleID int64) (SaleHeader, error)
	SumPayments(ctx context.Context, saleID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
}

// Policy configures the payment ledger.
type Policy struct {
	Modes            []Mode
	AllowOverpayment bool
}

// Ledger validates and appends payments inside a caller-owned transaction.
type Ledger struct {
	policy Policy
	now    func() time.Time
}

// NewLedger builds a Ledger. A policy without modes accepts DefaultModes.
func NewLedger(policy Policy) *Ledger {
	if len(policy.Modes) == 0 {
		policy.Modes = DefaultModes()
	}
	return &Ledger{policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// Validate checks a payment input without touching storage.
func (l *Ledger) Validate(in Input) error {
	if !in.PaidAmount.IsPositive() || !in.PaidAmount.Equal(pricing.Round(in.PaidAmount)) {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, in.PaidAmount)
	}
	if !slices.Contains(l.policy.Modes, in.Mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}
	bank := strings.TrimSpace(in.BankName) != "" || strings.TrimSpace(in.AccountNo) != ""
	cheque := strings.TrimSpace(in.ChequeNo) != ""
	switch in.Mode {
	case ModeBank:
		if strings.TrimSpace(in.BankName) == "" || strings.TrimSpace(in.AccountNo) == "" {
			return fmt.Errorf("%w: BANK needs bank_name and account_no", ErrMissingModeAttribute)
		}
		if cheque {
			return fmt.Errorf("%w: cheque_no on BANK payment", ErrUnexpectedModeAttribute)
		}
	case ModeCheque:
		if !cheque {
			return fmt.Errorf("%w: CHEQUE needs cheque_no", ErrMissingModeAttribute)
		}
		if bank {
			return fmt.Errorf("%w: bank details on CHEQUE payment", ErrUnexpectedModeAttribute)
		}
	default:
		if bank || cheque {
			return fmt.Errorf("%w: %s takes no bank or cheque details", ErrUnexpectedModeAttribute, in.Mode)
		}
	}
	return nil
}

// Append validates in and records it against sale. The sale header must
// already be locked or created by the surrounding transaction.
func (l *Ledger) Append(ctx context.Context, tx TxRepository, sale SaleHeader, in Input) (Payment, Totals, error) {
	if err := l.Validate(in); err != nil {
		return Payment{}, Totals{}, err
	}
	paid, err := tx.SumPayments(ctx, sale.ID)
	if err != nil {
		return Payment{}, Totals{}, fmt.Errorf("sale %d: sum payments: %w", sale.ID, err)
	}
	newPaid := paid.Add(in.PaidAmount)
	if !l.policy.AllowOverpayment && newPaid.GreaterThan(sale.TotalPayableAmount) {
		return Payment{}, Totals{}, fmt.Errorf("%w: sale %d payable %s, paid %s, offered %s",
			ErrOverpayment, sale.ID, sale.TotalPayableAmount.StringFixed(2), paid.StringFixed(2), in.PaidAmount.StringFixed(2))
	}
	p := Payment{
		SaleID:     sale.ID,
		Mode:       in.Mode,
		BankName:   strings.TrimSpace(in.BankName),
		AccountNo:  strings.TrimSpace(in.AccountNo),
		ChequeNo:   strings.TrimSpace(in.ChequeNo),
		PaidAmount: in.PaidAmount,
		CreatedAt:  l.now(),
	}
	id, err := tx.InsertPayment(ctx, p)
	if err != nil {
		return Payment{}, Totals{}, fmt.Errorf("sale %d: insert payment: %w", sale.ID, err)
	}
	p.ID = id
	return p, totalsOf(sale.TotalPayableAmount, newPaid), nil
}

// ComputeTotals derives the totals of a sale from its persisted payments.
func ComputeTotals(payable decimal.Decimal, payments []Payment) Totals {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.PaidAmount)
	}
	return totalsOf(payable, paid)
}

func totalsOf(payable, paid decimal.Decimal) Totals {
	return Totals{
		TotalPayable: payable,
		PaidTotal:    pricing.Round(paid),
		DueAmount:    pricing.Round(payable.Sub(paid)),
	}
}
