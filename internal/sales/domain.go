package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/shared"
)

// Sale is a committed sale with its derived totals.
type Sale struct {
	ID                 int64              `json:"id" db:"id"`
	InvoiceNo          string             `json:"invoice_no" db:"invoice_no"`
	CustomerID         int64              `json:"customer_id" db:"customer_id"`
	SaleDate           time.Time          `json:"sale_date" db:"sale_date"`
	DiscountAmount     decimal.Decimal    `json:"discount_amount" db:"discount_amount"`
	TotalAmount        decimal.Decimal    `json:"total_amount" db:"total_amount"`
	TotalPayableAmount decimal.Decimal    `json:"total_payable_amount" db:"total_payable_amount"`
	PaidTotal          decimal.Decimal    `json:"paid_total" db:"paid_total"`
	DueAmount          decimal.Decimal    `json:"due_amount" db:"-"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	Lines              []SaleLine         `json:"lines,omitempty" db:"-"`
	Payments           []payments.Payment `json:"payments,omitempty" db:"-"`
}

// Header returns the view of the sale the payment ledger works on.
func (s Sale) Header() payments.SaleHeader {
	return payments.SaleHeader{
		ID:                 s.ID,
		CustomerID:         s.CustomerID,
		InvoiceNo:          s.InvoiceNo,
		TotalPayableAmount: s.TotalPayableAmount,
	}
}

// SaleLine is an immutable sale line. ReturnedQuantity is derived from the
// line's returns when read back.
type SaleLine struct {
	ID                 int64           `json:"id" db:"id"`
	SaleID             int64           `json:"sale_id" db:"sale_id"`
	LineNo             int             `json:"line_no" db:"line_no"`
	ProductID          int64           `json:"product_id" db:"product_id"`
	PartNo             string          `json:"part_no" db:"part_no"`
	SoldQuantity       int64           `json:"sold_quantity" db:"sold_quantity"`
	UnitBasePrice      decimal.Decimal `json:"unit_base_price" db:"unit_base_price"`
	MarkupPercentage   decimal.Decimal `json:"markup_percentage" db:"markup_percentage"`
	EffectiveUnitPrice decimal.Decimal `json:"effective_unit_price" db:"effective_unit_price"`
	LineTotal          decimal.Decimal `json:"line_total" db:"line_total"`
	ReturnedQuantity   int64           `json:"returned_quantity" db:"returned_quantity"`
}

// Return is a partial or full reversal of a sale line's quantity.
type Return struct {
	ID               int64     `json:"id" db:"id"`
	SaleLineID       int64     `json:"sale_line_id" db:"sale_line_id"`
	ReturnedQuantity int64     `json:"returned_quantity" db:"returned_quantity"`
	ReturnDate       time.Time `json:"return_date" db:"return_date"`
	Remarks          string    `json:"remarks" db:"remarks"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// LineInput describes one requested sale line. UnitBasePrice defaults to the
// stock record's sale base price.
type LineInput struct {
	ProductID        int64
	PartNo           string
	Quantity         int64
	UnitBasePrice    *decimal.Decimal
	MarkupPercentage decimal.Decimal
}

// CreateSaleInput is the request to commit a sale.
type CreateSaleInput struct {
	CustomerID     int64
	SaleDate       time.Time
	Lines          []LineInput
	DiscountAmount decimal.Decimal
	Payments       []payments.Input
	IdempotencyKey string
}

// CreateReturnInput is the request to return part of a sale line.
type CreateReturnInput struct {
	SaleLineID       int64
	ReturnedQuantity int64
	ReturnDate       time.Time
	Remarks          string
	IdempotencyKey   string
}

// ReturnResult carries the persisted return and the line's return position
// after it.
type ReturnResult struct {
	Return              Return `json:"return"`
	AlreadyReturned     int64  `json:"already_returned"`
	RemainingReturnable int64  `json:"remaining_returnable"`
}

// ListFilter filters sale listings.
type ListFilter struct {
	CustomerID int64
	shared.Page
}

// FormatInvoiceNo renders an invoice number from the sale date and a sequence value.
func FormatInvoiceNo(saleDate time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", saleDate.Format("20060102"), seq)
}

var (
	// ErrEmptyLineItems rejects a sale without lines.
	ErrEmptyLineItems = shared.Classify(shared.ErrValidation, "sales: at least one line item required")
	// ErrInvalidLineQuantity rejects a line with a non-positive quantity.
	ErrInvalidLineQuantity = shared.Classify(shared.ErrValidation, "sales: line quantity must be positive")
	// ErrInvalidDiscount rejects negative discounts or discounts above the sale total.
	ErrInvalidDiscount = shared.Classify(shared.ErrValidation, "sales: discount must be between 0 and the sale total")
	// ErrInvalidCustomer indicates the customer does not exist.
	ErrInvalidCustomer = shared.Classify(shared.ErrIntegrity, "sales: invalid customer")
	// ErrSaleNotFound indicates sale not found.
	ErrSaleNotFound = shared.Classify(shared.ErrNotFound, "sales: sale not found")
	// ErrLineNotFound indicates the sale line targeted by a return does not exist.
	ErrLineNotFound = shared.Classify(shared.ErrIntegrity, "sales: sale line not found")
	// ErrInvalidQuantity rejects a non-positive return quantity.
	ErrInvalidQuantity = shared.Classify(shared.ErrValidation, "sales: returned quantity must be positive")
	// ErrReturnExceedsSold is matched by every ReturnExceedsSoldError.
	ErrReturnExceedsSold = shared.Classify(shared.ErrBusinessRule, "sales: return exceeds sold quantity")
)

// ReturnExceedsSoldError reports the line position that rejected a return.
type ReturnExceedsSoldError struct {
	SaleLineID      int64
	Sold            int64
	AlreadyReturned int64
	Requested       int64
}

func (e *ReturnExceedsSoldError) Error() string {
	return fmt.Sprintf("sales: return of %d on line %d exceeds sold quantity %d (already returned %d)",
		e.Requested, e.SaleLineID, e.Sold, e.AlreadyReturned)
}

// Unwrap lets errors.Is match ErrReturnExceedsSold.
func (e *ReturnExceedsSoldError) Unwrap() error {
	return ErrReturnExceedsSold
}
