package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/shared"
)

// MovementType enumerates stock card movements.
type MovementType string

const (
	// MovementSale debits stock for a sale line.
	MovementSale MovementType = "SALE"
	// MovementReturn credits stock back from a sale line return.
	MovementReturn MovementType = "RETURN"
	// MovementReceipt credits stock from a purchase receipt.
	MovementReceipt MovementType = "RECEIPT"
)

// StockKey identifies a stock record. The part number must equal the
// product's own part number.
type StockKey struct {
	ProductID int64  `json:"product_id"`
	PartNo    string `json:"part_no"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%d/%s", k.ProductID, k.PartNo)
}

// Validate checks the key is complete.
func (k StockKey) Validate() error {
	if k.ProductID <= 0 || k.PartNo == "" {
		return fmt.Errorf("stock key %s: %w", k, ErrInvalidKey)
	}
	return nil
}

// Product is the read-only master record a stock row belongs to.
type Product struct {
	ID      int64           `json:"id" db:"id"`
	Name    string          `json:"name" db:"name"`
	PartNo  string          `json:"part_no" db:"part_no"`
	Company string          `json:"company" db:"company"`
	MRP     decimal.Decimal `json:"mrp" db:"mrp"`
}

// StockRecord is the on-hand quantity and prices of one stock key.
type StockRecord struct {
	ProductID       int64           `json:"product_id" db:"product_id"`
	PartNo          string          `json:"part_no" db:"part_no"`
	CurrentQuantity int64           `json:"current_quantity" db:"current_quantity"`
	PurchasePrice   decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	SaleBasePrice   decimal.Decimal `json:"sale_base_price" db:"sale_base_price"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Key returns the record's stock key.
func (r StockRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, PartNo: r.PartNo}
}

// Movement is one stock card entry. BalanceQty is the quantity on hand after
// the movement was applied.
type Movement struct {
	ID         int64        `json:"id" db:"id"`
	ProductID  int64        `json:"product_id" db:"product_id"`
	PartNo     string       `json:"part_no" db:"part_no"`
	Type       MovementType `json:"type" db:"movement_type"`
	QtyIn      int64        `json:"qty_in" db:"qty_in"`
	QtyOut     int64        `json:"qty_out" db:"qty_out"`
	BalanceQty int64        `json:"balance_qty" db:"balance_qty"`
	RefModule  string       `json:"ref_module,omitempty" db:"ref_module"`
	RefID      string       `json:"ref_id,omitempty" db:"ref_id"`
	Note       string       `json:"note,omitempty" db:"note"`
	PostedAt   time.Time    `json:"posted_at" db:"posted_at"`
}

// Reference ties a movement to the document that caused it.
type Reference struct {
	Module string
	ID     string
	Note   string
}

// ReceiptInput describes a purchase receipt.
type ReceiptInput struct {
	StockKey
	Qty            int64
	PurchasePrice  decimal.Decimal
	SaleBasePrice  *decimal.Decimal
	Note           string
	IdempotencyKey string
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	StockKey
	From  time.Time
	To    time.Time
	Limit int
}

var (
	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = shared.Classify(shared.ErrBusinessRule, "inventory: insufficient stock")
	// ErrStockNotFound indicates no stock record exists for a valid product and part number.
	ErrStockNotFound = shared.Classify(shared.ErrNotFound, "inventory: stock record not found")
	// ErrProductNotFound indicates the product id is unknown.
	ErrProductNotFound = shared.Classify(shared.ErrNotFound, "inventory: product not found")
	// ErrPartNoMismatch indicates the part number differs from the product's part number.
	ErrPartNoMismatch = shared.Classify(shared.ErrIntegrity, "inventory: part number does not match product")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = shared.Classify(shared.ErrValidation, "inventory: quantity must be positive")
	// ErrInvalidKey indicates a missing product id or part number.
	ErrInvalidKey = shared.Classify(shared.ErrValidation, "inventory: product id and part number required")
	// ErrInvalidPrice indicates a negative purchase or sale price.
	ErrInvalidPrice = shared.Classify(shared.ErrValidation, "inventory: prices must be >= 0 with at most two decimals")
)

// InsufficientStockError reports the offending stock key and quantities.
type InsufficientStockError struct {
	ProductID int64
	PartNo    string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d part %s: requested %d, available %d",
		e.ProductID, e.PartNo, e.Requested, e.Available)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
