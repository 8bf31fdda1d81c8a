package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TxRepository exposes the transactional stock operations the ledger needs.
// GetStockForUpdate must lock the row until the surrounding transaction ends
// and report ErrStockNotFound, ErrProductNotFound or ErrPartNoMismatch when
// the key cannot be resolved.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, key StockKey) (StockRecord, error)
	UpsertStock(ctx context.Context, record StockRecord) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// Ledger applies stock movements inside a caller-owned transaction. Every
// check-then-write happens under the row lock taken by GetStockForUpdate.
type Ledger struct {
	allowNegative bool
	now           func() time.Time
}

// NewLedger builds a Ledger. With allowNegative set, debits may take the
// quantity on hand below zero.
func NewLedger(allowNegative bool) *Ledger {
	return &Ledger{allowNegative: allowNegative, now: func() time.Time { return time.Now().UTC() }}
}

// AllowsNegative reports the negative stock policy.
func (l *Ledger) AllowsNegative() bool {
	return l.allowNegative
}

// Lookup locks and returns the stock record for key.
func (l *Ledger) Lookup(ctx context.Context, tx TxRepository, key StockKey) (StockRecord, error) {
	if err := key.Validate(); err != nil {
		return StockRecord{}, err
	}
	rec, err := tx.GetStockForUpdate(ctx, key)
	if err != nil {
		return StockRecord{}, fmt.Errorf("stock %s: %w", key, err)
	}
	return rec, nil
}

// Debit removes qty from key. It fails with *InsufficientStockError when qty
// exceeds the quantity on hand and negative stock is not allowed.
func (l *Ledger) Debit(ctx context.Context, tx TxRepository, key StockKey, qty int64, ref Reference) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	rec, err := l.Lookup(ctx, tx, key)
	if err != nil {
		return Movement{}, err
	}
	if !l.allowNegative && qty > rec.CurrentQuantity {
		return Movement{}, &InsufficientStockError{
			ProductID: key.ProductID,
			PartNo:    key.PartNo,
			Requested: qty,
			Available: rec.CurrentQuantity,
		}
	}
	return l.apply(ctx, tx, rec, -qty, MovementSale, ref)
}

// Credit adds qty back to key. It only fails when the key does not resolve.
func (l *Ledger) Credit(ctx context.Context, tx TxRepository, key StockKey, qty int64, ref Reference) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	rec, err := l.Lookup(ctx, tx, key)
	if err != nil {
		return Movement{}, err
	}
	return l.apply(ctx, tx, rec, qty, MovementReturn, ref)
}

// Receive books a purchase receipt, creating the stock record on first
// receipt of a known product.
func (l *Ledger) Receive(ctx context.Context, tx TxRepository, in ReceiptInput, ref Reference) (Movement, error) {
	if err := in.Validate(); err != nil {
		return Movement{}, err
	}
	rec, err := l.Lookup(ctx, tx, in.StockKey)
	switch {
	case errors.Is(err, ErrStockNotFound):
		rec = StockRecord{ProductID: in.ProductID, PartNo: in.PartNo, SaleBasePrice: decimal.Zero}
	case err != nil:
		return Movement{}, err
	}
	rec.PurchasePrice = in.PurchasePrice
	if in.SaleBasePrice != nil {
		rec.SaleBasePrice = *in.SaleBasePrice
	}
	return l.apply(ctx, tx, rec, in.Qty, MovementReceipt, ref)
}

func (l *Ledger) apply(ctx context.Context, tx TxRepository, rec StockRecord, delta int64, kind MovementType, ref Reference) (Movement, error) {
	if (delta > 0 && rec.CurrentQuantity > math.MaxInt64-delta) ||
		(delta < 0 && rec.CurrentQuantity < math.MinInt64-delta) {
		return Movement{}, fmt.Errorf("stock %s: %w: on hand %d, change %d out of range", rec.Key(), ErrInvalidQuantity, rec.CurrentQuantity, delta)
	}
	now := l.now()
	rec.CurrentQuantity += delta
	rec.UpdatedAt = now
	if err := tx.UpsertStock(ctx, rec); err != nil {
		return Movement{}, fmt.Errorf("stock %s: update: %w", rec.Key(), err)
	}
	mv := Movement{
		ProductID:  rec.ProductID,
		PartNo:     rec.PartNo,
		Type:       kind,
		BalanceQty: rec.CurrentQuantity,
		RefModule:  ref.Module,
		RefID:      ref.ID,
		Note:       ref.Note,
		PostedAt:   now,
	}
	if delta > 0 {
		mv.QtyIn = delta
	} else {
		mv.QtyOut = -delta
	}
	id, err := tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, fmt.Errorf("stock %s: movement: %w", rec.Key(), err)
	}
	mv.ID = id
	return mv, nil
}

// Validate checks a receipt before any lock is taken.
func (in ReceiptInput) Validate() error {
	if err := in.StockKey.Validate(); err != nil {
		return err
	}
	if in.Qty <= 0 {
		return ErrInvalidQuantity
	}
	if !validPrice(in.PurchasePrice) || (in.SaleBasePrice != nil && !validPrice(*in.SaleBasePrice)) {
		return ErrInvalidPrice
	}
	return nil
}

func validPrice(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(2))
}
