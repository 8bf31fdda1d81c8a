package memstore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/sales"
)

// txView operates on the live state while the store mutex is held.
type txView struct {
	st *state
}

var _ sales.TxRepository = (*txView)(nil)

func (s *state) resolveStock(key inventory.StockKey) (inventory.StockRecord, error) {
	if rec, ok := s.stock[key]; ok {
		return rec, nil
	}
	p, ok := s.products[key.ProductID]
	switch {
	case !ok:
		return inventory.StockRecord{}, inventory.ErrProductNotFound
	case p.PartNo != key.PartNo:
		return inventory.StockRecord{}, inventory.ErrPartNoMismatch
	}
	return inventory.StockRecord{}, inventory.ErrStockNotFound
}

func (t *txView) GetStockForUpdate(_ context.Context, key inventory.StockKey) (inventory.StockRecord, error) {
	return t.st.resolveStock(key)
}

func (t *txView) UpsertStock(_ context.Context, rec inventory.StockRecord) error {
	t.st.stock[rec.Key()] = rec
	return nil
}

func (t *txView) InsertMovement(_ context.Context, mv inventory.Movement) (int64, error) {
	mv.ID = t.st.nextID()
	t.st.movements = append(t.st.movements, mv)
	return mv.ID, nil
}

func (t *txView) GetSaleHeaderForUpdate(_ context.Context, saleID int64) (payments.SaleHeader, error) {
	sale, ok := t.st.sales[saleID]
	if !ok {
		return payments.SaleHeader{}, payments.ErrSaleNotFound
	}
	return sale.Header(), nil
}

func (t *txView) SumPayments(_ context.Context, saleID int64) (decimal.Decimal, error) {
	return t.st.paidTotal(saleID), nil
}

func (s *state) paidTotal(saleID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.payments {
		if p.SaleID == saleID {
			sum = sum.Add(p.PaidAmount)
		}
	}
	return sum
}

func (t *txView) InsertPayment(_ context.Context, p payments.Payment) (int64, error) {
	p.ID = t.st.nextID()
	t.st.payments = append(t.st.payments, p)
	return p.ID, nil
}

func (t *txView) GetCustomerForShare(_ context.Context, id int64) (customers.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func (t *txView) NextInvoiceSeq(context.Context) (int64, error) {
	t.st.invoiceSeq++
	return t.st.invoiceSeq, nil
}

func (t *txView) InsertSale(_ context.Context, sale sales.Sale) (int64, error) {
	sale.ID = t.st.nextID()
	sale.Lines = nil
	sale.Payments = nil
	t.st.sales[sale.ID] = sale
	return sale.ID, nil
}

func (t *txView) InsertSaleLine(_ context.Context, line sales.SaleLine) (int64, error) {
	if _, ok := t.st.sales[line.SaleID]; !ok {
		return 0, sales.ErrSaleNotFound
	}
	line.ID = t.st.nextID()
	t.st.lines[line.ID] = line
	return line.ID, nil
}

func (t *txView) GetSaleLineForUpdate(_ context.Context, lineID int64) (sales.SaleLine, error) {
	line, ok := t.st.lines[lineID]
	if !ok {
		return sales.SaleLine{}, sales.ErrLineNotFound
	}
	return line, nil
}

func (t *txView) SumReturned(_ context.Context, lineID int64) (int64, error) {
	return t.st.returnedQty(lineID), nil
}

func (s *state) returnedQty(lineID int64) int64 {
	var sum int64
	for _, r := range s.returns {
		if r.SaleLineID == lineID {
			sum += r.ReturnedQuantity
		}
	}
	return sum
}

func (t *txView) InsertReturn(_ context.Context, ret sales.Return) (int64, error) {
	ret.ID = t.st.nextID()
	t.st.returns = append(t.st.returns, ret)
	return ret.ID, nil
}
