package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/partsledger/partsledger/internal/balance"
	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/pricing"
	"github.com/partsledger/partsledger/internal/sales"
)

// InventoryRepo implements inventory.RepositoryPort.
type InventoryRepo struct{ s *Store }

// SalesRepo implements sales.RepositoryPort.
type SalesRepo struct{ s *Store }

// PaymentsRepo implements payments.RepositoryPort.
type PaymentsRepo struct{ s *Store }

// BalanceSource implements balance.Source.
type BalanceSource struct{ s *Store }

var (
	_ inventory.RepositoryPort = InventoryRepo{}
	_ sales.RepositoryPort     = SalesRepo{}
	_ payments.RepositoryPort  = PaymentsRepo{}
	_ balance.Source           = BalanceSource{}
	_ customers.Reader         = (*Store)(nil)
)

// Inventory returns the inventory repository view.
func (s *Store) Inventory() InventoryRepo { return InventoryRepo{s} }

// Sales returns the sales repository view.
func (s *Store) Sales() SalesRepo { return SalesRepo{s} }

// Payments returns the payments repository view.
func (s *Store) Payments() PaymentsRepo { return PaymentsRepo{s} }

// Balances returns the balance source view.
func (s *Store) Balances() BalanceSource { return BalanceSource{s} }

func (r InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *txView) error { return fn(ctx, tx) })
}

func (r InventoryRepo) GetStock(_ context.Context, key inventory.StockKey) (inventory.StockRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.state.resolveStock(key)
}

func (r InventoryRepo) ListStock(_ context.Context, productID int64) ([]inventory.StockRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []inventory.StockRecord{}
	for _, rec := range r.s.state.stock {
		if productID == 0 || rec.ProductID == productID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b inventory.StockRecord) int {
		return cmp.Or(cmp.Compare(a.ProductID, b.ProductID), cmp.Compare(a.PartNo, b.PartNo))
	})
	return out, nil
}

func (r InventoryRepo) GetStockCard(_ context.Context, filter inventory.StockCardFilter) ([]inventory.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []inventory.Movement{}
	for _, mv := range r.s.state.movements {
		if mv.ProductID != filter.ProductID || mv.PartNo != filter.PartNo {
			continue
		}
		if (!filter.From.IsZero() && mv.PostedAt.Before(filter.From)) || (!filter.To.IsZero() && mv.PostedAt.After(filter.To)) {
			continue
		}
		out = append(out, mv)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r SalesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *txView) error { return fn(ctx, tx) })
}

func (r SalesRepo) GetSale(_ context.Context, id int64) (sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.state
	sale, ok := st.sales[id]
	if !ok {
		return sales.Sale{}, sales.ErrSaleNotFound
	}
	sale.PaidTotal = pricing.Round(st.paidTotal(id))
	sale.Lines = []sales.SaleLine{}
	for _, line := range st.lines {
		if line.SaleID == id {
			line.ReturnedQuantity = st.returnedQty(line.ID)
			sale.Lines = append(sale.Lines, line)
		}
	}
	slices.SortFunc(sale.Lines, func(a, b sales.SaleLine) int { return cmp.Compare(a.LineNo, b.LineNo) })
	sale.Payments = st.salePayments(id)
	return sale, nil
}

func (s *state) salePayments(saleID int64) []payments.Payment {
	out := []payments.Payment{}
	for _, p := range s.payments {
		if p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out
}

func (r SalesRepo) ListSales(_ context.Context, filter sales.ListFilter) ([]sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.state
	all := []sales.Sale{}
	for _, sale := range st.sales {
		if filter.CustomerID == 0 || sale.CustomerID == filter.CustomerID {
			sale.PaidTotal = pricing.Round(st.paidTotal(sale.ID))
			all = append(all, sale)
		}
	}
	slices.SortFunc(all, func(a, b sales.Sale) int {
		return cmp.Or(b.SaleDate.Compare(a.SaleDate), cmp.Compare(b.ID, a.ID))
	})
	if filter.Offset >= len(all) {
		return []sales.Sale{}, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r SalesRepo) GetSaleLine(_ context.Context, lineID int64) (sales.SaleLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	line, ok := r.s.state.lines[lineID]
	if !ok {
		return sales.SaleLine{}, sales.ErrLineNotFound
	}
	line.ReturnedQuantity = r.s.state.returnedQty(lineID)
	return line, nil
}

func (r SalesRepo) ListReturns(_ context.Context, lineID int64) ([]sales.Return, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []sales.Return{}
	for _, ret := range r.s.state.returns {
		if ret.SaleLineID == lineID {
			out = append(out, ret)
		}
	}
	return out, nil
}

func (r PaymentsRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.s.withTx(ctx, func(ctx context.Context, tx *txView) error { return fn(ctx, tx) })
}

func (r PaymentsRepo) GetSaleHeader(_ context.Context, saleID int64) (payments.SaleHeader, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.state.sales[saleID]
	if !ok {
		return payments.SaleHeader{}, payments.ErrSaleNotFound
	}
	return sale.Header(), nil
}

func (r PaymentsRepo) ListPayments(_ context.Context, saleID int64) ([]payments.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.state.salePayments(saleID), nil
}

func (b BalanceSource) GetCustomer(ctx context.Context, id int64) (customers.Customer, error) {
	return b.s.GetCustomer(ctx, id)
}

func (b BalanceSource) ListSaleDues(_ context.Context, customerID int64) ([]balance.SaleDue, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	st := &b.s.state
	out := []balance.SaleDue{}
	for _, sale := range st.sales {
		if sale.CustomerID != customerID {
			continue
		}
		out = append(out, balance.SaleDue{
			SaleID:             sale.ID,
			InvoiceNo:          sale.InvoiceNo,
			SaleDate:           sale.SaleDate,
			TotalPayableAmount: sale.TotalPayableAmount,
			PaidTotal:          st.paidTotal(sale.ID),
		})
	}
	slices.SortFunc(out, func(a, b balance.SaleDue) int {
		return cmp.Or(a.SaleDate.Compare(b.SaleDate), cmp.Compare(a.SaleID, b.SaleID))
	})
	return out, nil
}

func (b BalanceSource) ListCustomersWithOpenDues(_ context.Context, limit int) ([]int64, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	st := &b.s.state
	open := map[int64]bool{}
	for id, c := range st.customers {
		if c.PreviousDueAmount.IsPositive() {
			open[id] = true
		}
	}
	for _, sale := range st.sales {
		if sale.TotalPayableAmount.GreaterThan(st.paidTotal(sale.ID)) {
			open[sale.CustomerID] = true
		}
	}
	ids := slices.Sorted(maps.Keys(open))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
