package sales_test

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsledger/partsledger/internal/balance"
	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/platform/memstore"
	"github.com/partsledger/partsledger/internal/pricing"
	"github.com/partsledger/partsledger/internal/sales"
	"github.com/partsledger/partsledger/internal/shared"
)

type fixture struct {
	store    *memstore.Store
	stock    *inventory.Service
	sales    *sales.Service
	payments *payments.Service
	balances *balance.Service
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var p100 = inventory.StockKey{ProductID: 1, PartNo: "P-100"}

func newFixture(t *testing.T, qty int64) *fixture {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Apply(memstore.Seed{
		Products: []inventory.Product{
			{ID: 1, Name: "Brake pad", PartNo: "P-100", Company: "Acme"},
			{ID: 2, Name: "Chain kit", PartNo: "P-200", Company: "Acme"},
		},
		Stock: []inventory.StockRecord{
			{ProductID: 1, PartNo: "P-100", CurrentQuantity: qty, SaleBasePrice: dec("50.00")},
			{ProductID: 2, PartNo: "P-200", CurrentQuantity: 1, SaleBasePrice: dec("300.00")},
		},
		Customers: []customers.Customer{
			{ID: 7, Name: "Rahim Motors", PreviousDueAmount: dec("500.00")},
		},
	}))
	hooks := shared.Hooks{Audit: store, Idempotency: store}
	stockLedger := inventory.NewLedger(false)
	payLedger := payments.NewLedger(payments.Policy{})
	f := &fixture{
		store:    store,
		stock:    inventory.NewService(store.Inventory(), stockLedger, hooks),
		payments: payments.NewService(store.Payments(), payLedger, hooks),
		balances: balance.NewService(store.Balances(), nil, nil),
	}
	f.sales = sales.NewService(store.Sales(), stockLedger, payLedger, hooks)
	return f
}

func (f *fixture) qty(t *testing.T, key inventory.StockKey) int64 {
	t.Helper()
	q, err := f.stock.GetQuantity(context.Background(), key)
	require.NoError(t, err)
	return q
}

func saleOf(qty int64) sales.CreateSaleInput {
	base := dec("50.00")
	return sales.CreateSaleInput{
		CustomerID: 7,
		SaleDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Lines: []sales.LineInput{
			{ProductID: 1, PartNo: "P-100", Quantity: qty, UnitBasePrice: &base, MarkupPercentage: dec("10")},
		},
	}
}

func TestSaleAndReturnScenario(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	sale, err := f.sales.CreateSale(ctx, saleOf(4))
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, "55.00", sale.Lines[0].EffectiveUnitPrice.StringFixed(2))
	assert.Equal(t, "220.00", sale.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, "220.00", sale.TotalAmount.StringFixed(2))
	assert.Equal(t, "220.00", sale.TotalPayableAmount.StringFixed(2))
	assert.Equal(t, "INV-20260314-000001", sale.InvoiceNo)
	assert.Equal(t, int64(6), f.qty(t, p100))

	lineID := sale.Lines[0].ID
	res, err := f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: lineID, ReturnedQuantity: 2, Remarks: "damaged box"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.AlreadyReturned)
	assert.Equal(t, int64(2), res.RemainingReturnable)
	assert.Equal(t, int64(8), f.qty(t, p100))

	_, err = f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: lineID, ReturnedQuantity: 3})
	require.ErrorIs(t, err, sales.ErrReturnExceedsSold)
	var exceeded *sales.ReturnExceedsSoldError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(4), exceeded.Sold)
	assert.Equal(t, int64(2), exceeded.AlreadyReturned)
	assert.Equal(t, int64(8), f.qty(t, p100))

	line, returns, err := f.sales.ListReturns(ctx, lineID)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
	assert.Equal(t, int64(2), line.ReturnedQuantity)

	got, err := f.sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPayableAmount.Equal(sale.TotalPayableAmount), "returns never change totals")
}

func TestCreateSaleUsesStockBasePriceByDefault(t *testing.T) {
	f := newFixture(t, 10)
	in := saleOf(2)
	in.Lines[0].UnitBasePrice = nil
	in.Lines[0].MarkupPercentage = decimal.Zero
	in.DiscountAmount = dec("10.00")

	sale, err := f.sales.CreateSale(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "50.00", sale.Lines[0].UnitBasePrice.StringFixed(2))
	assert.Equal(t, "100.00", sale.TotalAmount.StringFixed(2))
	assert.Equal(t, "90.00", sale.TotalPayableAmount.StringFixed(2))
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	f := newFixture(t, 10)
	in := saleOf(4)
	in.Lines = append(in.Lines, sales.LineInput{ProductID: 2, PartNo: "P-200", Quantity: 2})

	_, err := f.sales.CreateSale(context.Background(), in)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2), insufficient.ProductID)
	assert.Contains(t, err.Error(), "line 2")

	assert.Equal(t, int64(10), f.qty(t, p100))
	list, err := f.sales.ListSales(context.Background(), sales.ListFilter{CustomerID: 7})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	in := saleOf(1)
	in.Lines = nil
	_, err := f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, sales.ErrEmptyLineItems)

	_, err = f.sales.CreateSale(ctx, saleOf(0))
	require.ErrorIs(t, err, sales.ErrInvalidLineQuantity)
	assert.ErrorIs(t, err, shared.ErrValidation)

	in = saleOf(1)
	in.CustomerID = 99
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, sales.ErrInvalidCustomer)
	assert.ErrorIs(t, err, shared.ErrIntegrity)

	in = saleOf(1)
	in.DiscountAmount = dec("-1")
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, sales.ErrInvalidDiscount)

	in = saleOf(1)
	in.DiscountAmount = dec("55.01")
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, sales.ErrInvalidDiscount)

	in = saleOf(1)
	in.Lines[0].PartNo = "P-999"
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, inventory.ErrPartNoMismatch)

	in = saleOf(1)
	in.Payments = []payments.Input{{Mode: payments.ModeCheque, PaidAmount: dec("100")}}
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, payments.ErrMissingModeAttribute)

	assert.Equal(t, int64(10), f.qty(t, p100))
}

func TestCreateSaleRejectsSubCentInputs(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	in := saleOf(1)
	base := dec("9.995")
	in.Lines[0].UnitBasePrice = &base
	_, err := f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, pricing.ErrSubCent)
	assert.ErrorIs(t, err, shared.ErrValidation)

	in = saleOf(1)
	in.Lines[0].MarkupPercentage = dec("12.345")
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, pricing.ErrSubCent)

	in = saleOf(1)
	in.DiscountAmount = dec("0.005")
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, pricing.ErrSubCent)

	assert.Equal(t, int64(10), f.qty(t, p100))
}

func TestStoredSaleReproducesItsTotals(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	odd := dec("9.99")
	in := sales.CreateSaleInput{
		CustomerID: 7,
		Lines: []sales.LineInput{
			{ProductID: 1, PartNo: "P-100", Quantity: 3, UnitBasePrice: &odd, MarkupPercentage: dec("12.75")},
			{ProductID: 2, PartNo: "P-200", Quantity: 1, MarkupPercentage: dec("33.33")},
		},
		DiscountAmount: dec("0.07"),
	}

	created, err := f.sales.CreateSale(ctx, in)
	require.NoError(t, err)
	sale, err := f.sales.GetSale(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, sale.Lines, 2)

	lineTotals := make([]decimal.Decimal, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		priced, err := pricing.Price(line.UnitBasePrice, line.MarkupPercentage, line.SoldQuantity)
		require.NoError(t, err)
		assert.True(t, priced.EffectiveUnitPrice.Equal(line.EffectiveUnitPrice), "line %d unit", line.LineNo)
		assert.True(t, priced.LineTotal.Equal(line.LineTotal), "line %d total", line.LineNo)
		lineTotals = append(lineTotals, line.LineTotal)
	}
	total, payable := pricing.Totals(lineTotals, sale.DiscountAmount)
	assert.True(t, total.Equal(sale.TotalAmount))
	assert.True(t, payable.Equal(sale.TotalPayableAmount))
	assert.True(t, sale.TotalAmount.Sub(sale.DiscountAmount).Equal(sale.TotalPayableAmount))
}

// customerGoneRepo simulates the customer being removed between request
// validation and the sale transaction.
type customerGoneRepo struct {
	sales.RepositoryPort
}

type customerGoneTx struct {
	sales.TxRepository
}

func (customerGoneTx) GetCustomerForShare(context.Context, int64) (customers.Customer, error) {
	return customers.Customer{}, customers.ErrNotFound
}

func (r customerGoneRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.RepositoryPort.WithTx(ctx, func(ctx context.Context, tx sales.TxRepository) error {
		return fn(ctx, customerGoneTx{tx})
	})
}

func TestCreateSaleChecksCustomerInsideTransaction(t *testing.T) {
	f := newFixture(t, 10)
	svc := sales.NewService(customerGoneRepo{f.store.Sales()}, nil, nil, shared.Hooks{})

	_, err := svc.CreateSale(context.Background(), saleOf(2))
	require.ErrorIs(t, err, sales.ErrInvalidCustomer)
	assert.ErrorIs(t, err, shared.ErrIntegrity)
	assert.Equal(t, int64(10), f.qty(t, p100))

	list, err := f.sales.ListSales(context.Background(), sales.ListFilter{CustomerID: 7})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateSaleWithInitialPayments(t *testing.T) {
	f := newFixture(t, 10)
	in := saleOf(4)
	in.Payments = []payments.Input{
		{Mode: payments.ModeCash, PaidAmount: dec("100.00")},
		{Mode: payments.ModeBank, BankName: "City Bank", AccountNo: "001-22", PaidAmount: dec("20.00")},
	}
	sale, err := f.sales.CreateSale(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, sale.Payments, 2)
	assert.Equal(t, "120.00", sale.PaidTotal.StringFixed(2))
	assert.Equal(t, "100.00", sale.DueAmount.StringFixed(2))

	in = saleOf(1)
	in.Payments = []payments.Input{{Mode: payments.ModeCash, PaidAmount: dec("60.00")}}
	_, err = f.sales.CreateSale(context.Background(), in)
	require.ErrorIs(t, err, payments.ErrOverpayment)
	assert.Equal(t, int64(6), f.qty(t, p100), "rejected payment rolls back the debit")
}

func TestConcurrentSalesOfLastUnit(t *testing.T) {
	f := newFixture(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sales.CreateSale(context.Background(), saleOf(1))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(0), f.qty(t, p100))
}

func TestRandomReturnsNeverExceedSold(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	sale, err := f.sales.CreateSale(ctx, saleOf(20))
	require.NoError(t, err)
	lineID := sale.Lines[0].ID

	rng := rand.New(rand.NewSource(42))
	var returned int64
	for i := 0; i < 60; i++ {
		qty := rng.Int63n(6) + 1
		before := f.qty(t, p100)
		_, err := f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: lineID, ReturnedQuantity: qty})
		if returned+qty > 20 {
			require.ErrorIs(t, err, sales.ErrReturnExceedsSold)
			assert.Equal(t, before, f.qty(t, p100))
			continue
		}
		require.NoError(t, err)
		returned += qty
		assert.Equal(t, before+qty, f.qty(t, p100))
	}
	line, _, err := f.sales.ListReturns(ctx, lineID)
	require.NoError(t, err)
	assert.Equal(t, returned, line.ReturnedQuantity)
	assert.LessOrEqual(t, line.ReturnedQuantity, line.SoldQuantity)
	assert.Equal(t, int64(30)+returned, f.qty(t, p100))
}

func TestCreateReturnErrors(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: 1, ReturnedQuantity: 0})
	require.ErrorIs(t, err, sales.ErrInvalidQuantity)

	_, err = f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: 12345, ReturnedQuantity: 1})
	require.ErrorIs(t, err, sales.ErrLineNotFound)
}

func TestReturnNearQuantityLimitIsRejected(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	sale, err := f.sales.CreateSale(ctx, saleOf(4))
	require.NoError(t, err)
	lineID := sale.Lines[0].ID

	_, err = f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: lineID, ReturnedQuantity: 1})
	require.NoError(t, err)

	_, err = f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: lineID, ReturnedQuantity: math.MaxInt64})
	require.ErrorIs(t, err, sales.ErrReturnExceedsSold)
	var exceeded *sales.ReturnExceedsSoldError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(1), exceeded.AlreadyReturned)

	line, returns, err := f.sales.ListReturns(ctx, lineID)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
	assert.Equal(t, int64(1), line.ReturnedQuantity)
	assert.Equal(t, int64(7), f.qty(t, p100))
}

func TestIdempotentSale(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	in := saleOf(1)
	in.IdempotencyKey = "2b7a4c1e-6a43-4c9e-9d8e-1f1f6b0c7a11"

	_, err := f.sales.CreateSale(ctx, in)
	require.NoError(t, err)
	_, err = f.sales.CreateSale(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Equal(t, int64(9), f.qty(t, p100))

	failing := saleOf(100)
	failing.IdempotencyKey = "0c2f3a55-0d2a-4d8c-8a8e-3a3e2b1c9f00"
	_, err = f.sales.CreateSale(ctx, failing)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	failing.Lines[0].Quantity = 1
	_, err = f.sales.CreateSale(ctx, failing)
	require.NoError(t, err, "a failed attempt releases its key")
}

func TestPaymentsAndRunningBalance(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	base := dec("1000.00")
	sale, err := f.sales.CreateSale(ctx, sales.CreateSaleInput{
		CustomerID: 7,
		Lines:      []sales.LineInput{{ProductID: 1, PartNo: "P-100", Quantity: 1, UnitBasePrice: &base}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", sale.TotalPayableAmount.StringFixed(2))

	_, err = f.payments.AddPayment(ctx, sale.ID, payments.Input{Mode: payments.ModeCheque, ChequeNo: "", PaidAmount: dec("100")})
	require.ErrorIs(t, err, payments.ErrMissingModeAttribute)

	res, err := f.payments.AddPayment(ctx, sale.ID, payments.Input{Mode: payments.ModeCash, PaidAmount: dec("400")})
	require.NoError(t, err)
	assert.Equal(t, "600.00", res.DueAmount.StringFixed(2))
	res, err = f.payments.AddPayment(ctx, sale.ID, payments.Input{Mode: payments.ModeCheque, ChequeNo: "CHQ-0091", PaidAmount: dec("300")})
	require.NoError(t, err)
	assert.Equal(t, "700.00", res.PaidTotal.StringFixed(2))

	list, totals, err := f.payments.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.True(t, totals.PaidTotal.Equal(res.PaidTotal))
	assert.True(t, totals.DueAmount.Equal(res.DueAmount))

	_, err = f.payments.AddPayment(ctx, sale.ID, payments.Input{Mode: payments.ModeCash, PaidAmount: dec("300.01")})
	require.ErrorIs(t, err, payments.ErrOverpayment)

	_, err = f.payments.AddPayment(ctx, 999, payments.Input{Mode: payments.ModeCash, PaidAmount: dec("1")})
	require.ErrorIs(t, err, payments.ErrSaleNotFound)

	b, err := f.balances.RunningBalance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "800.00", b.RunningBalance.StringFixed(2))

	got, err := f.sales.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", got.DueAmount.StringFixed(2))
}

func TestCommittedOperationsAreAudited(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	sale, err := f.sales.CreateSale(ctx, saleOf(2))
	require.NoError(t, err)
	_, err = f.sales.CreateReturn(ctx, sales.CreateReturnInput{SaleLineID: sale.Lines[0].ID, ReturnedQuantity: 1})
	require.NoError(t, err)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "sales:create", logs[0].Action)
	assert.Equal(t, "sales:return", logs[1].Action)
}
