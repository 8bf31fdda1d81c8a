// Package sales commits multi-line sales against stock and accepts returns
// bounded by what each line sold.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/pricing"
	"github.com/partsledger/partsledger/internal/shared"
)

// TxRepository exposes every operation a sale or return performs inside one
// transaction. Stock and payment operations come from their own ledgers.
type TxRepository interface {
	inventory.TxRepository
	payments.TxRepository
	GetCustomerForShare(ctx context.Context, id int64) (customers.Customer, error)
	NextInvoiceSeq(ctx context.Context) (int64, error)
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLine(ctx context.Context, line SaleLine) (int64, error)
	GetSaleLineForUpdate(ctx context.Context, lineID int64) (SaleLine, error)
	SumReturned(ctx context.Context, lineID int64) (int64, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, error)
	GetSaleLine(ctx context.Context, lineID int64) (SaleLine, error)
	ListReturns(ctx context.Context, lineID int64) ([]Return, error)
}

// Service coordinates sale and return operations.
type Service struct {
	repo  RepositoryPort
	stock *inventory.Ledger
	pay   *payments.Ledger
	hooks shared.Hooks
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock *inventory.Ledger, pay *payments.Ledger, hooks shared.Hooks) *Service {
	if stock == nil {
		stock = inventory.NewLedger(false)
	}
	if pay == nil {
		pay = payments.NewLedger(payments.Policy{})
	}
	return &Service{
		repo:  repo,
		stock: stock,
		pay:   pay,
		hooks: hooks,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateSale prices every line, debits stock for each of them, persists the
// sale and appends the initial payments, all in one transaction. Any failure
// leaves stock, sales and payments untouched.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (sale Sale, err error) {
	defer func() { s.hooks.Observe("sale_create", err) }()
	if err := s.validateSale(in); err != nil {
		return Sale{}, err
	}
	release, err := s.hooks.Claim(ctx, in.IdempotencyKey, "sales")
	if err != nil {
		return Sale{}, err
	}

	saleDate := in.SaleDate
	if saleDate.IsZero() {
		saleDate = s.now()
	}
	var customer customers.Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		customer, txErr = tx.GetCustomerForShare(ctx, in.CustomerID)
		if errors.Is(txErr, customers.ErrNotFound) {
			return fmt.Errorf("%w: customer %d", ErrInvalidCustomer, in.CustomerID)
		}
		if txErr != nil {
			return fmt.Errorf("customer %d: %w", in.CustomerID, txErr)
		}
		sale, txErr = s.commitSale(ctx, tx, in, saleDate)
		return txErr
	})
	if err != nil {
		release()
		return Sale{}, err
	}

	s.hooks.Invalidate(ctx, sale.CustomerID)
	s.hooks.RecordAudit(ctx, shared.AuditLog{
		Action:   "sales:create",
		Entity:   "sale",
		EntityID: strconv.FormatInt(sale.ID, 10),
		Meta: map[string]any{
			"invoice_no":    sale.InvoiceNo,
			"customer_id":   sale.CustomerID,
			"lines":         len(sale.Lines),
			"total_payable": sale.TotalPayableAmount.StringFixed(2),
			"paid_total":    sale.PaidTotal.StringFixed(2),
		},
	})
	s.hooks.Log().Info("sale committed",
		slog.String("invoice_no", sale.InvoiceNo),
		slog.Int64("customer_id", sale.CustomerID),
		slog.String("customer", customer.Name),
		slog.Int("lines", len(sale.Lines)),
		slog.String("total_payable", sale.TotalPayableAmount.StringFixed(2)))
	return sale, nil
}

func (s *Service) validateSale(in CreateSaleInput) error {
	if in.CustomerID <= 0 {
		return fmt.Errorf("%w: customer %d", ErrInvalidCustomer, in.CustomerID)
	}
	if len(in.Lines) == 0 {
		return ErrEmptyLineItems
	}
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidLineQuantity)
		}
		if err := (inventory.StockKey{ProductID: line.ProductID, PartNo: line.PartNo}).Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.MarkupPercentage.IsNegative() || (line.UnitBasePrice != nil && line.UnitBasePrice.IsNegative()) {
			return fmt.Errorf("line %d: %w", i+1, pricing.ErrNegativeInput)
		}
		if !pricing.HasCents(line.MarkupPercentage) || (line.UnitBasePrice != nil && !pricing.HasCents(*line.UnitBasePrice)) {
			return fmt.Errorf("line %d: %w", i+1, pricing.ErrSubCent)
		}
	}
	if in.DiscountAmount.IsNegative() {
		return ErrInvalidDiscount
	}
	if !pricing.HasCents(in.DiscountAmount) {
		return fmt.Errorf("discount %s: %w", in.DiscountAmount, pricing.ErrSubCent)
	}
	for i, p := range in.Payments {
		if err := s.pay.Validate(p); err != nil {
			return fmt.Errorf("payment %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Service) commitSale(ctx context.Context, tx TxRepository, in CreateSaleInput, saleDate time.Time) (Sale, error) {
	lines := make([]SaleLine, len(in.Lines))
	lineTotals := make([]decimal.Decimal, len(in.Lines))
	for i, li := range in.Lines {
		key := inventory.StockKey{ProductID: li.ProductID, PartNo: li.PartNo}
		rec, err := s.stock.Lookup(ctx, tx, key)
		if err != nil {
			return Sale{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		base := pricing.Round(rec.SaleBasePrice)
		if li.UnitBasePrice != nil {
			base = *li.UnitBasePrice
		}
		priced, err := pricing.Price(base, li.MarkupPercentage, li.Quantity)
		if err != nil {
			return Sale{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines[i] = SaleLine{
			LineNo:             i + 1,
			ProductID:          li.ProductID,
			PartNo:             li.PartNo,
			SoldQuantity:       li.Quantity,
			UnitBasePrice:      base,
			MarkupPercentage:   li.MarkupPercentage,
			EffectiveUnitPrice: priced.EffectiveUnitPrice,
			LineTotal:          priced.LineTotal,
		}
		lineTotals[i] = priced.LineTotal
	}

	total, payable := pricing.Totals(lineTotals, in.DiscountAmount)
	if in.DiscountAmount.GreaterThan(total) {
		return Sale{}, fmt.Errorf("%w: discount %s exceeds total %s", ErrInvalidDiscount, in.DiscountAmount.StringFixed(2), total.StringFixed(2))
	}

	seq, err := tx.NextInvoiceSeq(ctx)
	if err != nil {
		return Sale{}, fmt.Errorf("invoice number: %w", err)
	}
	sale := Sale{
		InvoiceNo:          FormatInvoiceNo(saleDate, seq),
		CustomerID:         in.CustomerID,
		SaleDate:           saleDate,
		DiscountAmount:     in.DiscountAmount,
		TotalAmount:        total,
		TotalPayableAmount: payable,
		CreatedAt:          s.now(),
	}
	if sale.ID, err = tx.InsertSale(ctx, sale); err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		key := inventory.StockKey{ProductID: line.ProductID, PartNo: line.PartNo}
		ref := inventory.Reference{Module: "sales", ID: sale.InvoiceNo, Note: fmt.Sprintf("line %d", line.LineNo)}
		if _, err := s.stock.Debit(ctx, tx, key, line.SoldQuantity, ref); err != nil {
			return Sale{}, fmt.Errorf("line %d: %w", line.LineNo, err)
		}
		line.SaleID = sale.ID
		if line.ID, err = tx.InsertSaleLine(ctx, *line); err != nil {
			return Sale{}, fmt.Errorf("line %d: insert: %w", line.LineNo, err)
		}
	}
	sale.Lines = lines

	header := sale.Header()
	sale.Payments = make([]payments.Payment, 0, len(in.Payments))
	for i, p := range in.Payments {
		paid, _, err := s.pay.Append(ctx, tx, header, p)
		if err != nil {
			return Sale{}, fmt.Errorf("payment %d: %w", i+1, err)
		}
		sale.Payments = append(sale.Payments, paid)
	}
	totals := payments.ComputeTotals(sale.TotalPayableAmount, sale.Payments)
	sale.PaidTotal = totals.PaidTotal
	sale.DueAmount = totals.DueAmount
	return sale, nil
}

// CreateReturn records a return against a sale line and credits the returned
// quantity back to stock. The line stays locked while the bound is checked.
func (s *Service) CreateReturn(ctx context.Context, in CreateReturnInput) (res ReturnResult, err error) {
	defer func() { s.hooks.Observe("return_create", err) }()
	if in.ReturnedQuantity <= 0 {
		return ReturnResult{}, ErrInvalidQuantity
	}
	if in.SaleLineID <= 0 {
		return ReturnResult{}, fmt.Errorf("%w: line %d", ErrLineNotFound, in.SaleLineID)
	}
	release, err := s.hooks.Claim(ctx, in.IdempotencyKey, "sales_returns")
	if err != nil {
		return ReturnResult{}, err
	}
	returnDate := in.ReturnDate
	if returnDate.IsZero() {
		returnDate = s.now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetSaleLineForUpdate(ctx, in.SaleLineID)
		if err != nil {
			return fmt.Errorf("line %d: %w", in.SaleLineID, err)
		}
		already, err := tx.SumReturned(ctx, line.ID)
		if err != nil {
			return fmt.Errorf("line %d: sum returns: %w", line.ID, err)
		}
		if in.ReturnedQuantity > line.SoldQuantity-already {
			return &ReturnExceedsSoldError{
				SaleLineID:      line.ID,
				Sold:            line.SoldQuantity,
				AlreadyReturned: already,
				Requested:       in.ReturnedQuantity,
			}
		}
		ret := Return{
			SaleLineID:       line.ID,
			ReturnedQuantity: in.ReturnedQuantity,
			ReturnDate:       returnDate,
			Remarks:          in.Remarks,
			CreatedAt:        s.now(),
		}
		if ret.ID, err = tx.InsertReturn(ctx, ret); err != nil {
			return fmt.Errorf("line %d: insert return: %w", line.ID, err)
		}
		key := inventory.StockKey{ProductID: line.ProductID, PartNo: line.PartNo}
		ref := inventory.Reference{Module: "sales_returns", ID: strconv.FormatInt(ret.ID, 10), Note: in.Remarks}
		if _, err := s.stock.Credit(ctx, tx, key, in.ReturnedQuantity, ref); err != nil {
			return fmt.Errorf("line %d: %w", line.ID, err)
		}
		res = ReturnResult{
			Return:              ret,
			AlreadyReturned:     already + in.ReturnedQuantity,
			RemainingReturnable: line.SoldQuantity - already - in.ReturnedQuantity,
		}
		return nil
	})
	if err != nil {
		release()
		return ReturnResult{}, err
	}
	s.hooks.RecordAudit(ctx, shared.AuditLog{
		Action:   "sales:return",
		Entity:   "sale_line",
		EntityID: strconv.FormatInt(in.SaleLineID, 10),
		Meta: map[string]any{
			"return_id":        res.Return.ID,
			"qty":              in.ReturnedQuantity,
			"already_returned": res.AlreadyReturned,
		},
	})
	s.hooks.Log().Info("return recorded",
		slog.Int64("sale_line_id", in.SaleLineID),
		slog.Int64("qty", in.ReturnedQuantity),
		slog.Int64("remaining", res.RemainingReturnable))
	return res, nil
}

// GetSale returns a sale with its lines, payments and totals.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return Sale{}, fmt.Errorf("sale %d: %w", id, err)
	}
	totals := payments.ComputeTotals(sale.TotalPayableAmount, sale.Payments)
	sale.PaidTotal = totals.PaidTotal
	sale.DueAmount = totals.DueAmount
	return sale, nil
}

// ListSales lists sale headers, newest first.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	filter.Page = shared.NewPage(filter.Limit, filter.Offset)
	list, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].DueAmount = pricing.Round(list[i].TotalPayableAmount.Sub(list[i].PaidTotal))
	}
	return list, nil
}

// ListReturns lists the returns of a sale line with its return position.
func (s *Service) ListReturns(ctx context.Context, lineID int64) (SaleLine, []Return, error) {
	line, err := s.repo.GetSaleLine(ctx, lineID)
	if err != nil {
		return SaleLine{}, nil, fmt.Errorf("line %d: %w", lineID, err)
	}
	list, err := s.repo.ListReturns(ctx, lineID)
	if err != nil {
		return SaleLine{}, nil, err
	}
	return line, list, nil
}
