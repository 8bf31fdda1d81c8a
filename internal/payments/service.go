// Package payments records payments against sales and derives paid and due totals.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/partsledger/partsledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSaleHeader(ctx context.Context, saleID int64) (SaleHeader, error)
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
}

// Service coordinates payment operations.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	hooks  shared.Hooks
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, hooks shared.Hooks) *Service {
	if ledger == nil {
		ledger = NewLedger(Policy{})
	}
	return &Service{repo: repo, ledger: ledger, hooks: hooks}
}

// Ledger exposes the payment ledger for use inside other transactions.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// AddPayment appends a payment to saleID. The sale header stays locked from
// the paid-sum read until the insert commits.
func (s *Service) AddPayment(ctx context.Context, saleID int64, in Input) (res Result, err error) {
	defer func() { s.hooks.Observe("payment_add", err) }()
	if err := s.ledger.Validate(in); err != nil {
		return Result{}, err
	}
	release, err := s.hooks.Claim(ctx, in.IdempotencyKey, "payments")
	if err != nil {
		return Result{}, err
	}
	var header SaleHeader
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		header, txErr = tx.GetSaleHeaderForUpdate(ctx, saleID)
		if txErr != nil {
			return fmt.Errorf("sale %d: %w", saleID, txErr)
		}
		res.Payment, res.Totals, txErr = s.ledger.Append(ctx, tx, header, in)
		return txErr
	})
	if err != nil {
		release()
		return Result{}, err
	}
	s.hooks.Invalidate(ctx, header.CustomerID)
	s.hooks.RecordAudit(ctx, shared.AuditLog{
		Action:   "payments:add",
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta: map[string]any{
			"payment_id": res.Payment.ID,
			"mode":       string(res.Payment.Mode),
			"amount":     res.Payment.PaidAmount.StringFixed(2),
			"due_amount": res.DueAmount.StringFixed(2),
		},
	})
	s.hooks.Log().Info("payment recorded",
		slog.Int64("sale_id", saleID),
		slog.String("mode", string(in.Mode)),
		slog.String("amount", in.PaidAmount.StringFixed(2)),
		slog.String("due", res.DueAmount.StringFixed(2)))
	return res, nil
}

// ListPayments returns the payments of saleID and totals recomputed from them.
func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]Payment, Totals, error) {
	header, err := s.repo.GetSaleHeader(ctx, saleID)
	if err != nil {
		return nil, Totals{}, fmt.Errorf("sale %d: %w", saleID, err)
	}
	list, err := s.repo.ListPayments(ctx, saleID)
	if err != nil {
		return nil, Totals{}, err
	}
	return list, ComputeTotals(header.TotalPayableAmount, list), nil
}
