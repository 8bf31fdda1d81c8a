package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/partsledger/partsledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, key StockKey) (StockRecord, error)
	ListStock(ctx context.Context, productID int64) ([]StockRecord, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	hooks  shared.Hooks
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, hooks shared.Hooks) *Service {
	if ledger == nil {
		ledger = NewLedger(false)
	}
	return &Service{repo: repo, ledger: ledger, hooks: hooks}
}

// Ledger exposes the ledger so other modules can move stock inside their own
// transactions.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// GetQuantity returns the quantity on hand for key. An unresolvable key is an
// error, never zero.
func (s *Service) GetQuantity(ctx context.Context, key StockKey) (int64, error) {
	rec, err := s.GetStock(ctx, key)
	if err != nil {
		return 0, err
	}
	return rec.CurrentQuantity, nil
}

// GetStock returns the stock record for key.
func (s *Service) GetStock(ctx context.Context, key StockKey) (StockRecord, error) {
	if err := key.Validate(); err != nil {
		return StockRecord{}, err
	}
	rec, err := s.repo.GetStock(ctx, key)
	if err != nil {
		return StockRecord{}, fmt.Errorf("stock %s: %w", key, err)
	}
	return rec, nil
}

// ListStock lists stock records, optionally for one product.
func (s *Service) ListStock(ctx context.Context, productID int64) ([]StockRecord, error) {
	return s.repo.ListStock(ctx, productID)
}

// Receive books a purchase receipt in its own transaction.
func (s *Service) Receive(ctx context.Context, in ReceiptInput) (mv Movement, err error) {
	defer func() { s.hooks.Observe("stock_receive", err) }()
	if err := in.Validate(); err != nil {
		return Movement{}, err
	}
	release, err := s.hooks.Claim(ctx, in.IdempotencyKey, "inventory")
	if err != nil {
		return Movement{}, err
	}
	ref := Reference{Module: "inventory", ID: uuid.NewString(), Note: in.Note}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		mv, txErr = s.ledger.Receive(ctx, tx, in, ref)
		return txErr
	})
	if err != nil {
		release()
		return Movement{}, err
	}
	s.hooks.RecordAudit(ctx, shared.AuditLog{
		Action:   "inventory:receipt",
		Entity:   "stock_record",
		EntityID: in.StockKey.String(),
		Meta: map[string]any{
			"qty":            in.Qty,
			"purchase_price": in.PurchasePrice.String(),
			"balance_qty":    mv.BalanceQty,
			"ref_id":         ref.ID,
		},
	})
	s.hooks.Log().Info("stock received", slog.String("key", in.StockKey.String()), slog.Int64("qty", in.Qty), slog.Int64("balance", mv.BalanceQty))
	return mv, nil
}

// Debit removes qty from key in its own transaction.
func (s *Service) Debit(ctx context.Context, key StockKey, qty int64, ref Reference) (Movement, error) {
	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		mv, txErr = s.ledger.Debit(ctx, tx, key, qty, ref)
		return txErr
	})
	return mv, err
}

// Credit adds qty to key in its own transaction.
func (s *Service) Credit(ctx context.Context, key StockKey, qty int64, ref Reference) (Movement, error) {
	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		mv, txErr = s.ledger.Credit(ctx, tx, key, qty, ref)
		return txErr
	})
	return mv, err
}

// GetStockCard lists stock card entries.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if err := filter.StockKey.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.GetStockCard(ctx, filter)
}
