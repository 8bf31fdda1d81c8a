package shared

import (
	"context"
	"errors"
	"log/slog"
)

// BalanceInvalidator drops cached balances after a customer's ledger changes.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, customerID int64) error
}

// OperationRecorder counts ledger operations by outcome.
type OperationRecorder interface {
	ObserveOperation(operation, result string)
}

// Hooks bundles the side effects every ledger service runs around its
// transaction. Any field may be nil.
type Hooks struct {
	Logger      *slog.Logger
	Audit       AuditPort
	Idempotency IdempotencyPort
	Balances    BalanceInvalidator
	Metrics     OperationRecorder
}

// Claim reserves an idempotency key for module. The returned release func
// frees the key again and must be called when processing fails.
func (h Hooks) Claim(ctx context.Context, key, module string) (func(), error) {
	if key == "" || h.Idempotency == nil {
		return func() {}, nil
	}
	if err := h.Idempotency.CheckAndInsert(ctx, key, module); err != nil {
		return func() {}, err
	}
	return func() {
		if err := h.Idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
			h.Log().Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
		}
	}, nil
}

// RecordAudit writes an audit entry. Failures are logged, never returned:
// the ledger change has already committed.
func (h Hooks) RecordAudit(ctx context.Context, log AuditLog) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, log); err != nil {
		h.Log().Warn("audit record failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
	}
}

// Invalidate drops the cached balance of customerID.
func (h Hooks) Invalidate(ctx context.Context, customerID int64) {
	if h.Balances == nil {
		return
	}
	if err := h.Balances.Invalidate(ctx, customerID); err != nil {
		h.Log().Warn("balance invalidate failed", slog.Int64("customer_id", customerID), slog.Any("error", err))
	}
}

// Observe records the outcome of operation.
func (h Hooks) Observe(operation string, err error) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.ObserveOperation(operation, ResultLabel(err))
}

// Log returns the configured logger or the default one.
func (h Hooks) Log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ResultLabel turns an operation error into a low-cardinality label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch ClassOf(err) {
	case ErrValidation:
		return "validation"
	case ErrBusinessRule:
		return "business_rule"
	case ErrNotFound:
		return "not_found"
	case ErrIntegrity:
		return "integrity"
	case ErrConflict:
		return "conflict"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
