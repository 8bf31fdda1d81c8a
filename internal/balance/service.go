package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/shared"
)

// Source reads the persisted state balances are derived from.
type Source interface {
	customers.Reader
	ListSaleDues(ctx context.Context, customerID int64) ([]SaleDue, error)
	ListCustomersWithOpenDues(ctx context.Context, limit int) ([]int64, error)
}

// Service computes running balances, optionally through a Cache.
type Service struct {
	source Source
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// RunningBalance returns previous due plus the due of every sale of the
// customer. A cache failure degrades to a direct computation.
func (s *Service) RunningBalance(ctx context.Context, customerID int64) (Balance, error) {
	if customerID <= 0 {
		return Balance{}, fmt.Errorf("%w: customer %d", customers.ErrNotFound, customerID)
	}
	if s.cache == nil {
		return s.compute(ctx, customerID)
	}
	b, err := s.cache.Fetch(ctx, customerID, func(ctx context.Context) (Balance, error) {
		return s.compute(ctx, customerID)
	})
	if err == nil || shared.ClassOf(err) != nil || ctx.Err() != nil {
		return b, err
	}
	s.logger.Warn("balance cache unavailable", slog.Int64("customer_id", customerID), slog.Any("error", err))
	return s.compute(ctx, customerID)
}

func (s *Service) compute(ctx context.Context, customerID int64) (Balance, error) {
	c, err := s.source.GetCustomer(ctx, customerID)
	if err != nil {
		return Balance{}, fmt.Errorf("customer %d: %w", customerID, err)
	}
	sales, err := s.source.ListSaleDues(ctx, customerID)
	if err != nil {
		return Balance{}, fmt.Errorf("customer %d: sale dues: %w", customerID, err)
	}
	return Compute(c, sales, s.now()), nil
}

// Invalidate drops the cached balance of a customer.
func (s *Service) Invalidate(ctx context.Context, customerID int64) error {
	return s.cache.Bump(ctx, customerID)
}

// Warmup computes and caches the balances of up to limit customers with
// outstanding dues. It returns how many balances were refreshed.
func (s *Service) Warmup(ctx context.Context, limit int) (int, error) {
	ids, err := s.source.ListCustomersWithOpenDues(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.RunningBalance(ctx, id); err != nil {
			s.logger.Warn("balance warmup failed", slog.Int64("customer_id", id), slog.Any("error", err))
			continue
		}
		done++
	}
	return done, nil
}
