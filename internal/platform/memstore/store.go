// Package memstore is an in-process implementation of every ledger
// repository. A single mutex serializes transactions; a failed transaction
// restores the snapshot taken when it began.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/sales"
	"github.com/partsledger/partsledger/internal/shared"
)

type state struct {
	products   map[int64]inventory.Product
	stock      map[inventory.StockKey]inventory.StockRecord
	movements  []inventory.Movement
	customers  map[int64]customers.Customer
	sales      map[int64]sales.Sale
	lines      map[int64]sales.SaleLine
	returns    []sales.Return
	payments   []payments.Payment
	invoiceSeq int64
	lastID     int64
}

func newState() state {
	return state{
		products:  map[int64]inventory.Product{},
		stock:     map[inventory.StockKey]inventory.StockRecord{},
		customers: map[int64]customers.Customer{},
		sales:     map[int64]sales.Sale{},
		lines:     map[int64]sales.SaleLine{},
	}
}

func (s state) clone() state {
	s.products = maps.Clone(s.products)
	s.stock = maps.Clone(s.stock)
	s.movements = slices.Clone(s.movements)
	s.customers = maps.Clone(s.customers)
	s.sales = maps.Clone(s.sales)
	s.lines = maps.Clone(s.lines)
	s.returns = slices.Clone(s.returns)
	s.payments = slices.Clone(s.payments)
	return s
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

type idemEntry struct {
	module    string
	createdAt time.Time
}

// Store holds all ledger state in memory.
type Store struct {
	mu    sync.Mutex
	state state
	idem  map[string]idemEntry
	audit []shared.AuditLog
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState(), idem: map[string]idemEntry{}, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, *txView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(ctx, &txView{st: &s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// GetCustomer implements customers.Reader.
func (s *Store) GetCustomer(_ context.Context, id int64) (customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.customers[id]
	if !ok {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

// CheckAndInsert implements shared.IdempotencyPort.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idem[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.idem[key] = idemEntry{module: module, createdAt: s.now()}
	return nil
}

// Delete implements shared.IdempotencyPort.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idem, key)
	return nil
}

// Cleanup implements shared.IdempotencyPort.
func (s *Store) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var removed int64
	for k, e := range s.idem {
		if e.createdAt.Before(cutoff) {
			delete(s.idem, k)
			removed++
		}
	}
	return removed, nil
}

// Record implements shared.AuditPort.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.At.IsZero() {
		log.At = s.now()
	}
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}
