package memstore

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/partsledger/partsledger/internal/customers"
	"github.com/partsledger/partsledger/internal/inventory"
)

// Seed is the JSON fixture format shared by the memory driver and the
// database seeder.
type Seed struct {
	Products  []inventory.Product     `json:"products"`
	Stock     []inventory.StockRecord `json:"stock"`
	Customers []customers.Customer    `json:"customers"`
}

// LoadSeed decodes a fixture.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("memstore: decode seed: %w", err)
	}
	return seed, nil
}

// Validate checks every stock record references a product of the seed by its
// own part number.
func (seed Seed) Validate() error {
	parts := make(map[int64]string, len(seed.Products))
	for _, p := range seed.Products {
		parts[p.ID] = p.PartNo
	}
	return validateStock(parts, seed.Stock)
}

func validateStock(parts map[int64]string, stock []inventory.StockRecord) error {
	for _, rec := range stock {
		partNo, ok := parts[rec.ProductID]
		if !ok {
			return fmt.Errorf("memstore: stock %s: %w", rec.Key(), inventory.ErrProductNotFound)
		}
		if partNo != rec.PartNo {
			return fmt.Errorf("memstore: stock %s: %w", rec.Key(), inventory.ErrPartNoMismatch)
		}
	}
	return nil
}

// Apply loads master data and opening stock into the store.
func (s *Store) Apply(seed Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make(map[int64]string, len(s.state.products)+len(seed.Products))
	for id, p := range s.state.products {
		parts[id] = p.PartNo
	}
	for _, p := range seed.Products {
		parts[p.ID] = p.PartNo
	}
	if err := validateStock(parts, seed.Stock); err != nil {
		return err
	}
	for _, p := range seed.Products {
		s.state.products[p.ID] = p
		s.bumpID(p.ID)
	}
	now := s.now()
	for _, rec := range seed.Stock {
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		}
		s.state.stock[rec.Key()] = rec
		s.state.movements = append(s.state.movements, inventory.Movement{
			ID:         s.state.nextID(),
			ProductID:  rec.ProductID,
			PartNo:     rec.PartNo,
			Type:       inventory.MovementReceipt,
			QtyIn:      rec.CurrentQuantity,
			BalanceQty: rec.CurrentQuantity,
			RefModule:  "seed",
			Note:       "opening stock",
			PostedAt:   rec.UpdatedAt,
		})
	}
	for _, c := range seed.Customers {
		s.state.customers[c.ID] = c
		s.bumpID(c.ID)
	}
	return nil
}

func (s *Store) bumpID(id int64) {
	if id > s.state.lastID {
		s.state.lastID = id
	}
}

// AddProduct registers a product.
func (s *Store) AddProduct(p inventory.Product) {
	_ = s.Apply(Seed{Products: []inventory.Product{p}})
}

// AddCustomer registers a customer.
func (s *Store) AddCustomer(c customers.Customer) {
	_ = s.Apply(Seed{Customers: []customers.Customer{c}})
}
