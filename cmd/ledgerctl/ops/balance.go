package ops

import (
	"context"
	"encoding/json"
	"io"

	"github.com/partsledger/partsledger/internal/balance"
)

// BalanceReader computes running balances.
type BalanceReader interface {
	RunningBalance(ctx context.Context, customerID int64) (balance.Balance, error)
}

// PrintBalance writes the running balance of a customer as indented JSON.
func PrintBalance(ctx context.Context, w io.Writer, reader BalanceReader, customerID int64) error {
	b, err := reader.RunningBalance(ctx, customerID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}
