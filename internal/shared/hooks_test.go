package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdem struct {
	keys    map[string]string
	deleted []string
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := f.keys[key]; ok {
		return ErrIdempotencyConflict
	}
	f.keys[key] = module
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeIdem) Cleanup(context.Context, time.Duration) (int64, error) { return 0, nil }

type countingRecorder map[string]int

func (c countingRecorder) ObserveOperation(operation, result string) {
	c[operation+"/"+result]++
}

func TestHooksClaimAndRelease(t *testing.T) {
	idem := &fakeIdem{keys: map[string]string{}}
	hooks := Hooks{Idempotency: idem}
	ctx := context.Background()

	release, err := hooks.Claim(ctx, "k1", "sales")
	require.NoError(t, err)

	_, err = hooks.Claim(ctx, "k1", "sales")
	require.ErrorIs(t, err, ErrIdempotencyConflict)

	release()
	assert.Equal(t, []string{"k1"}, idem.deleted)

	_, err = hooks.Claim(ctx, "k1", "sales")
	require.NoError(t, err)
}

func TestHooksNilPortsAreNoops(t *testing.T) {
	var hooks Hooks
	release, err := hooks.Claim(context.Background(), "k", "sales")
	require.NoError(t, err)
	release()
	hooks.RecordAudit(context.Background(), AuditLog{Action: "x"})
	hooks.Invalidate(context.Background(), 1)
	hooks.Observe("sale_create", nil)
}

func TestHooksObserveLabels(t *testing.T) {
	rec := countingRecorder{}
	hooks := Hooks{Metrics: rec}

	hooks.Observe("sale_create", nil)
	hooks.Observe("sale_create", Classify(ErrBusinessRule, "no"))
	hooks.Observe("sale_create", errors.New("boom"))
	hooks.Observe("sale_create", context.Canceled)

	assert.Equal(t, 1, rec["sale_create/ok"])
	assert.Equal(t, 1, rec["sale_create/business_rule"])
	assert.Equal(t, 1, rec["sale_create/error"])
	assert.Equal(t, 1, rec["sale_create/canceled"])
}

func TestNewPageClamps(t *testing.T) {
	assert.Equal(t, Page{Limit: 20, Offset: 0}, NewPage(0, -3))
	assert.Equal(t, Page{Limit: 200, Offset: 10}, NewPage(1000, 10))
}
