package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("balance:warmup").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("balance:warmup").End(boom), boom)
	m.AddProcessed("balance:warmup", 3)
	m.AddProcessed("balance:warmup", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("balance:warmup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("balance:warmup", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("balance:warmup")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.processed.WithLabelValues("balance:warmup")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("idempotency:cleanup").End(boom), boom)
	m.AddProcessed("idempotency:cleanup", 1)
}
