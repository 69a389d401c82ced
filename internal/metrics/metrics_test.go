package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.FetchStarted("comments")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InFlight))

	count, err := testutil.GatherAndCount(reg, "relq_fetch_started_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewTwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register metrics")
}

func TestFetchFinished(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.FetchStarted("comments")
	m.FetchStarted("comments")
	m.FetchFinished("comments", 10*time.Millisecond, false)
	m.FetchFinished("comments", 20*time.Millisecond, true)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FetchesStarted.WithLabelValues("comments")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesFailed.WithLabelValues("comments")))
}

func TestSharedAndUpserted(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.FetchShared("comments")
	m.Upserted("comments", 3)
	m.CacheSize(4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesShared.WithLabelValues("comments")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsUpserted.WithLabelValues("comments")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.CacheEntries))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup(true)
		m.CacheSize(1)
		m.FetchStarted("x")
		m.FetchShared("x")
		m.FetchFinished("x", time.Second, true)
		m.Upserted("x", 1)
	})
}
