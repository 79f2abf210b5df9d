package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSearch(t *testing.T) {
	m := New()
	m.ObserveSearch("parallel", 10, 20, 5*time.Millisecond)
	m.ObserveSearch("parallel", 1, 2, time.Millisecond)

	assert.Equal(t, float64(202), testutil.ToFloat64(m.DistanceEvaluationsTotal.WithLabelValues("parallel")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DurationSeconds))
}

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("vectorized", 3, 4, time.Millisecond, nil)
	m.ObserveRun("vectorized", 3, 0, 0, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("vectorized", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("vectorized", "error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Points.WithLabelValues("reference")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveSearch("parallel", 1, 1, time.Second)
	m.ObserveRun("parallel", 1, 1, time.Second, nil)
	assert.NoError(t, m.WriteTextfile("ignored.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun("device", 2, 2, time.Millisecond, nil)

	path := filepath.Join(t.TempDir(), "correlate.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `geocorrelate_runs_total{outcome="success",strategy="device"} 1`)

	assert.NoError(t, m.WriteTextfile(""))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveRun("parallel", 1, 1, 0, nil)
	assert.Equal(t, float64(0), testutil.ToFloat64(b.RunsTotal.WithLabelValues("parallel", "success")))
}
