package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorderWith(reg)

	r.ObserveRun("success")
	r.ObserveRun("success")
	r.ObserveRun("exhausted")
	r.ObserveAttemptFailure("transport")
	r.ObserveModelCall(120*time.Millisecond, true)
	r.ObserveExecution(5*time.Millisecond, false)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.runsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.runsTotal.WithLabelValues("exhausted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.attemptFailures.WithLabelValues("transport")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["draftpilot_model_call_duration_seconds"])
	assert.True(t, names["draftpilot_execution_duration_seconds"])
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRun("success")
	r.ObserveAttemptFailure("semantic")
	r.ObserveModelCall(time.Second, false)
	r.ObserveExecution(time.Second, true)
}
