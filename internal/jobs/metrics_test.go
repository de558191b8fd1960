package jobmetrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWrapCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := m.Wrap(func(context.Context, *asynq.Task) error { return nil })
	failing := m.Wrap(func(context.Context, *asynq.Task) error { return errors.New("backend down") })
	invalid := m.Wrap(func(context.Context, *asynq.Task) error {
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	})

	task := asynq.NewTask("bulk:run", nil)
	require.NoError(t, ok(context.Background(), task))
	require.Error(t, failing(context.Background(), task))
	require.ErrorIs(t, invalid(context.Background(), task), asynq.SkipRetry)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bulk:run", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bulk:run", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bulk:run", "skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("bulk:run")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	want := errors.New("boom")
	require.Same(t, want, m.Track("bulk:prune").End(want))
}
