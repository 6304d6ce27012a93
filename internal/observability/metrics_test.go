// File: internal/observability/metrics_test.go
package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("should count actions episodes and tiers", func(t *testing.T) {
		m := NewMetrics()
		m.ObserveAction("tap", "success")
		m.ObserveAction("tap", "success")
		m.ObserveAction("open", "failed")
		m.ObserveEpisode("Completed")
		m.ObserveLaunchTier("2", "succeeded")
		m.ObserveOracle(1500 * time.Millisecond)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("tap", "success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("open", "failed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.episodes.WithLabelValues("Completed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.launchTiers.WithLabelValues("2", "succeeded")))

		count, err := testutil.GatherAndCount(m.Registry(), "droidpilot_oracle_latency_seconds")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("should tolerate a nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ObserveAction("tap", "success")
			m.ObserveEpisode("Completed")
			m.ObserveLaunchTier("1", "failed")
			m.ObserveOracle(time.Second)
		})
		assert.Nil(t, m.Registry())
	})
}
