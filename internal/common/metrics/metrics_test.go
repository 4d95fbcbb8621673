package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestDialogueCounters(t *testing.T) {
	decision := PolicyDecisions.WithLabelValues("slot_filling", "follow_up")
	before := counterValue(t, decision)
	decision.Inc()
	assert.Equal(t, before+1, counterValue(t, decision))

	FollowUps.Inc()
	assert.GreaterOrEqual(t, counterValue(t, FollowUps), 1.0)
}
