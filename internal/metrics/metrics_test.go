package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroll/internal/attendance"
)

// counterValue sums the samples of a counter family whose labels include
// every pair in match.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, match map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range match {
				if labels[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()

	m.Observe(ctx, attendance.Event{Kind: attendance.EventSessionCreated})
	m.Observe(ctx, attendance.Event{Kind: attendance.EventSubmission, Outcome: attendance.OutcomePresent})
	m.Observe(ctx, attendance.Event{Kind: attendance.EventSubmission, Outcome: attendance.OutcomeAbsent})
	m.Observe(ctx, attendance.Event{Kind: attendance.EventSubmission, Outcome: attendance.OutcomeAbsent})
	m.Observe(ctx, attendance.Event{Kind: attendance.EventSessionClosed})
	m.Observe(ctx, attendance.Event{Kind: attendance.EventRollover, Marked: 3})

	assert.Equal(t, 1.0, counterValue(t, reg, "classroll_sessions_opened_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "classroll_sessions_closed_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "classroll_submissions_total", map[string]string{"outcome": "present"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "classroll_submissions_total", map[string]string{"outcome": "absent"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "classroll_standing_rollovers_total", nil))
	assert.Equal(t, 3.0, counterValue(t, reg, "classroll_marked_absent_total", nil))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
