package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"classroll/internal/attendance"
)

// Metrics holds the counters exported on /metrics.
type Metrics struct {
	Submissions     *prometheus.CounterVec
	SessionsOpened  prometheus.Counter
	SessionsClosed  prometheus.Counter
	Rollovers       prometheus.Counter
	MarkedAbsent    prometheus.Counter
	JournalConsumed *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "submissions_total",
			Help:      "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "sessions_opened_total",
			Help:      "Sessions opened, including rollovers.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "sessions_closed_total",
			Help:      "Sessions closed.",
		}),
		Rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "standing_rollovers_total",
			Help:      "Standing session rollovers.",
		}),
		MarkedAbsent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "marked_absent_total",
			Help:      "Roster entries finalized as absent by rollovers.",
		}),
		JournalConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classroll",
			Name:      "journal_consumed_total",
			Help:      "Journal messages consumed by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.Submissions, m.SessionsOpened, m.SessionsClosed, m.Rollovers, m.MarkedAbsent, m.JournalConsumed)
	return m
}

// Observe implements attendance.Observer.
func (m *Metrics) Observe(_ context.Context, evt attendance.Event) {
	switch evt.Kind {
	case attendance.EventSessionCreated:
		m.SessionsOpened.Inc()
	case attendance.EventSessionClosed:
		m.SessionsClosed.Inc()
	case attendance.EventSubmission:
		m.Submissions.WithLabelValues(string(evt.Outcome)).Inc()
	case attendance.EventRollover:
		m.Rollovers.Inc()
		m.MarkedAbsent.Add(float64(evt.Marked))
	}
}
