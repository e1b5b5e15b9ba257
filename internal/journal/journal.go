// Package journal mirrors coordinator events onto the queue so a separate
// worker can log and count them. The journal is write-only from the
// coordinator's side and never feeds back into the roster.
package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
	"classroll/internal/queue"
)

const publishTimeout = 500 * time.Millisecond

// Publisher is an attendance.Observer that enqueues every event.
type Publisher struct {
	q   queue.Queue
	log zerolog.Logger
}

// NewPublisher creates a publisher on q.
func NewPublisher(q queue.Queue, log zerolog.Logger) *Publisher {
	return &Publisher{q: q, log: log.With().Str("component", "journal").Logger()}
}

// Observe publishes evt with a short deadline. Failures are logged and the
// event is dropped; the attendance write it describes has already
// committed.
func (p *Publisher) Observe(ctx context.Context, evt attendance.Event) {
	msg, err := queue.NewJSONMessage(string(evt.Kind), evt)
	if err != nil {
		p.log.Error().Err(err).Msg("encoding journal event")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.q.Publish(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("kind", string(evt.Kind)).Str("session_id", evt.SessionID).Msg("journal publish failed")
	}
}

// Consumer drains the journal.
type Consumer struct {
	q       queue.Queue
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewConsumer creates a consumer. m may be nil.
func NewConsumer(q queue.Queue, log zerolog.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{q: q, log: log.With().Str("component", "journal").Logger(), metrics: m}
}

// Run consumes until ctx is done or the queue closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.Info().Msg("journal consumer started")
	for msg := range messages {
		c.handle(msg)
	}
	c.log.Info().Msg("journal consumer stopped")
	return nil
}

func (c *Consumer) handle(msg queue.Message) {
	var evt attendance.Event
	if err := msg.Decode(&evt); err != nil {
		c.log.Warn().Err(err).Str("type", msg.Type).Msg("skipping malformed journal message")
		c.count(msg.Type, "malformed")
		return
	}

	entry := c.log.Info().
		Str("kind", string(evt.Kind)).
		Str("session_id", evt.SessionID).
		Str("class_code", evt.ClassCode).
		Time("at", evt.At)
	switch evt.Kind {
	case attendance.EventSubmission:
		entry.Str("query", evt.Query).Str("name", evt.Name).Str("outcome", string(evt.Outcome)).Msg("submission journaled")
	case attendance.EventRollover:
		entry.Int("marked_absent", evt.Marked).Msg("rollover journaled")
	default:
		entry.Msg("session event journaled")
	}
	c.count(msg.Type, string(evt.Outcome))
}

func (c *Consumer) count(typ, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.JournalConsumed.WithLabelValues(typ, outcome).Inc()
}
